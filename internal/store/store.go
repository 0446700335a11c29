// ABOUTME: Store interface and data types for cumulus-auth identity persistence
// ABOUTME: Defines User, Project, KeyPair, VPNAllocation and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating an entity that already exists
var ErrDuplicate = errors.New("already exists")

// ScopeGlobal is the role-grant scope that applies across every project.
// Any other scope value is a project id.
const ScopeGlobal = ""

// User represents a principal with an access/secret credential pair.
// The secret key is only ever used locally to recompute request
// signatures; it is never transmitted.
type User struct {
	ID        string
	Name      string
	AccessKey string
	SecretKey string
	Admin     bool // hard override bypassing all role checks
	CreatedAt time.Time
}

// Project represents an isolated collection of resources with one
// manager and a membership set. The manager is expected to be a member;
// callers add the manager explicitly.
type Project struct {
	ID          string
	Name        string
	ManagerID   string
	Description string
	MemberIDs   []string
	CreatedAt   time.Time
}

// HasMember reports whether the given user id is in the membership set.
func (p *Project) HasMember(userID string) bool {
	for _, id := range p.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// KeyPair represents a stored public key. The private key is generated
// once, returned to the caller, and never persisted.
type KeyPair struct {
	OwnerID     string
	Name        string
	PublicKey   string
	Fingerprint string
	CreatedAt   time.Time
}

// VPNAllocation is an exclusive lease of one port on a network address,
// bound to exactly one project.
type VPNAllocation struct {
	ProjectID string
	Address   string
	Port      int
	CreatedAt time.Time
}

// Store defines the identity persistence interface. Absent entities are
// reported with ErrNotFound; creation of an entity whose key already
// exists is reported with ErrDuplicate.
type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByAccessKey(ctx context.Context, accessKey string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CreateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error

	// Projects
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	CreateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error
	AddToProject(ctx context.Context, userID, projectID string) error
	RemoveFromProject(ctx context.Context, userID, projectID string) error

	// Role grants. Scope is ScopeGlobal or a project id.
	HasRole(ctx context.Context, userID, role, scope string) (bool, error)
	AddRole(ctx context.Context, userID, role, scope string) error
	RemoveRole(ctx context.Context, userID, role, scope string) error

	// Key pairs
	GetKeyPair(ctx context.Context, ownerID, name string) (*KeyPair, error)
	ListKeyPairs(ctx context.Context, ownerID string) ([]*KeyPair, error)
	CreateKeyPair(ctx context.Context, kp *KeyPair) error
	DeleteKeyPair(ctx context.Context, ownerID, name string) error

	// VPN allocations
	GetVPN(ctx context.Context, projectID string) (*VPNAllocation, error)
	CreateVPN(ctx context.Context, v *VPNAllocation) error
	DeleteVPN(ctx context.Context, projectID string) error

	// Close releases any resources held by the store
	Close() error
}
