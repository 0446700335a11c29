// ABOUTME: In-memory implementation of the Store interface
// ABOUTME: Used in tests and for ephemeral deployments without a database file

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore implements the Store interface in memory. All operations are
// guarded by a single mutex; suitable for tests and small ephemeral
// deployments.
type MemStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	projects map[string]*Project
	grants   map[grantKey]bool
	keyPairs map[kpKey]*KeyPair
	vpns     map[string]*VPNAllocation
}

type grantKey struct {
	userID string
	role   string
	scope  string
}

type kpKey struct {
	ownerID string
	name    string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[string]*User),
		projects: make(map[string]*Project),
		grants:   make(map[grantKey]bool),
		keyPairs: make(map[kpKey]*KeyPair),
		vpns:     make(map[string]*VPNAllocation),
	}
}

func (m *MemStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrDuplicate)
	}
	for _, existing := range m.users {
		if existing.AccessKey == u.AccessKey {
			return fmt.Errorf("access key %s: %w", u.AccessKey, ErrDuplicate)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemStore) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemStore) GetUserByAccessKey(_ context.Context, accessKey string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.AccessKey == accessKey {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) ListUsers(_ context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(m.users, id)
	for k := range m.grants {
		if k.userID == id {
			delete(m.grants, k)
		}
	}
	for k := range m.keyPairs {
		if k.ownerID == id {
			delete(m.keyPairs, k)
		}
	}
	for _, p := range m.projects {
		p.MemberIDs = removeString(p.MemberIDs, id)
	}
	return nil
}

func (m *MemStore) CreateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrDuplicate)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	cp.MemberIDs = append([]string(nil), p.MemberIDs...)
	m.projects[p.ID] = &cp
	return nil
}

func (m *MemStore) GetProject(_ context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.MemberIDs = append([]string(nil), p.MemberIDs...)
	return &cp, nil
}

func (m *MemStore) ListProjects(_ context.Context) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	projects := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		cp.MemberIDs = append([]string(nil), p.MemberIDs...)
		projects = append(projects, &cp)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func (m *MemStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	delete(m.projects, id)
	for k := range m.grants {
		if k.scope == id {
			delete(m.grants, k)
		}
	}
	return nil
}

func (m *MemStore) AddToProject(_ context.Context, userID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	for _, id := range p.MemberIDs {
		if id == userID {
			return nil
		}
	}
	p.MemberIDs = append(p.MemberIDs, userID)
	return nil
}

func (m *MemStore) RemoveFromProject(_ context.Context, userID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	p.MemberIDs = removeString(p.MemberIDs, userID)
	return nil
}

func (m *MemStore) HasRole(_ context.Context, userID, role, scope string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grants[grantKey{userID, role, scope}], nil
}

func (m *MemStore) AddRole(_ context.Context, userID, role, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grantKey{userID, role, scope}] = true
	return nil
}

func (m *MemStore) RemoveRole(_ context.Context, userID, role, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, grantKey{userID, role, scope})
	return nil
}

func (m *MemStore) GetKeyPair(_ context.Context, ownerID, name string) (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kp, ok := m.keyPairs[kpKey{ownerID, name}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *kp
	return &cp, nil
}

func (m *MemStore) ListKeyPairs(_ context.Context, ownerID string) ([]*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pairs []*KeyPair
	for k, kp := range m.keyPairs {
		if k.ownerID == ownerID {
			cp := *kp
			pairs = append(pairs, &cp)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs, nil
}

func (m *MemStore) CreateKeyPair(_ context.Context, kp *KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := kpKey{kp.OwnerID, kp.Name}
	if _, ok := m.keyPairs[k]; ok {
		return fmt.Errorf("key pair %s: %w", kp.Name, ErrDuplicate)
	}
	if kp.CreatedAt.IsZero() {
		kp.CreatedAt = time.Now().UTC()
	}
	cp := *kp
	m.keyPairs[k] = &cp
	return nil
}

func (m *MemStore) DeleteKeyPair(_ context.Context, ownerID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := kpKey{ownerID, name}
	if _, ok := m.keyPairs[k]; !ok {
		return fmt.Errorf("key pair %s: %w", name, ErrNotFound)
	}
	delete(m.keyPairs, k)
	return nil
}

func (m *MemStore) GetVPN(_ context.Context, projectID string) (*VPNAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vpns[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemStore) CreateVPN(_ context.Context, v *VPNAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vpns[v.ProjectID]; ok {
		return fmt.Errorf("vpn allocation for %s: %w", v.ProjectID, ErrDuplicate)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	cp := *v
	m.vpns[v.ProjectID] = &cp
	return nil
}

func (m *MemStore) DeleteVPN(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vpns[projectID]; !ok {
		return fmt.Errorf("vpn allocation for %s: %w", projectID, ErrNotFound)
	}
	delete(m.vpns, projectID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
