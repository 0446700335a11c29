// ABOUTME: AuthService: request authentication and identity administration
// ABOUTME: Composes the identity store, policy engine, signer, and port pool

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/cumulus-auth/internal/policy"
	"github.com/2389/cumulus-auth/internal/signer"
	"github.com/2389/cumulus-auth/internal/store"
	"github.com/2389/cumulus-auth/internal/vpnpool"
)

// Authentication and administration errors. Membership denials
// deliberately surface as ErrNotFound so callers cannot probe which
// projects exist.
var (
	ErrNotFound             = errors.New("not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrDuplicate            = errors.New("already exists")
)

// Signature check types recognized by Authenticate. Any other value
// skips signature verification entirely.
const (
	CheckTypeEC2 = "ec2"
	CheckTypeS3  = "s3"
)

// KeyGenerator produces key pairs for users. The private key is
// returned to the caller and never persisted.
type KeyGenerator interface {
	GenerateKeyPair() (privateKey, publicKey, fingerprint string, err error)
}

// Service is the authentication and identity administration entry
// point. It is stateless across requests; a single instance serves
// concurrent callers. Construct one with New and inject the backend —
// there is no process-wide singleton.
type Service struct {
	store      store.Store
	policy     *policy.Engine
	keys       KeyGenerator
	pool       *vpnpool.Pool // nil when VPN provisioning is disabled
	vpnAddress string
	logger     *slog.Logger
}

// New creates an auth service. pool may be nil to disable per-project
// VPN provisioning; vpnAddress is the network address ports are
// allocated on.
func New(st store.Store, eng *policy.Engine, keys KeyGenerator, pool *vpnpool.Pool, vpnAddress string) *Service {
	return &Service{
		store:      st,
		policy:     eng,
		keys:       keys,
		pool:       pool,
		vpnAddress: vpnAddress,
		logger:     slog.Default().With("component", "auth"),
	}
}

// Policy exposes the rbac engine for callers performing standalone
// role checks and grants.
func (s *Service) Policy() *policy.Engine {
	return s.policy
}

// Authenticate verifies a signed request and resolves the user and
// project it acts within.
//
// access is "accessKey:projectID"; with no project the user's own name
// is used, so older tools without project knowledge keep working. The
// user must be a project member or an admin; the supplied signature
// must match the one recomputed from the request with the user's
// secret key.
//
// checkType selects the canonicalization: CheckTypeEC2 signs over
// params/verb/host/path, CheckTypeS3 over headers/verb/path. Any other
// value skips verification and accepts the request — a legacy escape
// hatch for unsigned internal calls; review before exposing new
// request paths through it.
func (s *Service) Authenticate(ctx context.Context, access, signature string, params map[string]string, verb, host, path, checkType string, headers map[string]string) (*store.User, *store.Project, error) {
	accessKey, projectID, _ := strings.Cut(access, ":")

	user, err := s.store.GetUserByAccessKey(ctx, accessKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("unknown access key", "access_key", accessKey)
			return nil, nil, fmt.Errorf("no user for access key: %w", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}

	if projectID == "" {
		projectID = user.Name
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("no project %q: %w", projectID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("looking up project: %w", err)
	}

	admin, err := s.policy.IsAdmin(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("checking admin: %w", err)
	}
	if !admin && !s.policy.IsProjectMember(user, project) {
		// Reported as not-found, not forbidden, so non-members cannot
		// confirm the project exists.
		s.logger.Debug("membership denied", "user", user.ID, "project", project.ID)
		return nil, nil, fmt.Errorf("no project %q: %w", projectID, ErrNotFound)
	}

	switch checkType {
	case CheckTypeEC2:
		expected := signer.New(user.SecretKey).SignEC2(params, verb, host, path)
		if !signer.Matches(signature, expected) {
			s.logger.Warn("signature mismatch", "user", user.ID, "check_type", checkType)
			return nil, nil, fmt.Errorf("signature does not match: %w", ErrAuthenticationFailed)
		}
	case CheckTypeS3:
		expected := signer.New(user.SecretKey).SignS3(headers, verb, path)
		if !signer.Matches(signature, expected) {
			s.logger.Warn("signature mismatch", "user", user.ID, "check_type", checkType)
			return nil, nil, fmt.Errorf("signature does not match: %w", ErrAuthenticationFailed)
		}
	default:
		s.logger.Debug("skipping signature check", "check_type", checkType)
	}

	return user, project, nil
}

// CreateUser creates a user. Empty accessKey or secretKey default to
// random values. The id doubles as the display name.
func (s *Service) CreateUser(ctx context.Context, id string, accessKey, secretKey string, admin bool) (*store.User, error) {
	if accessKey == "" {
		accessKey = uuid.New().String()
	}
	if secretKey == "" {
		secretKey = uuid.New().String()
	}

	u := &store.User{
		ID:        id,
		Name:      id,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Admin:     admin,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("user %s: %w", id, ErrDuplicate)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("created user", "id", id, "admin", admin)
	return u, nil
}

// GetUser retrieves a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*store.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	return s.store.ListUsers(ctx)
}

// DeleteUser deletes a user along with their grants, memberships, and
// key pairs.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("deleting user: %w", err)
	}
	s.logger.Info("deleted user", "id", id)
	return nil
}

// CreateProject creates a project managed by managerID. The manager is
// always added to the membership set. When VPN provisioning is enabled
// a port is leased for the project.
//
// Creation is not transactional across collaborators: if the port
// lease fails after the project record is written, the record remains
// and the caller performs compensating cleanup (delete the project or
// retry provisioning after expanding the range).
func (s *Service) CreateProject(ctx context.Context, id, managerID, description string, memberIDs []string) (*store.Project, error) {
	if _, err := s.store.GetUser(ctx, managerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("manager %s: %w", managerID, ErrNotFound)
		}
		return nil, fmt.Errorf("looking up manager: %w", err)
	}

	members := memberIDs
	if !slices.Contains(members, managerID) {
		members = append(append([]string(nil), memberIDs...), managerID)
	}

	p := &store.Project{
		ID:          id,
		Name:        id,
		ManagerID:   managerID,
		Description: description,
		MemberIDs:   members,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("project %s: %w", id, ErrDuplicate)
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}

	if s.pool != nil {
		port, err := s.pool.Allocate(ctx, s.vpnAddress)
		if err != nil {
			return nil, fmt.Errorf("allocating vpn port for %s: %w", id, err)
		}
		v := &store.VPNAllocation{ProjectID: id, Address: s.vpnAddress, Port: port}
		if err := s.store.CreateVPN(ctx, v); err != nil {
			// Hand the port back so it is not leaked.
			if relErr := s.pool.Release(ctx, s.vpnAddress, port); relErr != nil {
				s.logger.Error("leaking vpn port after failed record", "port", port, "error", relErr)
			}
			return nil, fmt.Errorf("recording vpn allocation: %w", err)
		}
		s.logger.Info("allocated vpn endpoint", "project", id, "address", s.vpnAddress, "port", port)
	}

	s.logger.Info("created project", "id", id, "manager", managerID)
	return p, nil
}

// GetProject retrieves a project by id.
func (s *Service) GetProject(ctx context.Context, id string) (*store.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProjects returns all projects.
func (s *Service) ListProjects(ctx context.Context) ([]*store.Project, error) {
	return s.store.ListProjects(ctx)
}

// DeleteProject deletes a project, reclaiming its VPN port if one is
// leased.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	vpn, err := s.store.GetVPN(ctx, id)
	switch {
	case err == nil:
		if s.pool != nil {
			if err := s.pool.Release(ctx, vpn.Address, vpn.Port); err != nil {
				return fmt.Errorf("releasing vpn port: %w", err)
			}
		}
		if err := s.store.DeleteVPN(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("deleting vpn record: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
		// No allocation to reclaim.
	default:
		return fmt.Errorf("looking up vpn allocation: %w", err)
	}

	if err := s.store.DeleteProject(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("deleting project: %w", err)
	}

	s.logger.Info("deleted project", "id", id)
	return nil
}

// AddToProject adds a user to a project's membership set.
func (s *Service) AddToProject(ctx context.Context, userID, projectID string) error {
	if err := s.store.AddToProject(ctx, userID, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return err
	}
	return nil
}

// RemoveFromProject removes a user from a project's membership set.
func (s *Service) RemoveFromProject(ctx context.Context, userID, projectID string) error {
	if err := s.store.RemoveFromProject(ctx, userID, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return err
	}
	return nil
}

// ProjectVPN returns the (address, port) lease for a project, or
// ErrNotFound if VPN provisioning never ran for it.
func (s *Service) ProjectVPN(ctx context.Context, projectID string) (*store.VPNAllocation, error) {
	v, err := s.store.GetVPN(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("vpn allocation for %s: %w", projectID, ErrNotFound)
	}
	return v, err
}

// GenerateKeyPair generates a key pair for a user, stores the public
// half, and returns the private key and fingerprint. Key generation is
// slow, so existence and name-collision checks run first.
func (s *Service) GenerateKeyPair(ctx context.Context, userID, name string) (privateKey, fingerprint string, err error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return "", "", fmt.Errorf("looking up user: %w", err)
	}
	if _, err := s.store.GetKeyPair(ctx, userID, name); err == nil {
		return "", "", fmt.Errorf("key pair %s: %w", name, ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", "", fmt.Errorf("checking key pair: %w", err)
	}

	private, public, fp, err := s.keys.GenerateKeyPair()
	if err != nil {
		return "", "", fmt.Errorf("generating key pair: %w", err)
	}

	kp := &store.KeyPair{
		OwnerID:     userID,
		Name:        name,
		PublicKey:   public,
		Fingerprint: fp,
	}
	if err := s.store.CreateKeyPair(ctx, kp); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return "", "", fmt.Errorf("key pair %s: %w", name, ErrDuplicate)
		}
		return "", "", fmt.Errorf("storing key pair: %w", err)
	}

	s.logger.Info("generated key pair", "user", userID, "name", name, "fingerprint", fp)
	return private, fp, nil
}

// ListKeyPairs returns all key pairs owned by a user.
func (s *Service) ListKeyPairs(ctx context.Context, userID string) ([]*store.KeyPair, error) {
	return s.store.ListKeyPairs(ctx, userID)
}

// DeleteKeyPair deletes a stored key pair.
func (s *Service) DeleteKeyPair(ctx context.Context, userID, name string) error {
	if err := s.store.DeleteKeyPair(ctx, userID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key pair %s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}
