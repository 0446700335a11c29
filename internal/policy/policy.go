// ABOUTME: Role-based access control evaluation for cumulus-auth
// ABOUTME: Superuser, admin, and scoped role checks against the grant store

package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/2389/cumulus-auth/internal/store"
)

// RoleProjectManager is a pseudo-role evaluated against the project's
// manager id. It is never stored as a grant and cannot be added or
// removed.
const RoleProjectManager = "projectmanager"

// ErrProjectRequired is returned when a check that only makes sense
// within a project is attempted without one.
var ErrProjectRequired = errors.New("a project is required for this role check")

// ErrImmutableRole is returned when attempting to grant or revoke the
// projectmanager pseudo-role.
var ErrImmutableRole = errors.New("the projectmanager role cannot be granted or revoked")

// RoleStore is the slice of the identity store the engine evaluates
// grants against. Scope store.ScopeGlobal selects account-level grants.
type RoleStore interface {
	HasRole(ctx context.Context, userID, role, scope string) (bool, error)
	AddRole(ctx context.Context, userID, role, scope string) error
	RemoveRole(ctx context.Context, userID, role, scope string) error
}

// Engine evaluates role-based access decisions. All checks are pure
// functions of current store state; concurrent grant changes are
// visible between calls (no snapshot isolation).
type Engine struct {
	roles          RoleStore
	superuserRoles []string
	globalRoles    []string
	logger         *slog.Logger
}

// New creates a policy engine. superuserRoles name roles whose global
// holders bypass rbac entirely; globalRoles name roles whose global
// holders have admin rights over every project.
func New(roles RoleStore, superuserRoles, globalRoles []string) *Engine {
	return &Engine{
		roles:          roles,
		superuserRoles: superuserRoles,
		globalRoles:    globalRoles,
		logger:         slog.Default().With("component", "policy"),
	}
}

// IsSuperuser reports whether the user bypasses rbac checking entirely:
// either the admin flag is set, or the user holds one of the configured
// superuser roles at global scope.
func (e *Engine) IsSuperuser(ctx context.Context, u *store.User) (bool, error) {
	if u.Admin {
		return true, nil
	}
	for _, role := range e.superuserRoles {
		has, err := e.roles.HasRole(ctx, u.ID, role, store.ScopeGlobal)
		if err != nil {
			return false, fmt.Errorf("checking superuser role %s: %w", role, err)
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports whether the user has admin rights over every project:
// superusers, plus holders of any configured global role at global scope.
func (e *Engine) IsAdmin(ctx context.Context, u *store.User) (bool, error) {
	super, err := e.IsSuperuser(ctx, u)
	if err != nil || super {
		return super, err
	}
	for _, role := range e.globalRoles {
		has, err := e.roles.HasRole(ctx, u.ID, role, store.ScopeGlobal)
		if err != nil {
			return false, fmt.Errorf("checking global role %s: %w", role, err)
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// HasRole reports whether the user holds the role, optionally within a
// project.
//
// A role must be granted at global scope before a project-scoped grant
// of the same name has any effect: without the global grant the check
// fails even if a project grant exists. This layered precedence is
// intentional (roles are enabled at the account level, then scoped down
// to projects); confirm with the product owner before changing it to
// independent OR semantics.
//
// The projectmanager pseudo-role requires a project and is equivalent
// to IsProjectManager.
func (e *Engine) HasRole(ctx context.Context, u *store.User, role string, project *store.Project) (bool, error) {
	if role == RoleProjectManager {
		if project == nil {
			return false, ErrProjectRequired
		}
		return e.IsProjectManager(u, project), nil
	}

	global, err := e.roles.HasRole(ctx, u.ID, role, store.ScopeGlobal)
	if err != nil {
		return false, fmt.Errorf("checking global grant: %w", err)
	}
	if !global {
		return false, nil
	}

	if project == nil || slices.Contains(e.globalRoles, role) {
		return true, nil
	}

	has, err := e.roles.HasRole(ctx, u.ID, role, project.ID)
	if err != nil {
		return false, fmt.Errorf("checking project grant: %w", err)
	}
	return has, nil
}

// AddRole grants a role to a user, globally or within a project.
// Granting projectmanager fails with ErrImmutableRole.
func (e *Engine) AddRole(ctx context.Context, userID, role string, project *store.Project) error {
	if role == RoleProjectManager {
		return ErrImmutableRole
	}
	scope := store.ScopeGlobal
	if project != nil {
		scope = project.ID
	}
	if err := e.roles.AddRole(ctx, userID, role, scope); err != nil {
		return fmt.Errorf("adding role: %w", err)
	}
	e.logger.Info("granted role", "user", userID, "role", role, "scope", scopeLabel(scope))
	return nil
}

// RemoveRole revokes a role from a user, globally or within a project.
// Revoking projectmanager fails with ErrImmutableRole.
func (e *Engine) RemoveRole(ctx context.Context, userID, role string, project *store.Project) error {
	if role == RoleProjectManager {
		return ErrImmutableRole
	}
	scope := store.ScopeGlobal
	if project != nil {
		scope = project.ID
	}
	if err := e.roles.RemoveRole(ctx, userID, role, scope); err != nil {
		return fmt.Errorf("removing role: %w", err)
	}
	e.logger.Info("revoked role", "user", userID, "role", role, "scope", scopeLabel(scope))
	return nil
}

// IsProjectManager reports whether the user is the project's manager.
func (e *Engine) IsProjectManager(u *store.User, project *store.Project) bool {
	return u.ID == project.ManagerID
}

// IsProjectMember reports whether the user is in the project's
// membership set.
func (e *Engine) IsProjectMember(u *store.User, project *store.Project) bool {
	return project.HasMember(u.ID)
}

func scopeLabel(scope string) string {
	if scope == store.ScopeGlobal {
		return "global"
	}
	return scope
}
