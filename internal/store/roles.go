// ABOUTME: Role grant store methods for authorization
// ABOUTME: Grants are (user, role, scope) tuples; scope is global or a project id

package store

import (
	"context"
	"fmt"
	"time"
)

// AddRole records a role grant for a user at the given scope. Adding an
// existing grant succeeds silently.
func (s *SQLiteStore) AddRole(ctx context.Context, userID, role, scope string) error {
	query := `
		INSERT OR IGNORE INTO role_grants (user_id, role, scope, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		userID,
		role,
		scope,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("adding role: %w", err)
	}

	s.logger.Debug("added role", "user", userID, "role", role, "scope", scope)
	return nil
}

// RemoveRole removes a role grant. Removing a non-existent grant
// succeeds silently.
func (s *SQLiteStore) RemoveRole(ctx context.Context, userID, role, scope string) error {
	query := `DELETE FROM role_grants WHERE user_id = ? AND role = ? AND scope = ?`

	_, err := s.db.ExecContext(ctx, query, userID, role, scope)
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}

	s.logger.Debug("removed role", "user", userID, "role", role, "scope", scope)
	return nil
}

// HasRole checks whether a user holds a role at the given scope.
// Returns false for non-existent users (not an error).
func (s *SQLiteStore) HasRole(ctx context.Context, userID, role, scope string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM role_grants
		WHERE user_id = ? AND role = ? AND scope = ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, role, scope).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}

	return count > 0, nil
}
