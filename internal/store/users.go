// ABOUTME: User entity store methods for the SQLite backend
// ABOUTME: Covers CRUD and access-key lookup for authentication

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser creates a new user. Returns ErrDuplicate if the id or
// access key is already taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, name, access_key, secret_key, admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID,
		u.Name,
		u.AccessKey,
		u.SecretKey,
		u.Admin,
		u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("user %s: %w", u.ID, ErrDuplicate)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", u.ID, "admin", u.Admin)
	return nil
}

// GetUser retrieves a user by id. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, access_key, secret_key, admin, created_at
		FROM users WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByAccessKey retrieves a user by access key. This is the lookup
// used during request authentication. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetUserByAccessKey(ctx context.Context, accessKey string) (*User, error) {
	query := `
		SELECT id, name, access_key, secret_key, admin, created_at
		FROM users WHERE access_key = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, accessKey))
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, name, access_key, secret_key, admin, created_at
		FROM users ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser deletes a user along with their role grants, project
// memberships and key pairs. Returns ErrNotFound if the user does not
// exist.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	// Associated records are not covered by FK cascade (no FK from
	// role_grants/key_pairs to users, so grants survive backend swaps).
	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_grants WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("deleting role grants: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM project_members WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("deleting memberships: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM key_pairs WHERE owner_id = ?`, id); err != nil {
		return fmt.Errorf("deleting key pairs: %w", err)
	}

	s.logger.Debug("deleted user", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func scanUserRow(row rowScanner) (*User, error) {
	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.AccessKey, &u.SecretKey, &u.Admin, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing user created_at: %w", err)
	}
	u.CreatedAt = t
	return &u, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE or
// PRIMARY KEY constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
