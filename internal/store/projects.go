// ABOUTME: Project entity store methods for the SQLite backend
// ABOUTME: Covers CRUD and membership management

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateProject creates a new project with its initial membership set.
// Returns ErrDuplicate if the id is already taken. The manager is not
// implicitly added; callers include the manager in MemberIDs.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO projects (id, name, manager_id, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.ManagerID,
		p.Description,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("project %s: %w", p.ID, ErrDuplicate)
		}
		return fmt.Errorf("inserting project: %w", err)
	}

	for _, uid := range p.MemberIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)`,
			p.ID, uid,
		)
		if err != nil {
			return fmt.Errorf("inserting project member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing project: %w", err)
	}

	s.logger.Debug("created project", "id", p.ID, "manager", p.ManagerID)
	return nil
}

// GetProject retrieves a project by id, including its membership set.
// Returns ErrNotFound if absent.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	query := `
		SELECT id, name, manager_id, description, created_at
		FROM projects WHERE id = ?
	`

	var p Project
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.ManagerID, &p.Description, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing project created_at: %w", err)
	}
	p.CreatedAt = t

	members, err := s.projectMembers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.MemberIDs = members

	return &p, nil
}

// ListProjects returns all projects ordered by id, including membership
// sets.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	projects := make([]*Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// DeleteProject deletes a project and its membership rows. Project-scoped
// role grants are removed as well. Returns ErrNotFound if absent.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_grants WHERE scope = ?`, id); err != nil {
		return fmt.Errorf("deleting project role grants: %w", err)
	}

	s.logger.Debug("deleted project", "id", id)
	return nil
}

// AddToProject adds a user to a project's membership set. Adding an
// existing member succeeds silently.
func (s *SQLiteStore) AddToProject(ctx context.Context, userID, projectID string) error {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("adding project member: %w", err)
	}

	s.logger.Debug("added project member", "project", projectID, "user", userID)
	return nil
}

// RemoveFromProject removes a user from a project's membership set.
// Removing a non-member succeeds silently.
func (s *SQLiteStore) RemoveFromProject(ctx context.Context, userID, projectID string) error {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("removing project member: %w", err)
	}

	s.logger.Debug("removed project member", "project", projectID, "user", userID)
	return nil
}

func (s *SQLiteStore) projectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying project members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scanning project member: %w", err)
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}
