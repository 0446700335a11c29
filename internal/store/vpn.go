// ABOUTME: VPN allocation store methods for the SQLite backend
// ABOUTME: Records the exclusive (address, port) lease held by a project

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateVPN records a port lease for a project. Returns ErrDuplicate if
// the project already holds a lease or the (address, port) pair is
// leased to another project.
func (s *SQLiteStore) CreateVPN(ctx context.Context, v *VPNAllocation) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO vpn_allocations (project_id, address, port, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		v.ProjectID,
		v.Address,
		v.Port,
		v.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("vpn allocation for %s: %w", v.ProjectID, ErrDuplicate)
		}
		return fmt.Errorf("inserting vpn allocation: %w", err)
	}

	s.logger.Debug("created vpn allocation", "project", v.ProjectID, "address", v.Address, "port", v.Port)
	return nil
}

// GetVPN retrieves the port lease held by a project. Returns
// ErrNotFound if the project has no allocation.
func (s *SQLiteStore) GetVPN(ctx context.Context, projectID string) (*VPNAllocation, error) {
	query := `
		SELECT project_id, address, port, created_at
		FROM vpn_allocations WHERE project_id = ?
	`

	var v VPNAllocation
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&v.ProjectID, &v.Address, &v.Port, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning vpn allocation: %w", err)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing vpn created_at: %w", err)
	}
	v.CreatedAt = t

	return &v, nil
}

// DeleteVPN removes a project's port lease record. Returns ErrNotFound
// if the project holds none.
func (s *SQLiteStore) DeleteVPN(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vpn_allocations WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("deleting vpn allocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting vpn allocation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("vpn allocation for %s: %w", projectID, ErrNotFound)
	}

	s.logger.Debug("deleted vpn allocation", "project", projectID)
	return nil
}
