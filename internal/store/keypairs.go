// ABOUTME: Key pair store methods for the SQLite backend
// ABOUTME: Only the public key and fingerprint are stored, never the private key

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateKeyPair stores a public key for a user. Returns ErrDuplicate if
// the user already has a key pair with the same name.
func (s *SQLiteStore) CreateKeyPair(ctx context.Context, kp *KeyPair) error {
	if kp.CreatedAt.IsZero() {
		kp.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO key_pairs (owner_id, name, public_key, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		kp.OwnerID,
		kp.Name,
		kp.PublicKey,
		kp.Fingerprint,
		kp.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("key pair %s: %w", kp.Name, ErrDuplicate)
		}
		return fmt.Errorf("inserting key pair: %w", err)
	}

	s.logger.Debug("created key pair", "owner", kp.OwnerID, "name", kp.Name)
	return nil
}

// GetKeyPair retrieves a key pair by owner and name. Returns
// ErrNotFound if absent.
func (s *SQLiteStore) GetKeyPair(ctx context.Context, ownerID, name string) (*KeyPair, error) {
	query := `
		SELECT owner_id, name, public_key, fingerprint, created_at
		FROM key_pairs WHERE owner_id = ? AND name = ?
	`

	var kp KeyPair
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, ownerID, name).Scan(
		&kp.OwnerID, &kp.Name, &kp.PublicKey, &kp.Fingerprint, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning key pair: %w", err)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing key pair created_at: %w", err)
	}
	kp.CreatedAt = t

	return &kp, nil
}

// ListKeyPairs returns all key pairs owned by a user ordered by name.
func (s *SQLiteStore) ListKeyPairs(ctx context.Context, ownerID string) ([]*KeyPair, error) {
	query := `
		SELECT owner_id, name, public_key, fingerprint, created_at
		FROM key_pairs WHERE owner_id = ? ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying key pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*KeyPair
	for rows.Next() {
		var kp KeyPair
		var createdAt string
		if err := rows.Scan(&kp.OwnerID, &kp.Name, &kp.PublicKey, &kp.Fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning key pair: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing key pair created_at: %w", err)
		}
		kp.CreatedAt = t
		pairs = append(pairs, &kp)
	}
	return pairs, rows.Err()
}

// DeleteKeyPair deletes a key pair. Returns ErrNotFound if absent.
func (s *SQLiteStore) DeleteKeyPair(ctx context.Context, ownerID, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM key_pairs WHERE owner_id = ? AND name = ?`, ownerID, name)
	if err != nil {
		return fmt.Errorf("deleting key pair: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting key pair: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("key pair %s: %w", name, ErrNotFound)
	}

	s.logger.Debug("deleted key pair", "owner", ownerID, "name", name)
	return nil
}
