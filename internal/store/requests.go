package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetRequest reads one final request by id. Returns ErrNotFound for an
// absent id.
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*FinalRequest, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM requests WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var r FinalRequest
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id, err)
	}
	return &r, nil
}

// PutRequest writes the whole final-request document. The id is the
// originating draft id, so a concurrent second finalizer overwrites the
// same key with a near-identical record instead of creating a duplicate.
func (s *Store) PutRequest(ctx context.Context, r *FinalRequest) error {
	r.UpdatedAt = time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.UpdatedAt
	}

	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO requests (id, owner_id, shared, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET shared = $3, doc = $4, updated_at = $6`,
		r.ID, r.OwnerID, r.Shared, doc, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// ListRequestsByOwner returns a user's final requests, most recently
// updated first.
func (s *Store) ListRequestsByOwner(ctx context.Context, ownerID uuid.UUID) ([]FinalRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM requests WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []FinalRequest
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		var r FinalRequest
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
