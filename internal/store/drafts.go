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

// GetDraft reads one draft by id. Returns ErrNotFound for an absent id.
func (s *Store) GetDraft(ctx context.Context, id uuid.UUID) (*Draft, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM drafts WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &d, nil
}

// PutDraft writes the whole draft document, inserting or replacing it.
func (s *Store) PutDraft(ctx context.Context, d *Draft) error {
	d.UpdatedAt = time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}

	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO drafts (id, owner_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET doc = $3, updated_at = $5`,
		d.ID, d.OwnerID, doc, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

// DeleteDraft removes one draft. Deleting an absent id is a no-op, which
// is what the idempotent finalization path relies on.
func (s *Store) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// ListDraftsByOwner returns a user's drafts, most recently updated first.
func (s *Store) ListDraftsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Draft, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM drafts WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		var d Draft
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDraftsBatch removes up to MaxDeleteBatch drafts in one batched
// round trip.
func (s *Store) DeleteDraftsBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxDeleteBatch {
		return fmt.Errorf("batch of %d exceeds max %d", len(ids), MaxDeleteBatch)
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`DELETE FROM drafts WHERE id = $1`, id)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batched delete: %w", err)
		}
	}
	return nil
}
