// Package reviewstore is the default Postgres-backed implementation of the
// Review primitive (spec §1: "review primitives — consumed as external
// libraries with the contracts given in §6"). Review rows are keyed
// generically by (resource_type, resource_id) so the same store backs both
// task-level and action-level reviews (and, per spec §4.10, annotation
// reviews) without per-resource-kind tables.
package reviewstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// Review is one party's binary judgement of a task, action, or annotation
// (spec §3).
type Review struct {
	ID           string   `json:"id"`
	Reviewer     string   `json:"reviewer"`
	ReviewerType string   `json:"reviewer_type"`
	Approved     bool     `json:"approved"`
	Reason       string   `json:"reason,omitempty"`
	Correction   string   `json:"correction,omitempty"`
	ResourceType string   `json:"resource_type"`
	ResourceID   string   `json:"resource_id"`
	Created      float64  `json:"created"`
	Updated      *float64 `json:"updated,omitempty"`
}

// Store is the Postgres-backed Review repository.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert implements the review upsert policy shared by §4.6 (task/action
// reviews) and §4.10 (annotation reviews): if a Review exists with matching
// (resource_type, resource_id, reviewer, reviewer_type), it is updated in
// place with `updated` set; otherwise a new Review is created. Relies on
// the table's unique constraint rather than a check-then-write race.
func (s *Store) Upsert(ctx context.Context, r *Review, now float64) (*Review, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO reviews (id, reviewer, reviewer_type, approved, reason, correction, resource_type, resource_id, created, updated)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7,$8,$9,NULL)
		ON CONFLICT (resource_type, resource_id, reviewer, reviewer_type)
		DO UPDATE SET approved = EXCLUDED.approved, reason = EXCLUDED.reason,
			correction = EXCLUDED.correction, updated = $10
		RETURNING id, reviewer, reviewer_type, approved, COALESCE(reason,''), COALESCE(correction,''),
			resource_type, resource_id, created, updated`,
		r.ID, r.Reviewer, r.ReviewerType, r.Approved, r.Reason, r.Correction,
		r.ResourceType, r.ResourceID, now, now,
	)

	out := &Review{}
	var updated sql.NullFloat64
	if err := row.Scan(&out.ID, &out.Reviewer, &out.ReviewerType, &out.Approved, &out.Reason,
		&out.Correction, &out.ResourceType, &out.ResourceID, &out.Created, &updated); err != nil {
		return nil, fmt.Errorf("upsert review: %w", err)
	}
	if updated.Valid {
		out.Updated = &updated.Float64
	}
	return out, nil
}

// ListForResource returns every review of a single resource
// (task/action/annotation), identified by its (type, id) pair.
func (s *Store) ListForResource(ctx context.Context, resourceType, resourceID string) ([]*Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reviewer, reviewer_type, approved, COALESCE(reason,''), COALESCE(correction,''),
			resource_type, resource_id, created, updated
		FROM reviews WHERE resource_type = $1 AND resource_id = $2 ORDER BY created ASC`,
		resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []*Review
	for rows.Next() {
		r := &Review{}
		var updated sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Reviewer, &r.ReviewerType, &r.Approved, &r.Reason, &r.Correction,
			&r.ResourceType, &r.ResourceID, &r.Created, &updated); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if updated.Valid {
			r.Updated = &updated.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListForResources batch-loads reviews for many resources of the same type
// in one round trip — used by the Review Engine's recompute pass so
// checking every action of an episode never costs one query per action.
func (s *Store) ListForResources(ctx context.Context, resourceType string, resourceIDs []string) (map[string][]*Review, error) {
	out := map[string][]*Review{}
	if len(resourceIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reviewer, reviewer_type, approved, COALESCE(reason,''), COALESCE(correction,''),
			resource_type, resource_id, created, updated
		FROM reviews WHERE resource_type = $1 AND resource_id = ANY($2)`, resourceType, resourceIDs)
	if err != nil {
		return nil, fmt.Errorf("batch list reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := &Review{}
		var updated sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Reviewer, &r.ReviewerType, &r.Approved, &r.Reason, &r.Correction,
			&r.ResourceType, &r.ResourceID, &r.Created, &updated); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if updated.Valid {
			r.Updated = &updated.Float64
		}
		out[r.ResourceID] = append(out[r.ResourceID], r)
	}
	return out, rows.Err()
}

// Get loads a single review by id.
func (s *Store) Get(ctx context.Context, id string) (*Review, error) {
	r := &Review{}
	var updated sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reviewer, reviewer_type, approved, COALESCE(reason,''), COALESCE(correction,''),
			resource_type, resource_id, created, updated
		FROM reviews WHERE id = $1`, id,
	).Scan(&r.ID, &r.Reviewer, &r.ReviewerType, &r.Approved, &r.Reason, &r.Correction,
		&r.ResourceType, &r.ResourceID, &r.Created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	if updated.Valid {
		r.Updated = &updated.Float64
	}
	return r, nil
}
