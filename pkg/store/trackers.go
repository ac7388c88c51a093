package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// CreateTracker inserts a minimal tracker row. Runtime hosting of trackers
// (containers/pods) is an explicit Non-goal; this exists only to keep the
// persistence layout of §6 complete.
func (s *Store) CreateTracker(ctx context.Context, t *Tracker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trackers (id, name, status, created) VALUES ($1,$2,$3,$4)`,
		t.ID, t.Name, t.Status, t.Created)
	if err != nil {
		return fmt.Errorf("insert tracker: %w", err)
	}
	return nil
}

// GetTracker loads a single tracker by id.
func (s *Store) GetTracker(ctx context.Context, id string) (*Tracker, error) {
	t := &Tracker{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, created FROM trackers WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Status, &t.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get tracker: %w", err)
	}
	return t, nil
}

// SetTrackerStatus updates a tracker's reported status.
func (s *Store) SetTrackerStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE trackers SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update tracker status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.ErrNotFound
	}
	return nil
}
