package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// CreateFlag inserts a flag row. Payload is already-marshaled JSON for the
// type-specific FlagModel (spec §4.10's generic Flag[FlagResult,FlagModel,FlagType]).
func (s *Store) CreateFlag(ctx context.Context, f *Flag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (id, type, flag, result, created) VALUES ($1,$2,$3,$4,$5)`,
		f.ID, f.Type, []byte(f.Payload), nullableJSON(f.Result), f.Created)
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

// GetFlag loads a single flag by id.
func (s *Store) GetFlag(ctx context.Context, id string) (*Flag, error) {
	f := &Flag{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, flag, result, created FROM flags WHERE id = $1`, id,
	).Scan(&f.ID, &f.Type, &f.Payload, &f.Result, &f.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get flag: %w", err)
	}
	return f, nil
}

// SetFlagResult records the evaluated result of a flag.
func (s *Store) SetFlagResult(ctx context.Context, id string, result []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE flags SET result = $2 WHERE id = $1`, id, result)
	if err != nil {
		return fmt.Errorf("update flag result: %w", err)
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

// FindFlagsByType returns every flag of the given type, newest first.
func (s *Store) FindFlagsByType(ctx context.Context, flagType string) ([]*Flag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, flag, result, created FROM flags WHERE type = $1 ORDER BY created DESC`, flagType)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	var out []*Flag
	for rows.Next() {
		f := &Flag{}
		if err := rows.Scan(&f.ID, &f.Type, &f.Payload, &f.Result, &f.Created); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
