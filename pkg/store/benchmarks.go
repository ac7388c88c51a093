package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// CreateBenchmark inserts a benchmark and its template associations. A
// duplicate name surfaces as ErrConflict via the table's unique constraint
// rather than a pre-check query, avoiding a race between check and insert.
func (s *Store) CreateBenchmark(ctx context.Context, b *Benchmark) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO benchmarks (id, name, description, owner_id, labels, tags, public, created)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			b.ID, b.Name, b.Description, b.OwnerID, mustJSON(b.Labels), mustJSON(b.Tags), b.Public, b.Created)
		if err != nil {
			if isUniqueViolation(err) {
				return apierr.ErrConflict
			}
			return fmt.Errorf("insert benchmark: %w", err)
		}
		for _, templateID := range b.TemplateIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO benchmark_task_association (benchmark_id, template_id) VALUES ($1,$2)`,
				b.ID, templateID); err != nil {
				return fmt.Errorf("associate template %s: %w", templateID, err)
			}
		}
		return nil
	})
}

// AddTemplateToBenchmark attaches an additional template to an existing benchmark.
func (s *Store) AddTemplateToBenchmark(ctx context.Context, benchmarkID, templateID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO benchmark_task_association (benchmark_id, template_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		benchmarkID, templateID)
	if err != nil {
		return fmt.Errorf("associate template: %w", err)
	}
	return nil
}

// GetBenchmark loads a single benchmark with its template ids.
func (s *Store) GetBenchmark(ctx context.Context, id string) (*Benchmark, error) {
	benchmarks, err := s.queryBenchmarks(ctx, `WHERE id = $1`, []any{id})
	if err != nil {
		return nil, err
	}
	if len(benchmarks) == 0 {
		return nil, apierr.ErrNotFound
	}
	return benchmarks[0], nil
}

// GetBenchmarkByName loads a single benchmark by its unique name.
func (s *Store) GetBenchmarkByName(ctx context.Context, name string) (*Benchmark, error) {
	benchmarks, err := s.queryBenchmarks(ctx, `WHERE name = $1`, []any{name})
	if err != nil {
		return nil, err
	}
	if len(benchmarks) == 0 {
		return nil, apierr.ErrNotFound
	}
	return benchmarks[0], nil
}

// FindBenchmarks returns every benchmark visible to owner: its own plus public ones.
func (s *Store) FindBenchmarks(ctx context.Context, ownerID string) ([]*Benchmark, error) {
	return s.queryBenchmarks(ctx, `WHERE owner_id = $1 OR public = TRUE ORDER BY created DESC`, []any{ownerID})
}

// DeleteBenchmark removes a benchmark; its template associations cascade
// via the foreign key, the templates themselves are left in place (they
// may still be referenced by a past Eval's materialised tasks).
func (s *Store) DeleteBenchmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM benchmarks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete benchmark: %w", err)
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

func (s *Store) queryBenchmarks(ctx context.Context, where string, args []any) ([]*Benchmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description,''), owner_id, labels, tags, public, created
		FROM benchmarks `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query benchmarks: %w", err)
	}
	defer rows.Close()

	var out []*Benchmark
	for rows.Next() {
		b := &Benchmark{}
		var labelsJSON, tagsJSON []byte
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.OwnerID, &labelsJSON, &tagsJSON, &b.Public, &b.Created); err != nil {
			return nil, fmt.Errorf("scan benchmark: %w", err)
		}
		_ = json.Unmarshal(labelsJSON, &b.Labels)
		_ = json.Unmarshal(tagsJSON, &b.Tags)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range out {
		templateRows, err := s.db.QueryContext(ctx,
			`SELECT template_id FROM benchmark_task_association WHERE benchmark_id = $1`, b.ID)
		if err != nil {
			return nil, fmt.Errorf("query benchmark templates: %w", err)
		}
		for templateRows.Next() {
			var templateID string
			if err := templateRows.Scan(&templateID); err != nil {
				templateRows.Close()
				return nil, err
			}
			b.TemplateIDs = append(b.TemplateIDs, templateID)
		}
		templateRows.Close()
	}
	return out, nil
}

// CreateEval inserts an eval materialised from a benchmark's templates,
// along with its generated task associations.
func (s *Store) CreateEval(ctx context.Context, e *Eval) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO evals (id, benchmark_id, assigned_to, assigned_type, owner_id, created)
			VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6)`,
			e.ID, e.BenchmarkID, e.AssignedTo, e.AssignedType, e.OwnerID, e.Created)
		if err != nil {
			return fmt.Errorf("insert eval: %w", err)
		}
		for _, taskID := range e.TaskIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO eval_task_association (eval_id, task_id) VALUES ($1,$2)`,
				e.ID, taskID); err != nil {
				return fmt.Errorf("associate eval task %s: %w", taskID, err)
			}
		}
		return nil
	})
}

// GetEval loads a single eval with its task ids.
func (s *Store) GetEval(ctx context.Context, id string) (*Eval, error) {
	evals, err := s.queryEvals(ctx, `WHERE id = $1`, []any{id})
	if err != nil {
		return nil, err
	}
	if len(evals) == 0 {
		return nil, apierr.ErrNotFound
	}
	return evals[0], nil
}

// FindEvalsForBenchmark returns every eval run against a benchmark.
func (s *Store) FindEvalsForBenchmark(ctx context.Context, benchmarkID string) ([]*Eval, error) {
	return s.queryEvals(ctx, `WHERE benchmark_id = $1 ORDER BY created DESC`, []any{benchmarkID})
}

// FindEvalsForOwner returns every eval owned by ownerID, across all benchmarks.
func (s *Store) FindEvalsForOwner(ctx context.Context, ownerID string) ([]*Eval, error) {
	return s.queryEvals(ctx, `WHERE owner_id = $1 ORDER BY created DESC`, []any{ownerID})
}

// DeleteEval removes an eval; its task associations cascade via the
// foreign key. The tasks the eval materialised are left in place.
func (s *Store) DeleteEval(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM evals WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete eval: %w", err)
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

func (s *Store) queryEvals(ctx context.Context, where string, args []any) ([]*Eval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, benchmark_id, COALESCE(assigned_to,''), COALESCE(assigned_type,''), owner_id, created
		FROM evals `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query evals: %w", err)
	}
	defer rows.Close()

	var out []*Eval
	for rows.Next() {
		e := &Eval{}
		if err := rows.Scan(&e.ID, &e.BenchmarkID, &e.AssignedTo, &e.AssignedType, &e.OwnerID, &e.Created); err != nil {
			return nil, fmt.Errorf("scan eval: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, e := range out {
		taskRows, err := s.db.QueryContext(ctx,
			`SELECT task_id FROM eval_task_association WHERE eval_id = $1`, e.ID)
		if err != nil {
			return nil, fmt.Errorf("query eval tasks: %w", err)
		}
		for taskRows.Next() {
			var taskID string
			if err := taskRows.Scan(&taskID); err != nil {
				taskRows.Close()
				return nil, err
			}
			e.TaskIDs = append(e.TaskIDs, taskID)
		}
		taskRows.Close()
	}
	return out, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), regardless of which driver wrapper produced it.
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
