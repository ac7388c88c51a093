package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// Store is the core Postgres-backed repository over the schema in
// pkg/database/migrations/0001_core_schema.up.sql. It is the sole owner
// of SQL for tasks, tags/labels, review requirements, pending reviewers,
// templates, benchmarks, evals, trackers and flags — every other package
// composes Store rather than touching *sql.DB directly.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GenerateVersionHash computes the SHA-256 hex digest of a task's owner,
// description, device type, max steps and JSON-encoded parameters — used
// to detect that a task was materially redefined underneath an in-flight
// optimistic update. No other field (status, labels, tags, assignment,
// output, ...) is hashed, so changing only those leaves the version as it
// was.
func GenerateVersionHash(ownerID, description, deviceType string, maxSteps int, parameters map[string]any) string {
	paramsJSON, _ := json.Marshal(parameters)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s", ownerID, description, deviceType, maxSteps, paramsJSON)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// CreateTask inserts a new task row along with its tag/label associations.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	paramsJSON, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, owner_id, created_by, parent_id, description, max_steps,
				device, device_type, expect_schema, project, version, status,
				assigned_to, assigned_type, parameters, episode_id,
				thread_ids, prompt_ids, created
			) VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,NULLIF($8,''),$9,$10,$11,$12,
				NULLIF($13,''),NULLIF($14,''),$15,NULLIF($16,''),$17,$18,$19)`,
			t.ID, t.OwnerID, t.CreatedBy, t.ParentID, t.Description, t.MaxSteps,
			t.Device, t.DeviceType, nullableJSON(t.ExpectSchema), t.Project, t.Version, t.Status,
			t.AssignedTo, t.AssignedType, paramsJSON, t.EpisodeID,
			mustJSON(t.ThreadIDs), mustJSON(t.PromptIDs), t.Created,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if err := setTagsTx(ctx, tx, "task_tag_association", "task_id", t.ID, t.Tags); err != nil {
			return err
		}
		return setLabelsTx(ctx, tx, "task_label_association", "task_id", t.ID, t.Labels)
	})
}

// GetTask loads a single task with its tags and labels populated.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	tasks, err := s.queryTasks(ctx, `WHERE t.id = $1`, []any{id})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, apierr.ErrNotFound
	}
	return tasks[0], nil
}

// FindTasks returns tasks owned by any of owners, narrowed by filters,
// ordered by created descending. Tag/label filters join against the
// normalised association tables — never a substring match against JSON.
func (s *Store) FindTasks(ctx context.Context, owners []string, filters TaskFilters) ([]*Task, error) {
	if len(owners) == 0 {
		return nil, nil
	}

	where := "WHERE t.owner_id = ANY($1)"
	args := []any{pqStringArray(owners)}
	n := 2

	addFilter := func(clause, value string) {
		if value == "" {
			return
		}
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, value)
		n++
	}
	addFilter("t.assigned_to", filters.AssignedTo)
	addFilter("t.assigned_type", filters.AssignedType)
	addFilter("t.device_type", filters.DeviceType)
	addFilter("t.status", filters.Status)
	addFilter("t.id", filters.TaskID)
	if filters.ParentID != "" {
		where += fmt.Sprintf(" AND t.parent_id = $%d", n)
		args = append(args, filters.ParentID)
		n++
	}

	for _, tag := range filters.Tags {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM task_tag_association tta JOIN tags g ON g.id = tta.tag_id
			WHERE tta.task_id = t.id AND g.tag = $%d)`, n)
		args = append(args, tag)
		n++
	}
	for k, v := range filters.Labels {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM task_label_association tla JOIN labels l ON l.id = tla.label_id
			WHERE tla.task_id = t.id AND l.key = $%d AND l.value = $%d)`, n, n+1)
		args = append(args, k, v)
		n += 2
	}

	return s.queryTasks(ctx, where+" ORDER BY t.created DESC", args)
}

// FindManyLite batch-loads tasks by id, with their parameters, tags and
// labels, so callers never issue one Store call per task (spec §4.3).
// Reviews and review requirements are not loaded.
func (s *Store) FindManyLite(ctx context.Context, ids []string) ([]*Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryTasks(ctx, `WHERE t.id = ANY($1)`, []any{pqStringArray(ids)})
}

func (s *Store) queryTasks(ctx context.Context, where string, args []any) ([]*Task, error) {
	query := `SELECT t.id, t.owner_id, t.created_by, COALESCE(t.parent_id,''), COALESCE(t.description,''),
		t.max_steps, COALESCE(t.device,''), COALESCE(t.device_type,''), t.expect_schema, COALESCE(t.project,''),
		t.version, t.status, COALESCE(t.assigned_to,''), COALESCE(t.assigned_type,''), t.parameters,
		t.output, COALESCE(t.error,''), COALESCE(t.episode_id,''), t.thread_ids, t.prompt_ids,
		t.created, t.started, t.completed
		FROM tasks t ` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	var ids []string
	byID := map[string]*Task{}
	for rows.Next() {
		t := &Task{}
		var paramsJSON, threadsJSON, promptsJSON []byte
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.CreatedBy, &t.ParentID, &t.Description,
			&t.MaxSteps, &t.Device, &t.DeviceType, &t.ExpectSchema, &t.Project,
			&t.Version, &t.Status, &t.AssignedTo, &t.AssignedType, &paramsJSON,
			&t.Output, &t.Error, &t.EpisodeID, &threadsJSON, &promptsJSON,
			&t.Created, &t.Started, &t.Completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		_ = json.Unmarshal(paramsJSON, &t.Parameters)
		_ = json.Unmarshal(threadsJSON, &t.ThreadIDs)
		_ = json.Unmarshal(promptsJSON, &t.PromptIDs)
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	if err := s.attachTags(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := s.attachLabels(ctx, ids, byID); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) attachTags(ctx context.Context, ids []string, byID map[string]*Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tta.task_id, g.tag FROM task_tag_association tta
		JOIN tags g ON g.id = tta.tag_id WHERE tta.task_id = ANY($1)`, pqStringArray(ids))
	if err != nil {
		return fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, tag string
		if err := rows.Scan(&taskID, &tag); err != nil {
			return err
		}
		if t, ok := byID[taskID]; ok {
			t.Tags = append(t.Tags, tag)
		}
	}
	return rows.Err()
}

func (s *Store) attachLabels(ctx context.Context, ids []string, byID map[string]*Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tla.task_id, l.key, l.value FROM task_label_association tla
		JOIN labels l ON l.id = tla.label_id WHERE tla.task_id = ANY($1)`, pqStringArray(ids))
	if err != nil {
		return fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, key, value string
		if err := rows.Scan(&taskID, &key, &value); err != nil {
			return err
		}
		if t, ok := byID[taskID]; ok {
			if t.Labels == nil {
				t.Labels = map[string]string{}
			}
			t.Labels[key] = value
		}
	}
	return rows.Err()
}

// UpdateTask persists the full row plus tag/label associations. If
// expectVersion is non-empty, the write is rejected with ErrConflict
// unless the stored version still matches (optimistic concurrency).
func (s *Store) UpdateTask(ctx context.Context, t *Task, expectVersion string) error {
	paramsJSON, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `UPDATE tasks SET description=$2, max_steps=$3, device=$4, device_type=NULLIF($5,''),
			project=$6, version=$7, status=$8, assigned_to=NULLIF($9,''), assigned_type=NULLIF($10,''),
			parameters=$11, output=$12, error=$13, episode_id=NULLIF($14,''),
			thread_ids=$15, prompt_ids=$16, started=$17, completed=$18
			WHERE id=$1`
		args := []any{t.ID, t.Description, t.MaxSteps, t.Device, t.DeviceType, t.Project,
			t.Version, t.Status, t.AssignedTo, t.AssignedType, paramsJSON, nullableJSON(t.Output),
			t.Error, t.EpisodeID, mustJSON(t.ThreadIDs), mustJSON(t.PromptIDs), t.Started, t.Completed}
		if expectVersion != "" {
			query += fmt.Sprintf(" AND version=$%d", len(args)+1)
			args = append(args, expectVersion)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if expectVersion != "" {
				return apierr.ErrConflict
			}
			return apierr.ErrNotFound
		}
		if err := setTagsTx(ctx, tx, "task_tag_association", "task_id", t.ID, t.Tags); err != nil {
			return err
		}
		return setLabelsTx(ctx, tx, "task_label_association", "task_id", t.ID, t.Labels)
	})
}

// DeleteTask removes a task and its associations (cascading FKs handle
// task_tag_association/task_label_association/review_requirements/pending_reviewers).
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
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

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// setTagsTx replaces a task/template's tag associations, upserting any new
// tag strings into the shared tags table first.
func setTagsTx(ctx context.Context, tx *sql.Tx, assocTable, fkColumn, ownerID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=$1`, assocTable, fkColumn), ownerID); err != nil {
		return fmt.Errorf("clear %s: %w", assocTable, err)
	}
	for _, tag := range tags {
		var tagID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tags (tag) VALUES ($1)
			ON CONFLICT (tag) DO UPDATE SET tag=EXCLUDED.tag
			RETURNING id`, tag).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", tag, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s, tag_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, assocTable, fkColumn),
			ownerID, tagID); err != nil {
			return fmt.Errorf("associate tag %q: %w", tag, err)
		}
	}
	return nil
}

func setLabelsTx(ctx context.Context, tx *sql.Tx, assocTable, fkColumn, ownerID string, labels map[string]string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=$1`, assocTable, fkColumn), ownerID); err != nil {
		return fmt.Errorf("clear %s: %w", assocTable, err)
	}
	for k, v := range labels {
		var labelID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO labels (key, value) VALUES ($1,$2)
			ON CONFLICT (key, value) DO UPDATE SET key=EXCLUDED.key
			RETURNING id`, k, v).Scan(&labelID)
		if err != nil {
			return fmt.Errorf("upsert label %q=%q: %w", k, v, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s, label_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, assocTable, fkColumn),
			ownerID, labelID); err != nil {
			return fmt.Errorf("associate label %q=%q: %w", k, v, err)
		}
	}
	return nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("[]")
	}
	return b
}

// pqStringArray exists to document the call sites: pgx's stdlib driver
// encodes a Go []string as a Postgres text[] automatically, so ANY($n)
// works directly against database/sql args without pq.Array().
func pqStringArray(ss []string) []string {
	return ss
}
