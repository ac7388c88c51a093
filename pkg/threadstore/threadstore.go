// Package threadstore is the default Postgres-backed implementation of the
// Thread/RoleMessage external collaborator (spec §3: "opaque to the core;
// the Task only references thread ids and invokes post(...) on a thread").
// Grounded on pkg/store's transaction/scan idiom, which is itself grounded
// on the teacher's pkg/events/publisher.go raw ExecContext pattern.
package threadstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// FeedThreadName is the default thread every task auto-creates (spec §3).
const FeedThreadName = "feed"

// Thread is a named conversation channel scoped to a task.
type Thread struct {
	ID      string  `json:"id"`
	TaskID  string  `json:"task_id"`
	Name    string  `json:"name"`
	Created float64 `json:"created"`
}

// RoleMessage is one posted message within a thread.
type RoleMessage struct {
	ID       int64           `json:"id"`
	ThreadID string          `json:"thread_id"`
	Role     string          `json:"role"`
	Text     string          `json:"text"`
	Images   []string        `json:"images"`
	Private  bool            `json:"private"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Created  float64         `json:"created"`
}

// Store is the Postgres-backed Thread/RoleMessage repository.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateThread inserts a new thread for a task, typically the auto-created
// feed thread on task creation.
func (s *Store) CreateThread(ctx context.Context, t *Thread) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, task_id, name, created) VALUES ($1,$2,$3,$4)`,
		t.ID, t.TaskID, t.Name, t.Created)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

// GetThread loads a single thread by id.
func (s *Store) GetThread(ctx context.Context, id string) (*Thread, error) {
	t := &Thread{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, name, created FROM threads WHERE id = $1`, id,
	).Scan(&t.ID, &t.TaskID, &t.Name, &t.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

// ListThreads returns every thread belonging to a task.
func (s *Store) ListThreads(ctx context.Context, taskID string) ([]*Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, name, created FROM threads WHERE task_id = $1 ORDER BY created ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []*Thread
	for rows.Next() {
		t := &Thread{}
		if err := rows.Scan(&t.ID, &t.TaskID, &t.Name, &t.Created); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread and its messages (ON DELETE CASCADE).
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
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

// Post appends a role message to a thread — the sole mutation the Task
// aggregate invokes on a Thread per spec §3.
func (s *Store) Post(ctx context.Context, threadID, role, text string, images []string, private bool, metadata json.RawMessage, created float64) (*RoleMessage, error) {
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal images: %w", err)
	}
	m := &RoleMessage{ThreadID: threadID, Role: role, Text: text, Images: images, Private: private, Metadata: metadata, Created: created}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO role_messages (thread_id, role, text, images, private, metadata, created)
		VALUES ($1,$2,$3,$4,$5,COALESCE($6,'{}'::jsonb),$7) RETURNING id`,
		threadID, role, text, imagesJSON, private, nullableJSON(metadata), created,
	).Scan(&m.ID)
	if err != nil {
		return nil, fmt.Errorf("insert role message: %w", err)
	}
	return m, nil
}

// ListMessages returns every message in a thread, oldest first.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]*RoleMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, text, images, private, metadata, created
		FROM role_messages WHERE thread_id = $1 ORDER BY id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*RoleMessage
	for rows.Next() {
		m := &RoleMessage{}
		var imagesJSON []byte
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Text, &imagesJSON, &m.Private, &m.Metadata, &m.Created); err != nil {
			return nil, fmt.Errorf("scan role message: %w", err)
		}
		_ = json.Unmarshal(imagesJSON, &m.Images)
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
