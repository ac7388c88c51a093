// Package promptstore is the default Postgres-backed implementation of the
// Prompt external collaborator (spec §3: "stored externally; the Task
// holds ids").
package promptstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// Prompt is one request/response pair exchanged with a model, stored for
// offline review and dataset curation (spec §3).
type Prompt struct {
	ID               string          `json:"id"`
	TaskID           string          `json:"task_id"`
	Namespace        string          `json:"namespace"`
	ThreadRef        string          `json:"thread_ref,omitempty"`
	ResponseMessage  string          `json:"response_message,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	Approved         bool            `json:"approved"`
	Flagged          bool            `json:"flagged"`
	OwnerID          string          `json:"owner_id,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`
	Model            string          `json:"model,omitempty"`
	Created          float64         `json:"created"`
}

// Store is the Postgres-backed Prompt repository.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new prompt.
func (s *Store) Create(ctx context.Context, p *Prompt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (id, task_id, namespace, thread_ref, response_message, response_schema,
			metadata, approved, flagged, owner_id, agent_id, model, created)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,COALESCE($7,'{}'::jsonb),$8,$9,NULLIF($10,''),NULLIF($11,''),NULLIF($12,''),$13)`,
		p.ID, p.TaskID, p.Namespace, p.ThreadRef, p.ResponseMessage, nullableJSON(p.ResponseSchema),
		nullableJSON(p.Metadata), p.Approved, p.Flagged, p.OwnerID, p.AgentID, p.Model, p.Created)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

// Get loads a single prompt by id.
func (s *Store) Get(ctx context.Context, id string) (*Prompt, error) {
	p := &Prompt{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, namespace, COALESCE(thread_ref,''), COALESCE(response_message,''),
			response_schema, metadata, approved, flagged, COALESCE(owner_id,''), COALESCE(agent_id,''),
			COALESCE(model,''), created
		FROM prompts WHERE id = $1`, id,
	).Scan(&p.ID, &p.TaskID, &p.Namespace, &p.ThreadRef, &p.ResponseMessage,
		&p.ResponseSchema, &p.Metadata, &p.Approved, &p.Flagged, &p.OwnerID, &p.AgentID, &p.Model, &p.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return p, nil
}

// ListForTask returns every prompt attached to a task, oldest first.
func (s *Store) ListForTask(ctx context.Context, taskID string) ([]*Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, namespace, COALESCE(thread_ref,''), COALESCE(response_message,''),
			response_schema, metadata, approved, flagged, COALESCE(owner_id,''), COALESCE(agent_id,''),
			COALESCE(model,''), created
		FROM prompts WHERE task_id = $1 ORDER BY created ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []*Prompt
	for rows.Next() {
		p := &Prompt{}
		if err := rows.Scan(&p.ID, &p.TaskID, &p.Namespace, &p.ThreadRef, &p.ResponseMessage,
			&p.ResponseSchema, &p.Metadata, &p.Approved, &p.Flagged, &p.OwnerID, &p.AgentID, &p.Model, &p.Created); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetApproved flips a prompt's approved flag — used by the
// POST /v1/tasks/{id}/prompts/{pid}/approve|fail routes.
func (s *Store) SetApproved(ctx context.Context, id string, approved bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE prompts SET approved = $2 WHERE id = $1`, id, approved)
	if err != nil {
		return fmt.Errorf("update prompt approved: %w", err)
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

// SetAllApprovedForTask approves every prompt of a task — backs the
// literal `all` pid path segment.
func (s *Store) SetAllApprovedForTask(ctx context.Context, taskID string, approved bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE prompts SET approved = $2 WHERE task_id = $1`, taskID, approved)
	if err != nil {
		return fmt.Errorf("update all prompts approved: %w", err)
	}
	return nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
