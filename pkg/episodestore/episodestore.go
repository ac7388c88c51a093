// Package episodestore is the default Postgres-backed implementation of
// the Episode/ActionEvent/Annotation external collaborator (spec §3/§4.5/
// §4.10): the append-only per-task action log and the typed annotations
// attached to individual actions.
package episodestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// Episode is the append-only log container for one task; there is exactly
// one Episode per Task (spec §3).
type Episode struct {
	ID      string  `json:"id"`
	TaskID  string  `json:"task_id"`
	Created float64 `json:"created"`
}

// ActionEvent is one recorded action within an Episode (spec §3).
type ActionEvent struct {
	ID           string          `json:"id"`
	EpisodeID    string          `json:"episode_id"`
	Seq          int64           `json:"seq"`
	State        json.RawMessage `json:"state,omitempty"`
	ActionName   string          `json:"action_name"`
	ActionParams json.RawMessage `json:"action_params,omitempty"`
	Tool         string          `json:"tool,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	EndState     json.RawMessage `json:"end_state,omitempty"`
	PromptID     string          `json:"prompt_id,omitempty"`
	Namespace    string          `json:"namespace,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	OwnerID      string          `json:"owner_id,omitempty"`
	Model        string          `json:"model,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	Hidden       bool            `json:"hidden"`
	Created      float64         `json:"created"`
}

// Annotation is a typed judgement attached to a single ActionEvent
// (spec §4.10).
type Annotation struct {
	ID            string          `json:"id"`
	ActionID      string          `json:"action_id"`
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	Annotator     string          `json:"annotator"`
	AnnotatorType string          `json:"annotator_type"`
	Created       float64         `json:"created"`
}

// Store is the Postgres-backed Episode/ActionEvent/Annotation repository.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateEpisode inserts the single Episode auto-created alongside a task.
func (s *Store) CreateEpisode(ctx context.Context, e *Episode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, task_id, created) VALUES ($1,$2,$3)`, e.ID, e.TaskID, e.Created)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// GetEpisodeForTask loads a task's single episode.
func (s *Store) GetEpisodeForTask(ctx context.Context, taskID string) (*Episode, error) {
	e := &Episode{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, created FROM episodes WHERE task_id = $1`, taskID,
	).Scan(&e.ID, &e.TaskID, &e.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return e, nil
}

// AppendAction inserts a new action event. Callers are responsible for
// holding the per-task advisory lock described in spec §9 so seq ordering
// and the publisher's prev_action/event_number fields stay correct; this
// method only guarantees the seq itself is monotonic via BIGSERIAL.
func (s *Store) AppendAction(ctx context.Context, a *ActionEvent) error {
	return s.db.QueryRowContext(ctx, `
		INSERT INTO action_events (id, episode_id, state, action_name, action_params, tool, result,
			end_state, prompt_id, namespace, metadata, owner_id, model, agent_id, hidden, created)
		VALUES ($1,$2,$3,$4,COALESCE($5,'{}'::jsonb),NULLIF($6,''),$7,$8,NULLIF($9,''),$10,
			COALESCE($11,'{}'::jsonb),$12,NULLIF($13,''),NULLIF($14,''),$15,$16)
		RETURNING seq`,
		a.ID, a.EpisodeID, nullableJSON(a.State), a.ActionName, nullableJSON(a.ActionParams), a.Tool,
		nullableJSON(a.Result), nullableJSON(a.EndState), a.PromptID, a.Namespace, nullableJSON(a.Metadata),
		a.OwnerID, a.Model, a.AgentID, a.Hidden, a.Created,
	).Scan(&a.Seq)
}

// ListActions returns every action event of an episode, in insertion order.
func (s *Store) ListActions(ctx context.Context, episodeID string) ([]*ActionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, episode_id, seq, state, action_name, action_params, COALESCE(tool,''), result,
			end_state, COALESCE(prompt_id,''), COALESCE(namespace,''), metadata, COALESCE(owner_id,''),
			COALESCE(model,''), COALESCE(agent_id,''), hidden, created
		FROM action_events WHERE episode_id = $1 ORDER BY seq ASC`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []*ActionEvent
	for rows.Next() {
		a := &ActionEvent{}
		if err := rows.Scan(&a.ID, &a.EpisodeID, &a.Seq, &a.State, &a.ActionName, &a.ActionParams,
			&a.Tool, &a.Result, &a.EndState, &a.PromptID, &a.Namespace, &a.Metadata, &a.OwnerID,
			&a.Model, &a.AgentID, &a.Hidden, &a.Created); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAction loads a single action event by id.
func (s *Store) GetAction(ctx context.Context, id string) (*ActionEvent, error) {
	a := &ActionEvent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, episode_id, seq, state, action_name, action_params, COALESCE(tool,''), result,
			end_state, COALESCE(prompt_id,''), COALESCE(namespace,''), metadata, COALESCE(owner_id,''),
			COALESCE(model,''), COALESCE(agent_id,''), hidden, created
		FROM action_events WHERE id = $1`, id,
	).Scan(&a.ID, &a.EpisodeID, &a.Seq, &a.State, &a.ActionName, &a.ActionParams,
		&a.Tool, &a.Result, &a.EndState, &a.PromptID, &a.Namespace, &a.Metadata, &a.OwnerID,
		&a.Model, &a.AgentID, &a.Hidden, &a.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

// SetHidden implements hide_action(id, bool).
func (s *Store) SetHidden(ctx context.Context, id string, hidden bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE action_events SET hidden = $2 WHERE id = $1`, id, hidden)
	if err != nil {
		return fmt.Errorf("set hidden: %w", err)
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

// DeleteAction implements delete_action(id).
func (s *Store) DeleteAction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
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

// DeleteAllActions implements delete_all_actions().
func (s *Store) DeleteAllActions(ctx context.Context, episodeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM action_events WHERE episode_id = $1`, episodeID)
	if err != nil {
		return fmt.Errorf("delete all actions: %w", err)
	}
	return nil
}

// CreateAnnotation attaches a typed annotation to an action (spec §4.10).
func (s *Store) CreateAnnotation(ctx context.Context, a *Annotation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviewable_annotations (id, action_id, key, value, annotator, annotator_type, created)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.ActionID, a.Key, []byte(a.Value), a.Annotator, a.AnnotatorType, a.Created)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

// ListAnnotationsForAction returns every annotation attached to an action.
func (s *Store) ListAnnotationsForAction(ctx context.Context, actionID string) ([]*Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_id, key, value, annotator, annotator_type, created
		FROM reviewable_annotations WHERE action_id = $1 ORDER BY created ASC`, actionID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []*Annotation
	for rows.Next() {
		a := &Annotation{}
		if err := rows.Scan(&a.ID, &a.ActionID, &a.Key, &a.Value, &a.Annotator, &a.AnnotatorType, &a.Created); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAnnotation loads a single annotation by id (used to resolve its
// resource_id when reviewing it, since annotations share the Review
// upsert policy of spec §4.6).
func (s *Store) GetAnnotation(ctx context.Context, id string) (*Annotation, error) {
	a := &Annotation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, action_id, key, value, annotator, annotator_type, created
		FROM reviewable_annotations WHERE id = $1`, id,
	).Scan(&a.ID, &a.ActionID, &a.Key, &a.Value, &a.Annotator, &a.AnnotatorType, &a.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound
		}
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return a, nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
