package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// CreateReviewRequirement inserts a requirement row for a task.
func (s *Store) CreateReviewRequirement(ctx context.Context, r *ReviewRequirement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_requirements (id, task_id, number_required, users, agents, review_groups, types, created)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.TaskID, r.NumberRequired, mustJSON(r.Users), mustJSON(r.Agents), mustJSON(r.Groups), mustJSON(r.Types), r.Created)
	if err != nil {
		return fmt.Errorf("insert review requirement: %w", err)
	}
	return nil
}

// GetReviewRequirementsForTask loads every review requirement attached to a task.
func (s *Store) GetReviewRequirementsForTask(ctx context.Context, taskID string) ([]*ReviewRequirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, number_required, users, agents, review_groups, types, created, updated
		FROM review_requirements WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query review requirements: %w", err)
	}
	defer rows.Close()

	var out []*ReviewRequirement
	for rows.Next() {
		r := &ReviewRequirement{}
		var usersJSON, agentsJSON, groupsJSON, typesJSON []byte
		var updated sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.TaskID, &r.NumberRequired, &usersJSON, &agentsJSON, &groupsJSON, &typesJSON, &r.Created, &updated); err != nil {
			return nil, fmt.Errorf("scan review requirement: %w", err)
		}
		_ = json.Unmarshal(usersJSON, &r.Users)
		_ = json.Unmarshal(agentsJSON, &r.Agents)
		_ = json.Unmarshal(groupsJSON, &r.Groups)
		_ = json.Unmarshal(typesJSON, &r.Types)
		if updated.Valid {
			r.Updated = &updated.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReviewRequirement removes a requirement; its pending reviewer rows
// cascade via the foreign key.
func (s *Store) DeleteReviewRequirement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM review_requirements WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete review requirement: %w", err)
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

// GetPendingReviewers returns the current pending-reviewer projection for a task.
func (s *Store) GetPendingReviewers(ctx context.Context, taskID string) ([]*PendingReviewer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, COALESCE(user_id,''), COALESCE(agent_id,''), requirement_id
		FROM pending_reviewers WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query pending reviewers: %w", err)
	}
	defer rows.Close()

	var out []*PendingReviewer
	for rows.Next() {
		p := &PendingReviewer{}
		if err := rows.Scan(&p.ID, &p.TaskID, &p.UserID, &p.AgentID, &p.RequirementID); err != nil {
			return nil, fmt.Errorf("scan pending reviewer: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindPendingReviewTaskIDs implements pending_reviews(user? | agent?) (spec
// §4.6): the distinct task ids on which the given party is listed pending,
// across every task (not scoped to one task's projection).
func (s *Store) FindPendingReviewTaskIDs(ctx context.Context, userID, agentID string) ([]string, error) {
	var rows *sql.Rows
	var err error
	switch {
	case userID != "":
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT task_id FROM pending_reviewers WHERE user_id = $1`, userID)
	case agentID != "":
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT task_id FROM pending_reviewers WHERE agent_id = $1`, agentID)
	default:
		return nil, apierr.NewValidationError("user_id", "either user_id or agent_id must be set", "missing")
	}
	if err != nil {
		return nil, fmt.Errorf("query pending review task ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending review task id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplacePendingReviewers atomically swaps the pending-reviewer set for a
// task to exactly the given rows — the apply side of the Review Engine's
// recompute (spec §4.6). It deletes every stored row of the task and
// inserts the given ones without comparing the two sets. IDs are assigned
// by the caller, so a retry with the same rows leaves the same rows.
func (s *Store) ReplacePendingReviewers(ctx context.Context, taskID string, reviewers []*PendingReviewer) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_reviewers WHERE task_id=$1`, taskID); err != nil {
			return fmt.Errorf("clear pending reviewers: %w", err)
		}
		for _, p := range reviewers {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO pending_reviewers (id, task_id, user_id, agent_id, requirement_id)
				VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5)`,
				p.ID, taskID, p.UserID, p.AgentID, p.RequirementID)
			if err != nil {
				return fmt.Errorf("insert pending reviewer: %w", err)
			}
		}
		return nil
	})
}
