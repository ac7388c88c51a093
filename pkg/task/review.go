package task

import (
	"context"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
)

// ReviewInput is the payload for review_task(task, {approved, reviewer,
// reviewer_type, reason}) (spec §4.6).
type ReviewInput struct {
	Approved     bool
	Reviewer     string
	ReviewerType string
	Reason       string
	Correction   string
}

// Review implements review_task (spec §4.6): upserts a task-level Review —
// matching (reviewer, reviewer_type) updates in place, else creates new —
// then triggers the Review Engine's pending-reviewer recompute. Returns the
// task so callers (the `PUT /v1/tasks/{id}/review` handler) can respond
// with its current state in one round trip.
func (s *Service) Review(ctx context.Context, principal authz.Principal, id string, in ReviewInput) (*store.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(principal, authz.OpMutate, t.OwnerID) {
		return nil, apierr.ErrNotFound
	}

	_, err = s.reviews.Upsert(ctx, &reviewstore.Review{
		ID:           t.ID + ":" + in.Reviewer + ":" + in.ReviewerType,
		Reviewer:     in.Reviewer,
		ReviewerType: in.ReviewerType,
		Approved:     in.Approved,
		Reason:       in.Reason,
		Correction:   in.Correction,
		ResourceType: "task",
		ResourceID:   t.ID,
	}, s.now())
	if err != nil {
		return nil, fmt.Errorf("review task: %w", err)
	}

	if err := s.engine.Recompute(ctx, t); err != nil {
		return nil, fmt.Errorf("recompute pending reviewers: %w", err)
	}
	return t, nil
}
