// Package review implements the pending-reviewer projection of spec §4.6 —
// the hardest subsystem, by the spec's own account. A single pure
// Recompute function computes the target set from scratch, and
// Engine.Recompute applies it by replacing the task's stored rows
// wholesale in one transaction of its own. The target is not diffed
// against the stored set: every recompute deletes and re-inserts the rows
// with fresh ids, even when the set is unchanged.
package review

import (
	"context"
	"fmt"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/google/uuid"
)

// Party is one candidate reviewer drawn from a ReviewRequirement's users or
// agents list (spec §4.6's pending formula quantifies only over
// `requirement.users ∪ requirement.agents` — groups/types are declarative
// metadata on the requirement but are not resolved to concrete parties
// here, since the spec's formula names no directory to resolve them
// against; see DESIGN.md).
type Party struct {
	UserID  string
	AgentID string
}

func (p Party) key() string {
	if p.UserID != "" {
		return "user:" + p.UserID
	}
	return "agent:" + p.AgentID
}

// Engine recomputes and persists the pending-reviewer projection.
type Engine struct {
	store    *store.Store
	reviews  *reviewstore.Store
	episodes *episodestore.Store
}

// New constructs a review Engine over the core store and its review/episode collaborators.
func New(s *store.Store, reviews *reviewstore.Store, episodes *episodestore.Store) *Engine {
	return &Engine{store: s, reviews: reviews, episodes: episodes}
}

// Recompute reloads every input the fixed-point formula depends on and
// replaces the task's pending-reviewer rows to match. It runs after the
// triggering write, in the separate transaction of pkg/store's
// ReplacePendingReviewers, and takes no lock on the task row: the write
// and the recompute are not atomic with each other.
func (e *Engine) Recompute(ctx context.Context, task *store.Task) error {
	requirements, err := e.store.GetReviewRequirementsForTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load review requirements: %w", err)
	}
	if len(requirements) == 0 {
		return e.store.ReplacePendingReviewers(ctx, task.ID, nil)
	}

	taskReviews, err := e.reviews.ListForResource(ctx, "task", task.ID)
	if err != nil {
		return fmt.Errorf("load task reviews: %w", err)
	}

	var actionIDs []string
	if task.EpisodeID != "" {
		actions, err := e.episodes.ListActions(ctx, task.EpisodeID)
		if err != nil {
			return fmt.Errorf("load episode actions: %w", err)
		}
		for _, a := range actions {
			actionIDs = append(actionIDs, a.ID)
		}
	}

	actionReviews, err := e.reviews.ListForResources(ctx, "action", actionIDs)
	if err != nil {
		return fmt.Errorf("load action reviews: %w", err)
	}

	target := Recompute(task.ID, requirements, actionIDs, taskReviews, actionReviews)
	return e.store.ReplacePendingReviewers(ctx, task.ID, target)
}

// PendingReviewers implements pending_reviewers(task_id) (spec §4.6): the
// task's pending-reviewer rows, one per requirement and party, so a party
// pending on two requirements appears twice. The HTTP layer collapses them
// into distinct users and agents.
func (e *Engine) PendingReviewers(ctx context.Context, taskID string) ([]*store.PendingReviewer, error) {
	return e.store.GetPendingReviewers(ctx, taskID)
}

// PendingReviewTaskIDs implements pending_reviews(user? | agent?) (spec
// §4.6): the distinct task ids on which the given party is listed pending.
func (e *Engine) PendingReviewTaskIDs(ctx context.Context, userID, agentID string) ([]string, error) {
	return e.store.FindPendingReviewTaskIDs(ctx, userID, agentID)
}

// Recompute is the pure core of the engine: given a task's requirements
// and every review bearing on it, it returns the target PendingReviewer
// set exactly. A second call with no state change yields the same parties
// per requirement, each row with a newly generated id.
func Recompute(
	taskID string,
	requirements []*store.ReviewRequirement,
	actionIDs []string,
	taskReviews []*reviewstore.Review,
	actionReviewsByAction map[string][]*reviewstore.Review,
) []*store.PendingReviewer {
	reviewedTaskBy := map[string]bool{}
	for _, r := range taskReviews {
		reviewedTaskBy[r.Reviewer] = true
	}

	var out []*store.PendingReviewer
	for _, req := range requirements {
		candidates := make([]Party, 0, len(req.Users)+len(req.Agents))
		for _, u := range req.Users {
			candidates = append(candidates, Party{UserID: u})
		}
		for _, a := range req.Agents {
			candidates = append(candidates, Party{AgentID: a})
		}

		satisfied := map[string]bool{}
		satisfiedCount := 0
		for _, c := range candidates {
			reviewer := c.UserID
			if reviewer == "" {
				reviewer = c.AgentID
			}
			if requirementSatisfiedBy(reviewer, actionIDs, actionReviewsByAction) && reviewedTaskBy[reviewer] {
				satisfied[c.key()] = true
				satisfiedCount++
			}
		}

		if satisfiedCount >= req.NumberRequired {
			continue // requirement fully satisfied: no pending rows for it
		}
		for _, c := range candidates {
			if satisfied[c.key()] {
				continue
			}
			out = append(out, &store.PendingReviewer{
				ID:            uuid.NewString(),
				TaskID:        taskID,
				UserID:        c.UserID,
				AgentID:       c.AgentID,
				RequirementID: req.ID,
			})
		}
	}
	return out
}

// requirementSatisfiedBy implements clause (1) of §4.6: for every action in
// the episode, a Review by this reviewer exists. An episode with zero
// actions vacuously satisfies clause (1).
func requirementSatisfiedBy(reviewer string, actionIDs []string, actionReviewsByAction map[string][]*reviewstore.Review) bool {
	for _, actionID := range actionIDs {
		found := false
		for _, r := range actionReviewsByAction[actionID] {
			if r.Reviewer == reviewer {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
