// Package episode implements the per-action review operations of spec
// §4.5, layered on top of pkg/episodestore (the action log) and
// pkg/reviewstore (the shared Review upsert policy). Actions are ordered
// by the episode's insertion order — episodestore.ListActions already
// returns them that way (ORDER BY seq ASC).
package episode

import (
	"context"
	"fmt"
	"time"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/reviewstore"
)

// Service orchestrates action-level review operations for one episode at a
// time; callers resolve the episode id from the owning Task.
type Service struct {
	episodes *episodestore.Store
	reviews  *reviewstore.Store
	now      func() float64
}

// New constructs an episode Service over its storage collaborators. now
// defaults to the wall clock if nil.
func New(episodes *episodestore.Store, reviews *reviewstore.Store, now func() float64) *Service {
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	return &Service{episodes: episodes, reviews: reviews, now: now}
}

// ReviewInput is the caller-supplied judgement for approve_one/fail_one
// and their bulk variants (spec §4.5).
type ReviewInput struct {
	Reviewer     string
	ReviewerType string
	Reason       string
	Correction   string
}

func (s *Service) reviewAction(ctx context.Context, actionID string, approved bool, in ReviewInput) error {
	_, err := s.reviews.Upsert(ctx, &reviewstore.Review{
		ID:           actionID + ":" + in.Reviewer + ":" + in.ReviewerType,
		Reviewer:     in.Reviewer,
		ReviewerType: in.ReviewerType,
		Approved:     approved,
		Reason:       in.Reason,
		Correction:   in.Correction,
		ResourceType: "action",
		ResourceID:   actionID,
	}, s.now())
	return err
}

// ApproveOne implements approve_one(action_id, ...) (spec §4.5).
func (s *Service) ApproveOne(ctx context.Context, actionID string, in ReviewInput) error {
	if err := s.reviewAction(ctx, actionID, true, in); err != nil {
		return fmt.Errorf("approve action: %w", err)
	}
	return nil
}

// FailOne implements fail_one(action_id, ...) (spec §4.5).
func (s *Service) FailOne(ctx context.Context, actionID string, in ReviewInput) error {
	if err := s.reviewAction(ctx, actionID, false, in); err != nil {
		return fmt.Errorf("fail action: %w", err)
	}
	return nil
}

// priorIndices returns indices [0, cutoff] of actions ordered by insertion,
// per §4.5's "prior means strictly before the index of action_id, plus
// action_id itself". includeHidden controls whether hidden actions are
// included in the bulk apply.
func priorIndices(actions []*episodestore.ActionEvent, actionID string, includeHidden bool) []int {
	cutoff := -1
	for i, a := range actions {
		if a.ID == actionID {
			cutoff = i
			break
		}
	}
	if cutoff < 0 {
		return nil
	}
	var out []int
	for i := 0; i <= cutoff; i++ {
		if actions[i].Hidden && !includeHidden {
			continue
		}
		out = append(out, i)
	}
	return out
}

// ApprovePrior implements approve_prior(action_id) (spec §4.5): bulk
// approves every action up to and including action_id, in insertion order.
func (s *Service) ApprovePrior(ctx context.Context, episodeID, actionID string, includeHidden bool, in ReviewInput) error {
	return s.bulkApply(ctx, episodeID, actionID, includeHidden, true, in)
}

// FailPrior implements the fail_all variant scoped to a cutoff, mirroring ApprovePrior.
func (s *Service) FailPrior(ctx context.Context, episodeID, actionID string, includeHidden bool, in ReviewInput) error {
	return s.bulkApply(ctx, episodeID, actionID, includeHidden, false, in)
}

// ApproveAll implements approve_all() (spec §4.5): every action in the episode.
func (s *Service) ApproveAll(ctx context.Context, episodeID string, includeHidden bool, in ReviewInput) error {
	return s.bulkApplyAll(ctx, episodeID, includeHidden, true, in)
}

// FailAll implements fail_all() (spec §4.5): every action in the episode.
func (s *Service) FailAll(ctx context.Context, episodeID string, includeHidden bool, in ReviewInput) error {
	return s.bulkApplyAll(ctx, episodeID, includeHidden, false, in)
}

func (s *Service) bulkApply(ctx context.Context, episodeID, actionID string, includeHidden, approved bool, in ReviewInput) error {
	actions, err := s.episodes.ListActions(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("list actions: %w", err)
	}
	for _, i := range priorIndices(actions, actionID, includeHidden) {
		if err := s.reviewAction(ctx, actions[i].ID, approved, in); err != nil {
			return fmt.Errorf("bulk review action %s: %w", actions[i].ID, err)
		}
	}
	return nil
}

func (s *Service) bulkApplyAll(ctx context.Context, episodeID string, includeHidden, approved bool, in ReviewInput) error {
	actions, err := s.episodes.ListActions(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("list actions: %w", err)
	}
	for _, a := range actions {
		if a.Hidden && !includeHidden {
			continue
		}
		if err := s.reviewAction(ctx, a.ID, approved, in); err != nil {
			return fmt.Errorf("bulk review action %s: %w", a.ID, err)
		}
	}
	return nil
}

// DeleteAction implements delete_action(id) (spec §4.5).
func (s *Service) DeleteAction(ctx context.Context, actionID string) error {
	return s.episodes.DeleteAction(ctx, actionID)
}

// DeleteAllActions implements delete_all_actions() (spec §4.5).
func (s *Service) DeleteAllActions(ctx context.Context, episodeID string) error {
	return s.episodes.DeleteAllActions(ctx, episodeID)
}

// HideAction implements hide_action(id, bool) (spec §4.5).
func (s *Service) HideAction(ctx context.Context, actionID string, hidden bool) error {
	return s.episodes.SetHidden(ctx, actionID, hidden)
}
