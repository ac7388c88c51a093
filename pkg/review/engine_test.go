package review

import (
	"testing"

	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/stretchr/testify/assert"
)

func TestRecomputeUnreviewedCandidateIsPending(t *testing.T) {
	req := &store.ReviewRequirement{ID: "req1", NumberRequired: 1, Users: []string{"tom@myspace.com"}}

	out := Recompute("task1", []*store.ReviewRequirement{req}, nil, nil, nil)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "tom@myspace.com", out[0].UserID)
		assert.Equal(t, "req1", out[0].RequirementID)
	}
}

func TestRecomputeSatisfiedWhenReviewerClearedEveryActionAndTask(t *testing.T) {
	req := &store.ReviewRequirement{ID: "req1", NumberRequired: 1, Users: []string{"tom@myspace.com"}}
	actionIDs := []string{"a1", "a2"}
	taskReviews := []*reviewstore.Review{{Reviewer: "tom@myspace.com", ResourceType: "task", ResourceID: "task1"}}
	actionReviews := map[string][]*reviewstore.Review{
		"a1": {{Reviewer: "tom@myspace.com"}},
		"a2": {{Reviewer: "tom@myspace.com"}},
	}

	out := Recompute("task1", []*store.ReviewRequirement{req}, actionIDs, taskReviews, actionReviews)

	assert.Empty(t, out)
}

func TestRecomputeMissingActionReviewKeepsCandidatePending(t *testing.T) {
	req := &store.ReviewRequirement{ID: "req1", NumberRequired: 1, Users: []string{"tom@myspace.com"}}
	actionIDs := []string{"a1", "a2"}
	taskReviews := []*reviewstore.Review{{Reviewer: "tom@myspace.com", ResourceType: "task", ResourceID: "task1"}}
	actionReviews := map[string][]*reviewstore.Review{
		"a1": {{Reviewer: "tom@myspace.com"}},
		// a2 never reviewed
	}

	out := Recompute("task1", []*store.ReviewRequirement{req}, actionIDs, taskReviews, actionReviews)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "tom@myspace.com", out[0].UserID)
	}
}

func TestRecomputeMissingTaskLevelReviewKeepsCandidatePending(t *testing.T) {
	req := &store.ReviewRequirement{ID: "req1", NumberRequired: 1, Users: []string{"tom@myspace.com"}}
	actionIDs := []string{"a1"}
	actionReviews := map[string][]*reviewstore.Review{
		"a1": {{Reviewer: "tom@myspace.com"}},
	}

	// No task-level review at all: clause (2) of §4.6 fails even though
	// every action has been cleared.
	out := Recompute("task1", []*store.ReviewRequirement{req}, actionIDs, nil, actionReviews)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "tom@myspace.com", out[0].UserID)
	}
}

func TestRecomputeNumberRequiredLessThanCandidateCount(t *testing.T) {
	req := &store.ReviewRequirement{
		ID: "req1", NumberRequired: 1,
		Users: []string{"agent1-owner@myspace.com", "agent2-owner@myspace.com"},
	}
	taskReviews := []*reviewstore.Review{
		{Reviewer: "agent1-owner@myspace.com", ResourceType: "task", ResourceID: "task1"},
	}

	out := Recompute("task1", []*store.ReviewRequirement{req}, nil, taskReviews, nil)

	// One of two candidates satisfied already meets number_required=1: the
	// requirement is fully satisfied, even though the other candidate never reviewed.
	assert.Empty(t, out)
}

func TestRecomputeSharedReviewerSatisfiesMultipleRequirementsLiterally(t *testing.T) {
	// Documents the literal (non-requirement-scoped) reading of
	// requirement_satisfied_by: one task-level review by a party counts
	// toward every requirement that names them, not just one.
	reqA := &store.ReviewRequirement{ID: "reqA", NumberRequired: 1, Users: []string{"tom@myspace.com"}}
	reqB := &store.ReviewRequirement{ID: "reqB", NumberRequired: 1, Users: []string{"tom@myspace.com"}}
	taskReviews := []*reviewstore.Review{
		{Reviewer: "tom@myspace.com", ResourceType: "task", ResourceID: "task1"},
	}

	out := Recompute("task1", []*store.ReviewRequirement{reqA, reqB}, nil, taskReviews, nil)

	assert.Empty(t, out)
}

func TestRecomputeNoRequirementsProducesNoPending(t *testing.T) {
	out := Recompute("task1", nil, []string{"a1"}, nil, nil)
	assert.Empty(t, out)
}

func TestRecomputeAgentCandidate(t *testing.T) {
	req := &store.ReviewRequirement{ID: "req1", NumberRequired: 1, Agents: []string{"agent1"}}

	out := Recompute("task1", []*store.ReviewRequirement{req}, nil, nil, nil)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "agent1", out[0].AgentID)
		assert.Empty(t, out[0].UserID)
	}
}
