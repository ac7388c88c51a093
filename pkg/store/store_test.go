package store_test

import (
	"context"
	"testing"

	"github.com/agentsea/taskara/pkg/apierr"
	testdb "github.com/agentsea/taskara/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	client := testdb.NewTestClient(t)
	return store.New(client.DB())
}

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{
		ID:          "task-1",
		OwnerID:     "tom@myspace.com",
		CreatedBy:   "tom@myspace.com",
		Description: "click the button",
		MaxSteps:    30,
		Version:     "v1",
		Status:      "defined",
		Parameters:  map[string]any{"url": "https://example.com"},
		ThreadIDs:   []string{},
		PromptIDs:   []string{},
		Tags:        []string{"ui", "smoke"},
		Labels:      map[string]string{"env": "prod"},
		Created:     1.0,
	}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "tom@myspace.com", got.OwnerID)
	assert.ElementsMatch(t, []string{"ui", "smoke"}, got.Tags)
	assert.Equal(t, "prod", got.Labels["env"])
	assert.Equal(t, "https://example.com", got.Parameters["url"])
}

func TestFindTasksFiltersByTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, &store.Task{
		ID: "t1", OwnerID: "owner-1", CreatedBy: "owner-1", Version: "v1", Status: "defined",
		Parameters: map[string]any{}, ThreadIDs: []string{}, PromptIDs: []string{},
		Tags: []string{"alpha"}, Created: 1,
	}))
	require.NoError(t, s.CreateTask(ctx, &store.Task{
		ID: "t2", OwnerID: "owner-1", CreatedBy: "owner-1", Version: "v1", Status: "defined",
		Parameters: map[string]any{}, ThreadIDs: []string{}, PromptIDs: []string{},
		Tags: []string{"beta"}, Created: 2,
	}))

	found, err := s.FindTasks(ctx, []string{"owner-1"}, store.TaskFilters{Tags: []string{"alpha"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "t1", found[0].ID)
}

func TestUpdateTaskOptimisticConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{
		ID: "t1", OwnerID: "owner-1", CreatedBy: "owner-1", Version: "v1", Status: "defined",
		Parameters: map[string]any{}, ThreadIDs: []string{}, PromptIDs: []string{}, Created: 1,
	}
	require.NoError(t, s.CreateTask(ctx, task))

	task.Status = "in_progress"
	err := s.UpdateTask(ctx, task, "stale-version")
	assert.ErrorIs(t, err, apierr.ErrConflict)

	require.NoError(t, s.UpdateTask(ctx, task, "v1"))
	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)
}

func TestDeleteTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteTask(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestPendingReviewersReplaceIsAtomicSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, &store.Task{
		ID: "t1", OwnerID: "owner-1", CreatedBy: "owner-1", Version: "v1", Status: "defined",
		Parameters: map[string]any{}, ThreadIDs: []string{}, PromptIDs: []string{}, Created: 1,
	}))
	req := &store.ReviewRequirement{ID: "req-1", TaskID: "t1", NumberRequired: 2, Users: []string{"alice", "bob"}, Created: 1}
	require.NoError(t, s.CreateReviewRequirement(ctx, req))

	require.NoError(t, s.ReplacePendingReviewers(ctx, "t1", []*store.PendingReviewer{
		{ID: "pr-1", TaskID: "t1", UserID: "alice", RequirementID: "req-1"},
		{ID: "pr-2", TaskID: "t1", UserID: "bob", RequirementID: "req-1"},
	}))
	pending, err := s.GetPendingReviewers(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, s.ReplacePendingReviewers(ctx, "t1", []*store.PendingReviewer{
		{ID: "pr-3", TaskID: "t1", UserID: "bob", RequirementID: "req-1"},
	}))
	pending, err = s.GetPendingReviewers(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].UserID)
}

func TestCreateBenchmarkDuplicateNameConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBenchmark(ctx, &store.Benchmark{
		ID: "b1", Name: "test-bench", OwnerID: "owner-1", Created: 1,
	}))
	err := s.CreateBenchmark(ctx, &store.Benchmark{
		ID: "b2", Name: "test-bench", OwnerID: "owner-1", Created: 2,
	})
	assert.Error(t, err)
}
