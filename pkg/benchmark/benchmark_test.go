package benchmark

import (
	"context"
	"testing"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLabelsEveryTemplateWithBenchmarkName(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	b, err := h.svc.Create(ctx, h.principal, CreateInput{
		Name:    "test-bench",
		OwnerID: h.principal.Email,
		Templates: []TemplateInput{
			{Description: "open settings"},
			{Description: "close settings"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, b.TemplateIDs, 2)

	for _, id := range b.TemplateIDs {
		tmpl, err := h.svc.store.GetTemplate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "test-bench", tmpl.Labels["benchmark"])
	}
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	in := CreateInput{Name: "dup-bench", OwnerID: h.principal.Email}

	_, err := h.svc.Create(ctx, h.principal, in)
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, h.principal, in)
	assert.ErrorIs(t, err, apierr.ErrConflict)
}

func TestEvalMaterialisesOneTaskPerTemplateWithBenchmarkLabel(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	b, err := h.svc.Create(ctx, h.principal, CreateInput{
		Name:    "test-bench-eval",
		OwnerID: h.principal.Email,
		Templates: []TemplateInput{
			{Description: "task one"},
			{Description: "task two"},
			{Description: "task three"},
		},
	})
	require.NoError(t, err)

	e, err := h.svc.Eval(ctx, h.principal, b.ID, "agent-1", "agent")
	require.NoError(t, err)
	assert.Len(t, e.TaskIDs, 3)
	assert.Equal(t, "agent-1", e.AssignedTo)

	for _, taskID := range e.TaskIDs {
		created, err := h.svc.tasks.Get(ctx, h.principal, taskID)
		require.NoError(t, err)
		assert.Equal(t, "test-bench-eval", created.Labels["benchmark"])
		assert.Equal(t, "agent-1", created.AssignedTo)
		assert.NotEmpty(t, created.EpisodeID)
	}
}

func TestEvalUnknownBenchmarkNotFound(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.svc.Eval(ctx, h.principal, "missing-id", "", "")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}
