package task

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatchOnlySetsProvidedFields(t *testing.T) {
	task := &store.Task{Status: "defined", Description: "old", MaxSteps: 30}
	newDesc := "new description"

	changed := applyPatch(task, store.TaskPatch{Description: &newDesc})

	assert.True(t, changed)
	assert.Equal(t, "new description", task.Description)
	assert.Equal(t, "defined", task.Status) // untouched
	assert.Equal(t, 30, task.MaxSteps)      // untouched
}

func TestApplyPatchSetLabelsMergesNotReplaces(t *testing.T) {
	task := &store.Task{Labels: map[string]string{"env": "prod"}}

	changed := applyPatch(task, store.TaskPatch{SetLabels: map[string]string{"team": "infra"}})

	assert.True(t, changed)
	assert.Equal(t, "prod", task.Labels["env"])
	assert.Equal(t, "infra", task.Labels["team"])
}

func TestApplyPatchNoopWhenValuesIdentical(t *testing.T) {
	status := "running"
	task := &store.Task{Status: "running"}

	changed := applyPatch(task, store.TaskPatch{Status: &status})

	assert.False(t, changed)
}

func TestCloneTaskDoesNotAliasChildCollections(t *testing.T) {
	original := &store.Task{
		ID:        "task1",
		Tags:      []string{"a", "b"},
		Labels:    map[string]string{"k": "v"},
		ThreadIDs: []string{"th1"},
	}

	clone := cloneTask(original)
	clone.Tags[0] = "mutated"
	clone.Labels["k"] = "mutated"

	assert.Equal(t, "a", original.Tags[0])
	assert.Equal(t, "v", original.Labels["k"])
}

func TestCopyResetsRuntimeFieldsAndDropsThreads(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	original := &store.Task{
		ID: "task1", OwnerID: "tom@myspace.com", Status: "running",
		Started: 100, Completed: 200, ThreadIDs: []string{"feed-thread"},
	}

	copied, err := h.svc.Copy(ctx, h.principal, original)
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, copied.ID)
	assert.Equal(t, "defined", copied.Status)
	assert.Zero(t, copied.Started)
	assert.Zero(t, copied.Completed)
	assert.Empty(t, copied.ThreadIDs)
	assert.NotEqual(t, original.EpisodeID, copied.EpisodeID)
}

func TestHasFinalEndDetectsTerminalEvent(t *testing.T) {
	assert.False(t, hasFinalEnd(nil))
	assert.False(t, hasFinalEnd([]*episodestore.ActionEvent{{ActionName: "click"}}))
	assert.True(t, hasFinalEnd([]*episodestore.ActionEvent{{ActionName: "click"}, {ActionName: "end"}}))
}

func TestShouldDropPriorMouseMoveOnlyBeforeEnd(t *testing.T) {
	assert.True(t, shouldDropPriorMouseMove("mouse_move", "end"))
	assert.False(t, shouldDropPriorMouseMove("click", "end"))
	assert.False(t, shouldDropPriorMouseMove("mouse_move", "click"))
}

type stubConverter struct{ calls [][]string }

func (c *stubConverter) ConvertImages(_ context.Context, images []string) ([]string, error) {
	c.calls = append(c.calls, images)
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = "https://cdn.example.com/" + img
	}
	return out, nil
}

func TestConvertStateImagesRewritesImagesKeyOnly(t *testing.T) {
	conv := &stubConverter{}
	raw := json.RawMessage(`{"images":["a.png","b.png"],"x":1}`)

	out, err := convertStateImages(context.Background(), raw, conv)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(1), decoded["x"])
	images := decoded["images"].([]any)
	assert.Equal(t, "https://cdn.example.com/a.png", images[0])
}

func TestConvertStateImagesPassesThroughWithoutImagesKey(t *testing.T) {
	conv := &stubConverter{}
	raw := json.RawMessage(`{"tool":"click"}`)

	out, err := convertStateImages(context.Background(), raw, conv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool":"click"}`, string(out))
	assert.Empty(t, conv.calls)
}
