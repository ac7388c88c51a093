package episode

import (
	"testing"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/stretchr/testify/assert"
)

func actions(names ...string) []*episodestore.ActionEvent {
	out := make([]*episodestore.ActionEvent, len(names))
	for i, n := range names {
		out[i] = &episodestore.ActionEvent{ID: n, ActionName: "click"}
	}
	return out
}

func TestPriorIndicesIncludesCutoffItself(t *testing.T) {
	as := actions("a1", "a2", "a3", "a4")
	idx := priorIndices(as, "a3", true)
	assert.Equal(t, []int{0, 1, 2}, idx)
}

func TestPriorIndicesUnknownActionYieldsNothing(t *testing.T) {
	as := actions("a1", "a2")
	assert.Nil(t, priorIndices(as, "missing", true))
}

func TestPriorIndicesExcludesHiddenUnlessRequested(t *testing.T) {
	as := actions("a1", "a2", "a3")
	as[1].Hidden = true

	assert.Equal(t, []int{0, 2}, priorIndices(as, "a3", false))
	assert.Equal(t, []int{0, 1, 2}, priorIndices(as, "a3", true))
}
