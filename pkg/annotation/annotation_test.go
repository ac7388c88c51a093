package annotation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/reviewstore"
	testdb "github.com/agentsea/taskara/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *episodestore.Store) {
	t.Helper()
	client := testdb.NewTestClient(t)
	db := client.DB()
	episodes := episodestore.New(db)
	return New(episodes, reviewstore.New(db), nil, nil), episodes
}

func seedAction(t *testing.T, episodes *episodestore.Store) string {
	t.Helper()
	ctx := context.Background()
	ep := &episodestore.Episode{ID: "ep-" + t.Name(), TaskID: "task-" + t.Name()}
	require.NoError(t, episodes.CreateEpisode(ctx, ep))
	a := &episodestore.ActionEvent{ID: "act-" + t.Name(), EpisodeID: ep.ID, ActionName: "click"}
	require.NoError(t, episodes.AppendAction(ctx, a))
	return a.ID
}

func TestCreateAttachesAnnotationToAction(t *testing.T) {
	svc, episodes := newTestService(t)
	actionID := seedAction(t, episodes)

	a, err := svc.Create(context.Background(), actionID, "bbox_accuracy",
		json.RawMessage(`{"score":0.9}`), "tom@myspace.com", "user")
	require.NoError(t, err)
	assert.Equal(t, actionID, a.ActionID)
	assert.Equal(t, "bbox_accuracy", a.Key)
}

func TestReviewUpsertsOnMatchingReviewerAndType(t *testing.T) {
	svc, episodes := newTestService(t)
	actionID := seedAction(t, episodes)
	ctx := context.Background()

	a, err := svc.Create(ctx, actionID, "bbox_accuracy", json.RawMessage(`{"score":0.9}`), "tom@myspace.com", "user")
	require.NoError(t, err)

	require.NoError(t, svc.Review(ctx, a.ID, true, "tom@myspace.com", "user", "looks right", ""))
	require.NoError(t, svc.Review(ctx, a.ID, false, "tom@myspace.com", "user", "actually wrong", "shift left"))

	listed, err := svc.ListForAction(ctx, actionID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Len(t, listed[0].Reviews, 1)
	assert.False(t, listed[0].Reviews[0].Approved)
	assert.Equal(t, "shift left", listed[0].Reviews[0].Correction)
}

func TestListForActionReturnsEmptyReviewsWhenUnreviewed(t *testing.T) {
	svc, episodes := newTestService(t)
	actionID := seedAction(t, episodes)

	_, err := svc.Create(context.Background(), actionID, "bbox_accuracy", json.RawMessage(`{"score":0.5}`), "a", "user")
	require.NoError(t, err)

	listed, err := svc.ListForAction(context.Background(), actionID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Reviews)
}
