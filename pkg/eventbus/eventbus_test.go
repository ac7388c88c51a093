package eventbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/task"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*Publisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	p := New(mr.Addr())
	t.Cleanup(func() { _ = p.Close() })
	return p, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPublishActionRecordedAddsEntryToStream(t *testing.T) {
	p, verify := newTestPublisher(t)
	ctx := context.Background()

	event := task.ActionRecordedEvent{
		Action:       &episodestore.ActionEvent{ID: "a1", ActionName: "click"},
		EventNumber:  3,
		TaskSnapshot: &store.Task{ID: "task-1"},
	}

	require.NoError(t, p.PublishActionRecorded(ctx, task.ActionRecordedStream, event))

	entries, err := verify.XRange(ctx, task.ActionRecordedStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "task-1", entries[0].Values["task_id"])
	require.Equal(t, "a1", entries[0].Values["action_id"])
	require.Equal(t, "3", entries[0].Values["event_number"])

	var decoded task.ActionRecordedEvent
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &decoded))
	require.Equal(t, "click", decoded.Action.ActionName)
}
