// Package eventbus implements the best-effort Event Publisher (spec §4.9)
// as a Redis Streams sink: every recorded action event is XADDed to a
// fixed stream, with no reader, ack, or delivery guarantee expected of
// this side — publication failures are logged by the caller, never fatal.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agentsea/taskara/pkg/task"
	"github.com/redis/go-redis/v9"
)

// Publisher publishes task.ActionRecordedEvent envelopes to a Redis Stream.
type Publisher struct {
	client *redis.Client
}

// New connects to the Redis instance named by addr (the value of
// REDIS_CACHE_STORAGE). Its methods need a non-nil *Publisher; when addr
// is empty, task.NoopEventPublisher takes its place.
func New(addr string) *Publisher {
	return &Publisher{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Close releases the underlying Redis connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// PublishActionRecorded implements task.EventPublisher: XADDs the event
// envelope to stream, capped at a bounded approximate length so a stalled
// or absent consumer never grows the stream unbounded.
func (p *Publisher) PublishActionRecorded(ctx context.Context, stream string, event task.ActionRecordedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal action recorded event: %w", err)
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10_000,
		Approx: true,
		Values: map[string]any{
			"task_id":      event.TaskSnapshot.ID,
			"action_id":    event.Action.ID,
			"event_number": strconv.FormatInt(event.EventNumber, 10),
			"payload":      string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
