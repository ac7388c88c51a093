package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/store"
)

// hasFinalEnd reports whether the episode's action list already ends with
// a terminal `end` event — once true, record_action_event becomes a no-op
// (spec §4.4).
func hasFinalEnd(actions []*episodestore.ActionEvent) bool {
	if len(actions) == 0 {
		return false
	}
	return actions[len(actions)-1].ActionName == "end"
}

// shouldDropPriorMouseMove implements the end-rule of spec §4.4: an `end`
// event immediately following a `mouse_move` replaces it rather than
// appending after it.
func shouldDropPriorMouseMove(prevName, newName string) bool {
	return newName == "end" && prevName == "mouse_move"
}

// convertStateImages rewrites a conventional top-level "images" array
// within a state/end_state JSON blob via the image-conversion collaborator,
// leaving every other field untouched. A blob without an "images" key
// passes through unchanged.
func convertStateImages(ctx context.Context, raw json.RawMessage, conv ImageConverter) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw, nil // not an object; nothing conventionally convertible
	}
	imagesRaw, ok := obj["images"]
	if !ok {
		return raw, nil
	}
	var images []string
	if err := json.Unmarshal(imagesRaw, &images); err != nil {
		return raw, nil
	}
	converted, err := conv.ConvertImages(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("convert images: %w", err)
	}
	convertedJSON, err := json.Marshal(converted)
	if err != nil {
		return nil, fmt.Errorf("marshal converted images: %w", err)
	}
	obj["images"] = convertedJSON
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return out, nil
}

// GetEpisode loads the single episode backing a task, for the `GET
// /v1/tasks/{id}/episode` transport handler.
func (s *Service) GetEpisode(ctx context.Context, t *store.Task) (*episodestore.Episode, error) {
	return s.episodes.GetEpisodeForTask(ctx, t.ID)
}

// ListActions returns a task's episode actions in insertion order, for the
// `GET /v1/tasks/{id}/actions` transport handler. A task without an episode
// has no actions.
func (s *Service) ListActions(ctx context.Context, t *store.Task) ([]*episodestore.ActionEvent, error) {
	if t.EpisodeID == "" {
		return nil, nil
	}
	return s.episodes.ListActions(ctx, t.EpisodeID)
}

// RecordActionEvent implements record_action_event(event) (spec §4.4): the
// mouse_move-before-end collapse, image conversion before persistence, and
// the best-effort Event Publisher envelope.
func (s *Service) RecordActionEvent(ctx context.Context, t *store.Task, ev *episodestore.ActionEvent) (*episodestore.ActionEvent, error) {
	if t.EpisodeID == "" {
		return nil, &apierr.DependencyMissingError{Dependency: "episode", ID: ""}
	}

	actions, err := s.episodes.ListActions(ctx, t.EpisodeID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	if hasFinalEnd(actions) {
		return nil, nil
	}

	var prev *episodestore.ActionEvent
	if len(actions) > 0 {
		prev = actions[len(actions)-1]
	}
	if prev != nil && shouldDropPriorMouseMove(prev.ActionName, ev.ActionName) {
		if err := s.episodes.DeleteAction(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("drop prior mouse_move: %w", err)
		}
		if len(actions) >= 2 {
			prev = actions[len(actions)-2]
		} else {
			prev = nil
		}
	}

	state, err := convertStateImages(ctx, ev.State, s.images)
	if err != nil {
		return nil, err
	}
	ev.State = state
	endState, err := convertStateImages(ctx, ev.EndState, s.images)
	if err != nil {
		return nil, err
	}
	ev.EndState = endState

	ev.ID = s.newID()
	ev.EpisodeID = t.EpisodeID
	ev.Created = s.now()
	if err := s.episodes.AppendAction(ctx, ev); err != nil {
		return nil, fmt.Errorf("append action: %w", err)
	}

	if err := s.publisher.PublishActionRecorded(ctx, ActionRecordedStream, ActionRecordedEvent{
		PrevAction:   prev,
		Action:       ev,
		EventNumber:  ev.Seq,
		TaskSnapshot: t,
	}); err != nil {
		slog.Warn("event publisher failed", "error", err, "task_id", t.ID, "action_id", ev.ID)
	}

	return ev, nil
}

// WaitForDone implements wait_for_done(timeout, interval) (spec §4.4):
// polls refresh() until is_done(), failing Timeout on the deadline.
func (s *Service) WaitForDone(ctx context.Context, principal authz.Principal, id string, timeout, interval time.Duration) (*store.Task, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t, err := s.Refresh(ctx, principal, id)
		if err != nil {
			return nil, err
		}
		if t.IsDone() {
			return t, nil
		}
		if time.Now().After(deadline) {
			return nil, apierr.ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
