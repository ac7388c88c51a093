package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/store"
)

// applyPatch mutates t in place per the fields TaskPatch sets (spec §4.4:
// "applies only the fields present in the patch; set_labels merges into
// labels"), and reports whether anything observable actually changed so
// callers know whether to recompute the version hash.
func applyPatch(t *store.Task, patch store.TaskPatch) (changed bool) {
	if patch.Status != nil && *patch.Status != t.Status {
		t.Status = *patch.Status
		changed = true
	}
	if patch.Description != nil && *patch.Description != t.Description {
		t.Description = *patch.Description
		changed = true
	}
	if patch.MaxSteps != nil && *patch.MaxSteps != t.MaxSteps {
		t.MaxSteps = *patch.MaxSteps
		changed = true
	}
	if patch.Error != nil && *patch.Error != t.Error {
		t.Error = *patch.Error
		changed = true
	}
	if patch.Output != nil {
		t.Output = patch.Output
		changed = true
	}
	if patch.AssignedTo != nil && *patch.AssignedTo != t.AssignedTo {
		t.AssignedTo = *patch.AssignedTo
		changed = true
	}
	if patch.AssignedType != nil && *patch.AssignedType != t.AssignedType {
		t.AssignedType = *patch.AssignedType
		changed = true
	}
	if patch.Completed != nil && *patch.Completed != t.Completed {
		t.Completed = *patch.Completed
		changed = true
	}
	if len(patch.SetLabels) > 0 {
		if t.Labels == nil {
			t.Labels = map[string]string{}
		}
		for k, v := range patch.SetLabels {
			if t.Labels[k] != v {
				t.Labels[k] = v
				changed = true
			}
		}
	}
	return changed
}

// Update implements update(id, patch, principal) (spec §4.4): applies the
// patch, recomputes version iff an observable field changed, and always
// triggers the Review Engine recompute (task update is in its trigger
// list regardless of whether the version itself moved).
func (s *Service) Update(ctx context.Context, principal authz.Principal, id string, patch store.TaskPatch) (*store.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(principal, authz.OpMutate, t.OwnerID) {
		return nil, apierr.ErrNotFound
	}

	if s.isRemote(t) {
		remote, err := s.remote.Get(ctx, t.Remote, s.authToken(t), id)
		if err != nil {
			return nil, fmt.Errorf("remote get before update: %w", err)
		}
		applyPatch(remote, patch)
		updated, err := s.remote.Update(ctx, t.Remote, s.authToken(t), remote)
		if err != nil {
			return nil, fmt.Errorf("remote update: %w", err)
		}
		return updated, nil
	}

	changed := applyPatch(t, patch)
	if changed {
		t.Version = store.GenerateVersionHash(t.OwnerID, t.Description, t.DeviceType, t.MaxSteps, t.Parameters)
	}

	expectVersion := ""
	if patch.Version != nil {
		expectVersion = *patch.Version
	}
	if err := s.store.UpdateTask(ctx, t, expectVersion); err != nil {
		return nil, err
	}

	if err := s.engine.Recompute(ctx, t); err != nil {
		return nil, fmt.Errorf("recompute pending reviewers: %w", err)
	}
	return t, nil
}

// Delete implements delete(id, principal) (spec §4.4): the schema's foreign
// keys cascade it to the task's tag and label associations, review
// requirements and pending reviewers. The task's episode, threads and
// prompts carry its id without a foreign key and are not deleted.
func (s *Service) Delete(ctx context.Context, principal authz.Principal, id string) error {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanActAsOwner(principal, authz.OpDelete, t.OwnerID) {
		return apierr.ErrNotFound
	}
	return s.store.DeleteTask(ctx, id)
}

// cloneTask deep-copies every mutable child collection so a Copy never
// aliases the source task's slices/maps (spec §4.4: "implementers MUST NOT
// alias any mutable child collection").
func cloneTask(t *store.Task) *store.Task {
	clone := *t
	clone.Tags = append([]string(nil), t.Tags...)
	clone.ThreadIDs = append([]string(nil), t.ThreadIDs...)
	clone.PromptIDs = append([]string(nil), t.PromptIDs...)
	if t.Labels != nil {
		clone.Labels = make(map[string]string, len(t.Labels))
		for k, v := range t.Labels {
			clone.Labels[k] = v
		}
	}
	if t.Parameters != nil {
		clone.Parameters = make(map[string]any, len(t.Parameters))
		for k, v := range t.Parameters {
			clone.Parameters[k] = v
		}
	}
	if t.ExpectSchema != nil {
		clone.ExpectSchema = append([]byte(nil), t.ExpectSchema...)
	}
	if t.Output != nil {
		clone.Output = append([]byte(nil), t.Output...)
	}
	return &clone
}

// Copy implements copy(task) (spec §4.4): a fresh id, reset runtime
// timestamps/status, a re-derived version, and a brand new empty episode —
// the copy never shares its source's episode or thread ids.
func (s *Service) Copy(ctx context.Context, principal authz.Principal, t *store.Task) (*store.Task, error) {
	if !authz.CanActAsOwner(principal, authz.OpMutate, t.OwnerID) {
		return nil, apierr.ErrUnauthorized
	}

	clone := cloneTask(t)
	clone.ID = s.newID()
	clone.Created = s.now()
	clone.Started = 0
	clone.Completed = 0
	clone.Status = "defined"
	clone.ThreadIDs = nil
	clone.PromptIDs = nil
	clone.Version = store.GenerateVersionHash(clone.OwnerID, clone.Description, clone.DeviceType, clone.MaxSteps, clone.Parameters)

	if err := s.store.CreateTask(ctx, clone); err != nil {
		return nil, fmt.Errorf("create copied task: %w", err)
	}

	episode := &episodestore.Episode{ID: s.newID(), TaskID: clone.ID, Created: clone.Created}
	if err := s.episodes.CreateEpisode(ctx, episode); err != nil {
		return nil, fmt.Errorf("create episode for copy: %w", err)
	}
	clone.EpisodeID = episode.ID
	if err := s.store.UpdateTask(ctx, clone, ""); err != nil {
		return nil, fmt.Errorf("attach episode to copy: %w", err)
	}

	return clone, nil
}

// Refresh implements refresh() (spec §4.4): for a local task this simply
// reloads current Store state; for a remote task it issues GET and returns
// the remote's view (the adapter, not the local cache, is authoritative).
func (s *Service) Refresh(ctx context.Context, principal authz.Principal, id string) (*store.Task, error) {
	return s.Get(ctx, principal, id)
}

// Save implements save() (spec §4.4): local upsert; remote PUT-if-exists
// else POST, tolerating version drift between the two sides (logged, not
// fatal — see SPEC_FULL.md's ambient logging section).
func (s *Service) Save(ctx context.Context, t *store.Task) (*store.Task, error) {
	if s.isRemote(t) {
		exists, err := s.remote.Exists(ctx, t.Remote, s.authToken(t), t.ID)
		if err != nil {
			return nil, fmt.Errorf("remote existence probe: %w", err)
		}
		if !exists {
			return s.remote.Create(ctx, t.Remote, s.authToken(t), t)
		}
		updated, err := s.remote.Update(ctx, t.Remote, s.authToken(t), t)
		if err != nil {
			return nil, err
		}
		if updated != nil && updated.Version != t.Version {
			slog.Warn("remote task version differs from local copy",
				"task_id", t.ID, "local_version", t.Version, "remote_version", updated.Version)
		}
		return updated, nil
	}

	if _, err := s.store.GetTask(ctx, t.ID); err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			if err := s.store.CreateTask(ctx, t); err != nil {
				return nil, fmt.Errorf("create task on save: %w", err)
			}
			return t, nil
		}
		return nil, err
	}
	if err := s.store.UpdateTask(ctx, t, ""); err != nil {
		return nil, fmt.Errorf("update task on save: %w", err)
	}
	return t, nil
}
