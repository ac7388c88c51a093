package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/promptstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/threadstore"
)

// threadByName finds a task's thread by name, if any.
func (s *Service) threadByName(ctx context.Context, taskID, name string) (*threadstore.Thread, error) {
	threads, err := s.threads.ListThreads(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	for _, th := range threads {
		if th.Name == name {
			return th, nil
		}
	}
	return nil, nil
}

// EnsureThread implements ensure_thread(name) (spec §4.4): idempotent —
// returns the existing thread of that name, or creates one.
func (s *Service) EnsureThread(ctx context.Context, t *store.Task, name string) (*threadstore.Thread, error) {
	existing, err := s.threadByName(ctx, t.ID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.CreateThread(ctx, t, name)
}

// CreateThread implements create_thread(name) (spec §4.4), appending the
// new thread's id to the task's thread sequence.
func (s *Service) CreateThread(ctx context.Context, t *store.Task, name string) (*threadstore.Thread, error) {
	th := &threadstore.Thread{ID: s.newID(), TaskID: t.ID, Name: name, Created: s.now()}
	if err := s.threads.CreateThread(ctx, th); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	t.ThreadIDs = append(t.ThreadIDs, th.ID)
	if err := s.store.UpdateTask(ctx, t, ""); err != nil {
		return nil, fmt.Errorf("attach thread to task: %w", err)
	}
	return th, nil
}

// RemoveThread implements remove_thread(id) (spec §4.4).
func (s *Service) RemoveThread(ctx context.Context, t *store.Task, threadID string) error {
	if err := s.threads.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	ids := t.ThreadIDs[:0]
	for _, id := range t.ThreadIDs {
		if id != threadID {
			ids = append(ids, id)
		}
	}
	t.ThreadIDs = ids
	return s.store.UpdateTask(ctx, t, "")
}

// PostMessage implements post_message(...) (spec §4.4): dispatches to the
// Thread collaborator; fails DependencyMissing describing the thread if it
// isn't one of the task's own.
func (s *Service) PostMessage(ctx context.Context, t *store.Task, threadID, role, text string, images []string, private bool, metadata json.RawMessage) (*threadstore.RoleMessage, error) {
	found := false
	for _, id := range t.ThreadIDs {
		if id == threadID {
			found = true
			break
		}
	}
	if !found {
		return nil, &apierr.DependencyMissingError{Dependency: "thread", ID: threadID}
	}
	return s.threads.Post(ctx, threadID, role, text, images, private, metadata, s.now())
}

// ListThreads returns every thread belonging to a task, for the `GET
// /v1/tasks/{id}/threads` transport handler.
func (s *Service) ListThreads(ctx context.Context, t *store.Task) ([]*threadstore.Thread, error) {
	return s.threads.ListThreads(ctx, t.ID)
}

// ListMessages returns every message posted to one of a task's own
// threads; fails DependencyMissing if threadID isn't one of them.
func (s *Service) ListMessages(ctx context.Context, t *store.Task, threadID string) ([]*threadstore.RoleMessage, error) {
	found := false
	for _, id := range t.ThreadIDs {
		if id == threadID {
			found = true
			break
		}
	}
	if !found {
		return nil, &apierr.DependencyMissingError{Dependency: "thread", ID: threadID}
	}
	return s.threads.ListMessages(ctx, threadID)
}

// ListPrompts returns the prompts stored under this task's id, oldest
// first. The task's PromptIDs list is not consulted, so a prompt attached
// from another task is not included.
func (s *Service) ListPrompts(ctx context.Context, t *store.Task) ([]*promptstore.Prompt, error) {
	return s.prompts.ListForTask(ctx, t.ID)
}

// StorePrompt implements store_prompt(...) (spec §4.4): creates the prompt
// and appends its id to the task's prompt sequence.
func (s *Service) StorePrompt(ctx context.Context, t *store.Task, p *promptstore.Prompt) (*promptstore.Prompt, error) {
	p.ID = s.newID()
	p.TaskID = t.ID
	p.Created = s.now()
	if err := s.prompts.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	t.PromptIDs = append(t.PromptIDs, p.ID)
	if err := s.store.UpdateTask(ctx, t, ""); err != nil {
		return nil, fmt.Errorf("attach prompt to task: %w", err)
	}
	return p, nil
}

// AddPrompt implements add_prompt(id) (spec §4.4): attaches an
// already-created prompt id (e.g. shared across tasks) to this task.
func (s *Service) AddPrompt(ctx context.Context, t *store.Task, promptID string) error {
	if _, err := s.prompts.Get(ctx, promptID); err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return &apierr.DependencyMissingError{Dependency: "prompt", ID: promptID}
		}
		return err
	}
	t.PromptIDs = append(t.PromptIDs, promptID)
	return s.store.UpdateTask(ctx, t, "")
}

// ApprovePrompt implements approve_prompt(pid) (spec §4.4): the literal
// "all" id approves every prompt belonging to this task.
func (s *Service) ApprovePrompt(ctx context.Context, t *store.Task, promptID string) error {
	return s.SetPromptApproval(ctx, t, promptID, true)
}

// FailPrompt mirrors ApprovePrompt with approved=false, backing the
// `POST /v1/tasks/{id}/prompts/{pid}/fail` route (pid may also be "all").
func (s *Service) FailPrompt(ctx context.Context, t *store.Task, promptID string) error {
	return s.SetPromptApproval(ctx, t, promptID, false)
}

// SetPromptApproval is the shared implementation behind ApprovePrompt and
// FailPrompt: the literal "all" id applies to every prompt belonging to
// this task, otherwise to the single named prompt.
func (s *Service) SetPromptApproval(ctx context.Context, t *store.Task, promptID string, approved bool) error {
	if promptID == "all" {
		return s.prompts.SetAllApprovedForTask(ctx, t.ID, approved)
	}
	return s.prompts.SetApproved(ctx, promptID, approved)
}
