package task

import (
	"context"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/threadstore"
)

// ReviewRequirementInput mirrors store.ReviewRequirement minus the
// generated id/task_id/created fields, as supplied by a create() caller.
type ReviewRequirementInput struct {
	NumberRequired int
	Users          []string
	Agents         []string
	Groups         []string
	Types          []string
}

// CreateInput is the V1Task-shaped payload for create() (spec §4.4).
type CreateInput struct {
	OwnerID      string
	CreatedBy    string
	ParentID     string
	Description  string
	MaxSteps     int
	Device       []byte // plaintext; encrypted via the vault before persistence
	DeviceType   string
	ExpectSchema []byte
	Project      string
	AssignedTo   string
	AssignedType string
	Parameters   map[string]any
	Tags         []string
	Labels       map[string]string
	Remote       string
	AuthToken    string

	ReviewRequirements []ReviewRequirementInput
}

// Create implements the Task Aggregate's create() (spec §4.4): validates
// authz and the description-or-remote invariant, persists the task with an
// auto-created episode and feed thread, synthesises review requirements,
// and triggers the Review Engine's pending-reviewer recompute.
func (s *Service) Create(ctx context.Context, principal authz.Principal, in CreateInput) (*store.Task, error) {
	if !authz.CanActAsOwner(principal, authz.OpMutate, in.OwnerID) {
		return nil, apierr.ErrUnauthorized
	}
	if in.Description == "" && in.Remote == "" {
		return nil, apierr.NewValidationError("description", "description or remote must be set", "missing")
	}

	t := &store.Task{
		ID:           s.newID(),
		OwnerID:      in.OwnerID,
		CreatedBy:    in.CreatedBy,
		ParentID:     in.ParentID,
		Description:  in.Description,
		MaxSteps:     in.MaxSteps,
		DeviceType:   in.DeviceType,
		ExpectSchema: in.ExpectSchema,
		Project:      in.Project,
		Status:       "defined",
		AssignedTo:   in.AssignedTo,
		AssignedType: in.AssignedType,
		Parameters:   in.Parameters,
		Tags:         in.Tags,
		Labels:       in.Labels,
		Created:      s.now(),
		Remote:       in.Remote,
		AuthToken:    in.AuthToken,
	}
	if t.MaxSteps == 0 {
		t.MaxSteps = 30
	}
	t.Version = store.GenerateVersionHash(t.OwnerID, t.Description, t.DeviceType, t.MaxSteps, t.Parameters)

	if len(in.Device) > 0 {
		encrypted, err := s.vault.Encrypt(in.Device)
		if err != nil {
			return nil, fmt.Errorf("encrypt device: %w", err)
		}
		t.Device = encrypted
	}

	if s.isRemote(t) {
		created, err := s.remote.Create(ctx, t.Remote, s.authToken(t), t)
		if err != nil {
			return nil, fmt.Errorf("remote create: %w", err)
		}
		return created, nil
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	episode := &episodestore.Episode{ID: s.newID(), TaskID: t.ID, Created: t.Created}
	if err := s.episodes.CreateEpisode(ctx, episode); err != nil {
		return nil, fmt.Errorf("create episode: %w", err)
	}
	t.EpisodeID = episode.ID

	feed := &threadstore.Thread{ID: s.newID(), TaskID: t.ID, Name: threadstore.FeedThreadName, Created: t.Created}
	if err := s.threads.CreateThread(ctx, feed); err != nil {
		return nil, fmt.Errorf("create feed thread: %w", err)
	}
	t.ThreadIDs = []string{feed.ID}

	for _, reqIn := range in.ReviewRequirements {
		req := &store.ReviewRequirement{
			ID:             s.newID(),
			TaskID:         t.ID,
			NumberRequired: reqIn.NumberRequired,
			Users:          reqIn.Users,
			Agents:         reqIn.Agents,
			Groups:         reqIn.Groups,
			Types:          reqIn.Types,
			Created:        t.Created,
		}
		if err := s.store.CreateReviewRequirement(ctx, req); err != nil {
			return nil, fmt.Errorf("create review requirement: %w", err)
		}
	}

	// Persist episode_id/thread_ids now that both child rows exist.
	if err := s.store.UpdateTask(ctx, t, ""); err != nil {
		return nil, fmt.Errorf("attach episode/thread to task: %w", err)
	}

	if err := s.engine.Recompute(ctx, t); err != nil {
		return nil, fmt.Errorf("recompute pending reviewers: %w", err)
	}

	return t, nil
}
