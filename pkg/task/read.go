package task

import (
	"context"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/store"
)

// Get implements get(id, principal) (spec §4.4): returns the task iff its
// owner is in resolve_owners(read), else ErrNotFound — never leaking that
// a task with this id exists for a different owner.
func (s *Service) Get(ctx context.Context, principal authz.Principal, id string) (*store.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(principal, authz.OpRead, t.OwnerID) {
		return nil, apierr.ErrNotFound
	}
	if s.isRemote(t) {
		remote, err := s.remote.Get(ctx, t.Remote, s.authToken(t), id)
		if err != nil {
			return nil, fmt.Errorf("remote get: %w", err)
		}
		return remote, nil
	}
	return t, nil
}

// FindInput narrows Find's result set (spec §4.3/§4.4's find()).
type FindInput struct {
	Owners       []string
	AssignedTo   string
	AssignedType string
	DeviceType   string
	ParentID     string
	Status       string
	TaskID       string
	Tags         []string
	Labels       map[string]string
}

// Find implements find(principal, filters, tags?, labels?) (spec §4.4):
// resolves the effective owner set (the caller's own owners unless an
// explicit filter narrows it, validated by FilterOwners), then delegates
// to the Store's join-based filtering, sorted by created descending.
func (s *Service) Find(ctx context.Context, principal authz.Principal, in FindInput) ([]*store.Task, error) {
	var owners []string
	if len(in.Owners) > 0 {
		allowed, ok := authz.FilterOwners(principal, authz.OpRead, in.Owners)
		if !ok {
			return nil, apierr.ErrForbidden
		}
		owners = allowed
	} else {
		for o := range authz.ResolveOwners(principal, authz.OpRead) {
			owners = append(owners, o)
		}
	}

	return s.store.FindTasks(ctx, owners, store.TaskFilters{
		AssignedTo:   in.AssignedTo,
		AssignedType: in.AssignedType,
		DeviceType:   in.DeviceType,
		ParentID:     in.ParentID,
		Status:       in.Status,
		TaskID:       in.TaskID,
		Tags:         in.Tags,
		Labels:       in.Labels,
	})
}
