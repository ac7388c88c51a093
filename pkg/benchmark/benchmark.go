// Package benchmark implements Benchmark and Eval orchestration (spec
// §4.7): persisting a Benchmark alongside its Task Templates, and
// materialising an Eval's tasks from those templates on demand.
package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/task"
	"github.com/google/uuid"
)

// Service orchestrates Benchmark/Eval operations atop the core Store and
// the Task Aggregate (Eval materialisation creates real tasks).
type Service struct {
	store *store.Store
	tasks *task.Service
	now   func() float64
	newID func() string
}

// New constructs a benchmark Service. now defaults to the wall clock and
// newID to a random UUID when nil.
func New(st *store.Store, tasks *task.Service, now func() float64, newID func() string) *Service {
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{store: st, tasks: tasks, now: now, newID: newID}
}

// TemplateInput is one Task Template supplied at benchmark creation.
type TemplateInput struct {
	Description  string
	MaxSteps     int
	DeviceType   string
	Project      string
	Parameters   map[string]any
	Labels       map[string]string
	Tags         []string
}

// CreateInput is the payload for creating a Benchmark (spec §4.7).
type CreateInput struct {
	Name        string
	Description string
	OwnerID     string
	Labels      map[string]string
	Tags        []string
	Public      bool
	Templates   []TemplateInput
}

// Create implements Benchmark creation (spec §4.7): persists the Benchmark
// row, all its Task Templates, and the `benchmark_task_association` rows.
// Every template is labelled `benchmark=<name>` on addition. A duplicate
// name fails Conflict (enforced by the Store's unique-constraint check).
func (s *Service) Create(ctx context.Context, principal authz.Principal, in CreateInput) (*store.Benchmark, error) {
	if !authz.CanActAsOwner(principal, authz.OpMutate, in.OwnerID) {
		return nil, apierr.ErrUnauthorized
	}

	now := s.clock()
	b := &store.Benchmark{
		ID: s.id(), Name: in.Name, Description: in.Description, OwnerID: in.OwnerID,
		Labels: in.Labels, Tags: in.Tags, Public: in.Public, Created: now,
	}

	for _, ti := range in.Templates {
		labels := map[string]string{}
		for k, v := range ti.Labels {
			labels[k] = v
		}
		labels["benchmark"] = in.Name

		tmpl := &store.TaskTemplate{
			ID: s.id(), OwnerID: in.OwnerID, Description: ti.Description, MaxSteps: ti.MaxSteps,
			DeviceType: ti.DeviceType, Project: ti.Project, Parameters: ti.Parameters,
			Labels: labels, Tags: ti.Tags, Created: now,
		}
		if tmpl.MaxSteps == 0 {
			tmpl.MaxSteps = 30
		}
		if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
			return nil, fmt.Errorf("create template: %w", err)
		}
		b.TemplateIDs = append(b.TemplateIDs, tmpl.ID)
	}

	if err := s.store.CreateBenchmark(ctx, b); err != nil {
		return nil, err // already apierr.ErrConflict on duplicate name
	}
	return b, nil
}

// Eval implements benchmark.eval(assigned_to?, assigned_type?) (spec
// §4.7): materialises a fresh Task per template via the Task Aggregate's
// create(), each inheriting the benchmark's label, and records the result
// as an Eval.
func (s *Service) Eval(ctx context.Context, principal authz.Principal, benchmarkID, assignedTo, assignedType string) (*store.Eval, error) {
	b, err := s.store.GetBenchmark(ctx, benchmarkID)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(principal, authz.OpRead, b.OwnerID) {
		return nil, apierr.ErrNotFound
	}

	e := &store.Eval{
		ID: s.id(), BenchmarkID: b.ID, AssignedTo: assignedTo, AssignedType: assignedType,
		OwnerID: b.OwnerID, Created: s.clock(),
	}

	for _, templateID := range b.TemplateIDs {
		tmpl, err := s.store.GetTemplate(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", templateID, err)
		}
		created, err := s.tasks.Create(ctx, principal, task.CreateInput{
			OwnerID:      tmpl.OwnerID,
			Description:  tmpl.Description,
			MaxSteps:     tmpl.MaxSteps,
			DeviceType:   tmpl.DeviceType,
			Project:      tmpl.Project,
			Parameters:   tmpl.Parameters,
			Tags:         tmpl.Tags,
			Labels:       tmpl.Labels,
			AssignedTo:   assignedTo,
			AssignedType: assignedType,
		})
		if err != nil {
			return nil, fmt.Errorf("materialise task from template %s: %w", templateID, err)
		}
		e.TaskIDs = append(e.TaskIDs, created.ID)
	}

	if err := s.store.CreateEval(ctx, e); err != nil {
		return nil, fmt.Errorf("create eval: %w", err)
	}
	return e, nil
}

// Get loads a single benchmark, scoped to what principal may read.
func (s *Service) Get(ctx context.Context, principal authz.Principal, id string) (*store.Benchmark, error) {
	b, err := s.store.GetBenchmark(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Public && !authz.CanActAsOwner(principal, authz.OpRead, b.OwnerID) {
		return nil, apierr.ErrNotFound
	}
	return b, nil
}

// Find returns every benchmark owned by principal plus every public one.
func (s *Service) Find(ctx context.Context, principal authz.Principal) ([]*store.Benchmark, error) {
	return s.store.FindBenchmarks(ctx, principal.Email)
}

// Delete removes a benchmark the principal owns.
func (s *Service) Delete(ctx context.Context, principal authz.Principal, id string) error {
	b, err := s.store.GetBenchmark(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanActAsOwner(principal, authz.OpDelete, b.OwnerID) {
		return apierr.ErrNotFound
	}
	return s.store.DeleteBenchmark(ctx, id)
}

// GetEval loads a single eval, scoped to what principal may read.
func (s *Service) GetEval(ctx context.Context, principal authz.Principal, id string) (*store.Eval, error) {
	e, err := s.store.GetEval(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(principal, authz.OpRead, e.OwnerID) {
		return nil, apierr.ErrNotFound
	}
	return e, nil
}

// FindEvals returns every eval owned by principal.
func (s *Service) FindEvals(ctx context.Context, principal authz.Principal) ([]*store.Eval, error) {
	return s.store.FindEvalsForOwner(ctx, principal.Email)
}

// DeleteEval removes an eval the principal owns.
func (s *Service) DeleteEval(ctx context.Context, principal authz.Principal, id string) error {
	e, err := s.store.GetEval(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanActAsOwner(principal, authz.OpDelete, e.OwnerID) {
		return apierr.ErrNotFound
	}
	return s.store.DeleteEval(ctx, id)
}

func (s *Service) clock() float64 { return s.now() }

func (s *Service) id() string { return s.newID() }
