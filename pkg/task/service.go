// Package task implements the Task Aggregate (spec §4.4): the orchestration
// layer gluing the core Store to the external collaborators (threads,
// prompts, episodes/actions, reviews) and to the Review Engine, plus the
// Local/Remote backend split of §4.8/§9.
package task

import (
	"context"
	"time"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/promptstore"
	"github.com/agentsea/taskara/pkg/review"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/threadstore"
	"github.com/agentsea/taskara/pkg/vault"
	"github.com/google/uuid"
)

// ImageConverter turns inline image payloads (data URLs, raw bytes, paths)
// carried in an ActionEvent's state/end_state into stable URLs before
// persistence (spec §4.4's record_action_event). The default NoopImageConverter
// passes every image through unchanged.
type ImageConverter interface {
	ConvertImages(ctx context.Context, images []string) ([]string, error)
}

// NoopImageConverter is the zero-configuration default: no external image
// store is wired, so conversion is the identity function.
type NoopImageConverter struct{}

// ConvertImages returns images unchanged.
func (NoopImageConverter) ConvertImages(_ context.Context, images []string) ([]string, error) {
	return images, nil
}

// ActionRecordedEvent is the envelope the Event Publisher emits per spec
// §4.9: "{prev_action?, action, event_number, task_snapshot}".
type ActionRecordedEvent struct {
	PrevAction   *episodestore.ActionEvent `json:"prev_action,omitempty"`
	Action       *episodestore.ActionEvent `json:"action"`
	EventNumber  int64                     `json:"event_number"`
	TaskSnapshot *store.Task               `json:"task_snapshot"`
}

// EventPublisher is the best-effort sink for ActionRecordedEvents (spec
// §4.9). A failing Publish must never fail the write that triggered it —
// callers log and continue.
type EventPublisher interface {
	PublishActionRecorded(ctx context.Context, stream string, event ActionRecordedEvent) error
}

// NoopEventPublisher silently discards every event — the default when no
// stream configuration is present (spec §4.9).
type NoopEventPublisher struct{}

// PublishActionRecorded does nothing and never errors.
func (NoopEventPublisher) PublishActionRecorded(context.Context, string, ActionRecordedEvent) error {
	return nil
}

// ActionRecordedStream is the fixed stream name §4.9 names.
const ActionRecordedStream = "events:action_recorded"

// RemoteClient is the HTTP side of the Local/Remote backend split (spec
// §4.8/§9). pkg/remote implements this against a tracker's real HTTP
// surface; Service depends only on the interface so pkg/task has no import
// on pkg/remote (and therefore no import cycle through it).
type RemoteClient interface {
	// Get fetches the current remote state of a task — the only path
	// refresh() takes for a remote-backed task.
	Get(ctx context.Context, endpoint, authToken, id string) (*store.Task, error)
	// Exists probes for a task's existence on the remote tracker; a 404
	// is a valid, non-error "false" (spec §4.8: "not an error").
	Exists(ctx context.Context, endpoint, authToken, id string) (bool, error)
	// Create POSTs a new task to the remote tracker.
	Create(ctx context.Context, endpoint, authToken string, t *store.Task) (*store.Task, error)
	// Update PUTs the current state of an existing remote task.
	Update(ctx context.Context, endpoint, authToken string, t *store.Task) (*store.Task, error)
}

// Service is the Task Aggregate. Every local dependency is a concrete
// collaborator store; the single Remote seam is injected so pkg/remote's
// HTTP adapter can be swapped for a test double.
type Service struct {
	store    *store.Store
	threads  *threadstore.Store
	prompts  *promptstore.Store
	episodes *episodestore.Store
	reviews  *reviewstore.Store
	engine   *review.Engine
	vault    *vault.Vault

	images    ImageConverter
	publisher EventPublisher
	remote    RemoteClient

	// authTokenFallback backs spec §4.8's "falling back to an env var /
	// global config file" when a remote-backed task carries no auth_token
	// of its own (HUB_API_KEY, loaded once at construction).
	authTokenFallback string

	now   func() float64
	newID func() string
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithImageConverter overrides the default no-op image converter.
func WithImageConverter(c ImageConverter) Option {
	return func(s *Service) { s.images = c }
}

// WithEventPublisher overrides the default no-op event publisher.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRemoteClient wires the HTTP Remote Adapter used for remote-backed tasks.
func WithRemoteClient(c RemoteClient) Option {
	return func(s *Service) { s.remote = c }
}

// WithAuthTokenFallback sets the fallback auth token used when a
// remote-backed task carries none of its own.
func WithAuthTokenFallback(token string) Option {
	return func(s *Service) { s.authTokenFallback = token }
}

// New constructs the Task Aggregate service over its required collaborators.
func New(
	st *store.Store,
	threads *threadstore.Store,
	prompts *promptstore.Store,
	episodes *episodestore.Store,
	reviews *reviewstore.Store,
	engine *review.Engine,
	v *vault.Vault,
	opts ...Option,
) *Service {
	s := &Service{
		store:     st,
		threads:   threads,
		prompts:   prompts,
		episodes:  episodes,
		reviews:   reviews,
		engine:    engine,
		vault:     v,
		images:    NoopImageConverter{},
		publisher: NoopEventPublisher{},
		now:       func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authToken resolves the token a remote call should carry: the task's own,
// else the configured fallback (spec §4.8).
func (s *Service) authToken(t *store.Task) string {
	if t.AuthToken != "" {
		return t.AuthToken
	}
	return s.authTokenFallback
}

func (s *Service) isRemote(t *store.Task) bool {
	return t.Remote != ""
}
