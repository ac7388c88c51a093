// Package store is the Postgres-backed relational persistence layer for
// the core schema of spec §3/§6, replacing tarsy's Ent ORM with a
// hand-written unit-of-work over database/sql — the pattern tarsy itself
// uses directly in pkg/events/publisher.go (raw ExecContext/QueryRowContext
// inside a single *sql.Tx). No code generation, no reflection-based query
// builder.
package store

import "encoding/json"

// Task is the persisted row shape of spec §3's Task entity. It doubles as
// the wire DTO consumed by pkg/api (Taskara has no separate ent-generated
// entity layer to keep distinct from its JSON model, unlike the teacher;
// see DESIGN.md).
type Task struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	CreatedBy    string          `json:"created_by"`
	ParentID     string          `json:"parent_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	MaxSteps     int             `json:"max_steps"`
	Device       string          `json:"-"` // vault-encrypted; never serialized directly
	DeviceType   string          `json:"device_type,omitempty"`
	ExpectSchema json.RawMessage `json:"expect_schema,omitempty"`
	Project      string          `json:"project,omitempty"`
	Version      string          `json:"version"`
	Status       string          `json:"status"`
	AssignedTo   string          `json:"assigned_to,omitempty"`
	AssignedType string          `json:"assigned_type,omitempty"`
	Parameters   map[string]any  `json:"parameters"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	EpisodeID    string          `json:"episode_id,omitempty"`
	ThreadIDs    []string        `json:"threads"`
	PromptIDs    []string        `json:"prompts"`
	Tags         []string        `json:"tags"`
	Labels       map[string]string `json:"labels"`
	Created      float64         `json:"created"`
	Started      float64         `json:"started"`
	Completed    float64         `json:"completed"`

	// Remote and AuthToken are never persisted (spec §3: "propagated only
	// to the Remote Adapter; never persisted"); they pass through the
	// domain layer only.
	Remote    string `json:"remote,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}

// IsDone reports whether status is one of the terminal statuses.
func (t *Task) IsDone() bool {
	switch t.Status {
	case "failed", "error", "canceled", "canceling", "timed out":
		return true
	default:
		return false
	}
}

// TaskPatch enumerates the settable fields of an update, replacing the
// source's dynamic **kwargs update() (spec §9). Unknown fields simply have
// no corresponding pointer here — the API layer's JSON binding ignores
// unrecognised keys rather than rejecting them, so they never reach a patch.
type TaskPatch struct {
	Status       *string
	Description  *string
	MaxSteps     *int
	Error        *string
	Output       json.RawMessage
	AssignedTo   *string
	AssignedType *string
	Completed    *float64
	// SetLabels merges into the task's existing labels (key-level upsert),
	// never replacing the whole map (spec §4.4).
	SetLabels map[string]string
	// Version, when non-nil, is an optimistic-concurrency precondition:
	// the update is rejected with ErrConflict if it doesn't match the
	// task's current version.
	Version *string
}

// TaskFilters narrows a Store.FindTasks call. Zero-value fields are
// unfiltered. Tags/Labels are matched via the normalised join tables,
// never a substring match against a JSON blob (spec §4.3).
type TaskFilters struct {
	AssignedTo   string
	AssignedType string
	DeviceType   string
	ParentID     string
	Status       string
	TaskID       string
	Tags         []string
	Labels       map[string]string
}

// ReviewRequirement is spec §3's ReviewRequirement entity.
type ReviewRequirement struct {
	ID             string   `json:"id"`
	TaskID         string   `json:"task_id"`
	NumberRequired int      `json:"number_required"`
	Users          []string `json:"users"`
	Agents         []string `json:"agents"`
	Groups         []string `json:"groups"`
	Types          []string `json:"types"`
	Created        float64  `json:"created"`
	Updated        *float64 `json:"updated,omitempty"`
}

// PendingReviewer is the derived row of spec §3/§4.6. Exactly one of
// UserID/AgentID is set.
type PendingReviewer struct {
	ID            string `json:"id"`
	TaskID        string `json:"task_id"`
	UserID        string `json:"user_id,omitempty"`
	AgentID       string `json:"agent_id,omitempty"`
	RequirementID string `json:"requirement_id"`
}

// TaskTemplate is spec §3's TaskTemplate: the same shape as Task minus
// runtime state.
type TaskTemplate struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	Description  string            `json:"description,omitempty"`
	MaxSteps     int               `json:"max_steps"`
	Device       string            `json:"-"`
	DeviceType   string            `json:"device_type,omitempty"`
	ExpectSchema json.RawMessage   `json:"expect_schema,omitempty"`
	Project      string            `json:"project,omitempty"`
	Parameters   map[string]any    `json:"parameters"`
	Labels       map[string]string `json:"labels"`
	Tags         []string          `json:"tags"`
	Created      float64           `json:"created"`
}

// Benchmark is spec §3's Benchmark.
type Benchmark struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	OwnerID     string            `json:"owner_id"`
	Labels      map[string]string `json:"labels"`
	Tags        []string          `json:"tags"`
	Public      bool              `json:"public"`
	Created     float64           `json:"created"`
	TemplateIDs []string          `json:"template_ids"`
}

// Eval is spec §3's Eval.
type Eval struct {
	ID           string   `json:"id"`
	BenchmarkID  string   `json:"benchmark_id"`
	AssignedTo   string   `json:"assigned_to,omitempty"`
	AssignedType string   `json:"assigned_type,omitempty"`
	OwnerID      string   `json:"owner_id"`
	Created      float64  `json:"created"`
	TaskIDs      []string `json:"task_ids"`
}

// Flag is spec §3's Flag.
type Flag struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"flag"`
	Result  json.RawMessage `json:"result,omitempty"`
	Created float64         `json:"created"`
}

// Tracker is a minimal passthrough row for schema parity with §6; the
// runtime-hosting component it would back is an explicit Non-goal (§1).
type Tracker struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	Created float64 `json:"created"`
}
