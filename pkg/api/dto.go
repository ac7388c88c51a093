package api

import (
	"encoding/json"

	"github.com/agentsea/taskara/pkg/annotation"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/promptstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/threadstore"
)

// V1ReviewRequirement is the wire shape of a review requirement attached to
// a task at creation time, mirroring the source's V1ReviewRequirement.
type V1ReviewRequirement struct {
	NumberRequired int      `json:"number_required"`
	Users          []string `json:"users"`
	Agents         []string `json:"agents"`
	Groups         []string `json:"groups"`
	Types          []string `json:"types"`
}

// V1CreateTask is the body of `POST /v1/tasks`.
type V1CreateTask struct {
	OwnerID            string                `json:"owner_id"`
	ParentID           string                `json:"parent_id"`
	Description        string                `json:"description"`
	MaxSteps           int                   `json:"max_steps"`
	DeviceType         string                `json:"device_type"`
	ExpectSchema       json.RawMessage       `json:"expect_schema"`
	Project            string                `json:"project"`
	AssignedTo         string                `json:"assigned_to"`
	AssignedType       string                `json:"assigned_type"`
	Parameters         map[string]any        `json:"parameters"`
	Tags               []string              `json:"tags"`
	Labels             map[string]string     `json:"labels"`
	Remote             string                `json:"remote"`
	AuthToken          string                `json:"auth_token"`
	ReviewRequirements []V1ReviewRequirement `json:"review_requirements"`
}

// V1TaskUpdate is the body of `PUT /v1/tasks/{id}`, the explicit patch
// variant replacing the source's dynamic **kwargs update (spec §9).
type V1TaskUpdate struct {
	Status       *string           `json:"status"`
	Description  *string           `json:"description"`
	MaxSteps     *int              `json:"max_steps"`
	Error        *string           `json:"error"`
	Output       json.RawMessage   `json:"output"`
	AssignedTo   *string           `json:"assigned_to"`
	AssignedType *string           `json:"assigned_type"`
	Completed    *float64          `json:"completed"`
	SetLabels    map[string]string `json:"set_labels"`
	Version      *string           `json:"version"`
}

func (u V1TaskUpdate) toPatch() store.TaskPatch {
	return store.TaskPatch{
		Status: u.Status, Description: u.Description, MaxSteps: u.MaxSteps,
		Error: u.Error, Output: u.Output, AssignedTo: u.AssignedTo,
		AssignedType: u.AssignedType, Completed: u.Completed,
		SetLabels: u.SetLabels, Version: u.Version,
	}
}

// V1SearchTask is the body of `POST /v1/tasks/search`.
type V1SearchTask struct {
	Owners       []string          `json:"owners"`
	AssignedTo   string            `json:"assigned_to"`
	AssignedType string            `json:"assigned_type"`
	DeviceType   string            `json:"device_type"`
	ParentID     string            `json:"parent_id"`
	Status       string            `json:"status"`
	TaskID       string            `json:"task_id"`
	Tags         []string          `json:"tags"`
	Labels       map[string]string `json:"labels"`
}

// V1Tasks wraps a task list, mirroring the source's {"tasks": [...]} envelope.
type V1Tasks struct {
	Tasks []*store.Task `json:"tasks"`
}

// V1CreateReview is the body of `PUT /v1/tasks/{id}/review` and of
// `POST /v1/tasks/{id}/actions/{aid}/approve|fail|approve_prior`.
type V1CreateReview struct {
	Approved     bool   `json:"approved"`
	Reviewer     string `json:"reviewer"`
	ReviewerType string `json:"reviewer_type"`
	Reason       string `json:"reason"`
	Correction   string `json:"correction"`
}

// V1ReviewMany is the body of `POST /v1/tasks/{id}/approve_actions|fail_actions`.
type V1ReviewMany struct {
	Reviewer      string `json:"reviewer"`
	ReviewerType  string `json:"reviewer_type"`
	Reason        string `json:"reason"`
	Correction    string `json:"correction"`
	IncludeHidden bool   `json:"include_hidden"`
}

// V1PostMessage is the body of `POST /v1/tasks/{id}/msg`.
type V1PostMessage struct {
	ThreadID string          `json:"thread_id"`
	Role     string          `json:"role"`
	Text     string          `json:"text"`
	Images   []string        `json:"images"`
	Private  bool            `json:"private"`
	Metadata json.RawMessage `json:"metadata"`
}

// V1CreateThread is the body of `POST /v1/tasks/{id}/threads`.
type V1CreateThread struct {
	Name string `json:"name"`
}

// V1Threads wraps a thread list.
type V1Threads struct {
	Threads []*threadstore.Thread `json:"threads"`
}

// V1Messages wraps a thread's posted messages.
type V1Messages struct {
	Messages []*threadstore.RoleMessage `json:"messages"`
}

// V1Prompt is the body of `POST /v1/tasks/{id}/prompts`.
type V1Prompt struct {
	Namespace       string          `json:"namespace"`
	ThreadRef       string          `json:"thread_ref"`
	ResponseMessage string          `json:"response_message"`
	ResponseSchema  json.RawMessage `json:"response_schema"`
	Metadata        json.RawMessage `json:"metadata"`
	AgentID         string          `json:"agent_id"`
	Model           string          `json:"model"`
}

// V1Prompts wraps a task's stored prompts.
type V1Prompts struct {
	Prompts []*promptstore.Prompt `json:"prompts"`
}

// V1ActionEvent is the body of `POST /v1/tasks/{id}/actions`.
type V1ActionEvent struct {
	State        json.RawMessage `json:"state"`
	ActionName   string          `json:"action_name"`
	ActionParams json.RawMessage `json:"action_params"`
	Tool         string          `json:"tool"`
	Result       json.RawMessage `json:"result"`
	EndState     json.RawMessage `json:"end_state"`
	PromptID     string          `json:"prompt_id"`
	Namespace    string          `json:"namespace"`
	Metadata     json.RawMessage `json:"metadata"`
	Model        string          `json:"model"`
	AgentID      string          `json:"agent_id"`
}

// V1ActionEvents wraps a task's episode actions.
type V1ActionEvents struct {
	Actions []*episodestore.ActionEvent `json:"actions"`
}

// V1Episode is the response of `GET /v1/tasks/{id}/episode`.
type V1Episode struct {
	*episodestore.Episode
	Actions []*episodestore.ActionEvent `json:"actions"`
}

// V1AnnotationReviewable is the body of
// `POST /v1/tasks/{id}/actions/{aid}/annotations`.
type V1AnnotationReviewable struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	Annotator     string          `json:"annotator"`
	AnnotatorType string          `json:"annotator_type"`
}

// V1CreateAnnotationReview is the body of `POST /v1/annotations/{aid}/review`.
type V1CreateAnnotationReview struct {
	Approved     bool   `json:"approved"`
	Reviewer     string `json:"reviewer"`
	ReviewerType string `json:"reviewer_type"`
	Reason       string `json:"reason"`
	Correction   string `json:"correction"`
}

// V1Annotations wraps an action's annotations with their accumulated reviews.
type V1Annotations struct {
	Annotations []*annotation.AnnotationWithReviews `json:"annotations"`
}

// V1PendingReviewers is the response of `GET /v1/tasks/{id}/pending_reviewers`.
type V1PendingReviewers struct {
	TaskID string   `json:"task_id"`
	Users  []string `json:"users"`
	Agents []string `json:"agents"`
}

// V1PendingReviews is the response of `GET /v1/pending_reviews`.
type V1PendingReviews struct {
	Tasks []string `json:"tasks"`
}

// V1TaskTemplate is one template supplied at benchmark creation.
type V1TaskTemplate struct {
	Description string            `json:"description"`
	MaxSteps    int               `json:"max_steps"`
	DeviceType  string            `json:"device_type"`
	Project     string            `json:"project"`
	Parameters  map[string]any    `json:"parameters"`
	Labels      map[string]string `json:"labels"`
	Tags        []string          `json:"tags"`
}

// V1Benchmark is the body of `POST /v1/benchmarks`.
type V1Benchmark struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	OwnerID     string            `json:"owner_id"`
	Labels      map[string]string `json:"labels"`
	Tags        []string          `json:"tags"`
	Public      bool              `json:"public"`
	Tasks       []V1TaskTemplate  `json:"tasks"`
}

// V1Benchmarks wraps a benchmark list.
type V1Benchmarks struct {
	Benchmarks []*store.Benchmark `json:"benchmarks"`
}

// V1BenchmarkEval is the body of `POST /v1/benchmarks/{id}/eval`.
type V1BenchmarkEval struct {
	AssignedTo   string `json:"assigned_to"`
	AssignedType string `json:"assigned_type"`
}

// V1Evals wraps an eval list.
type V1Evals struct {
	Evals []*store.Eval `json:"evals"`
}

// idResponse is the `{"id": "..."}` shape returned by every create-and-return-id endpoint.
type idResponse struct {
	ID string `json:"id"`
}

// statusResponse is the `{"status": "ok"}` health body.
type statusResponse struct {
	Status string `json:"status"`
}
