package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/pkg/annotation"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/benchmark"
	"github.com/agentsea/taskara/pkg/episode"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/promptstore"
	"github.com/agentsea/taskara/pkg/review"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/task"
	"github.com/agentsea/taskara/pkg/threadstore"
	testdb "github.com/agentsea/taskara/test/database"
)

// e2eEnv wires every real core service atop a real PostgreSQL schema and
// serves them over a live HTTP listener, exercising the full stack the way
// a deployed taskara instance would.
type e2eEnv struct {
	base    string
	client  *http.Client
	server  *Server
}

func setupE2E(t *testing.T) *e2eEnv {
	t.Helper()
	dbClient := testdb.NewTestClient(t)
	db := dbClient.DB()

	coreStore := store.New(db)
	threads := threadstore.New(db)
	prompts := promptstore.New(db)
	episodes := episodestore.New(db)
	reviews := reviewstore.New(db)

	engine := review.New(coreStore, reviews, episodes)
	tasks := task.New(coreStore, threads, prompts, episodes, reviews, engine, nil)
	episodeSvc := episode.New(episodes, reviews, nil)
	benchmarks := benchmark.New(coreStore, tasks, nil, nil)
	annotations := annotation.New(episodes, reviews, nil, nil)

	server := NewServer(dbClient, tasks, episodeSvc, benchmarks, annotations, engine, false)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.StartWithListener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return &e2eEnv{
		base:   fmt.Sprintf("http://%s", ln.Addr().String()),
		client: &http.Client{Timeout: 10 * time.Second},
		server: server,
	}
}

// do issues an HTTP request as the given principal email (bearer token) and
// decodes the JSON response body into out, if non-nil.
func (e *e2eEnv) do(t *testing.T, method, path, email string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.base+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+email)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// TestEndToEndScenarios drives every literal scenario of the task lifecycle
// and review engine against a real Postgres-backed server.
func TestEndToEndScenarios(t *testing.T) {
	env := setupE2E(t)

	t.Run("create and review", func(t *testing.T) {
		owner := "tom@myspace.com"
		var created store.Task
		resp := env.do(t, http.MethodPost, "/v1/tasks", owner, map[string]any{
			"owner_id":    owner,
			"description": "Search for french ducks",
			"assigned_to": owner,
			"labels":      map[string]string{"test": "true"},
			"review_requirements": []map[string]any{
				{"number_required": 2, "users": []string{"anonymous@agentsea.ai"}, "agents": []string{"agent1", "agent2"}},
				{"number_required": 1, "users": []string{"tom@myspace.com", "anonymous@agentsea.ai"}, "agents": []string{"agent3"}},
			},
		}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NotEmpty(t, created.ID)

		var pending V1PendingReviewers
		resp = env.do(t, http.MethodGet, "/v1/tasks/"+created.ID+"/pending_reviewers", owner, nil, &pending)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 5, len(pending.Users)+len(pending.Agents))

		resp = env.do(t, http.MethodPut, "/v1/tasks/"+created.ID+"/review", owner, map[string]any{
			"approved": true, "reviewer": owner, "reviewer_type": "user",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodPut, "/v1/tasks/"+created.ID+"/review", owner, map[string]any{
			"approved": true, "reviewer": "agent1", "reviewer_type": "agent",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodGet, "/v1/tasks/"+created.ID+"/pending_reviewers", owner, nil, &pending)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 3, len(pending.Users)+len(pending.Agents))

		var pendingReviews V1PendingReviews
		resp = env.do(t, http.MethodGet, "/v1/pending_reviews", owner, nil, &pendingReviews)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, pendingReviews.Tasks, 0)
	})

	t.Run("label update", func(t *testing.T) {
		owner := "label-owner@myspace.com"
		var created store.Task
		resp := env.do(t, http.MethodPost, "/v1/tasks", owner, map[string]any{
			"owner_id":    owner,
			"description": "a task",
			"labels":      map[string]string{"test": "true"},
		}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = env.do(t, http.MethodPut, "/v1/tasks/"+created.ID, owner, map[string]any{
			"set_labels": map[string]string{"test_set": "true"},
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var fetched store.Task
		resp = env.do(t, http.MethodGet, "/v1/tasks/"+created.ID, owner, nil, &fetched)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, map[string]string{"test": "true", "test_set": "true"}, fetched.Labels)
	})

	t.Run("prompt round trip", func(t *testing.T) {
		owner := "prompt-owner@myspace.com"
		var created store.Task
		resp := env.do(t, http.MethodPost, "/v1/tasks", owner, map[string]any{
			"owner_id": owner, "description": "a task",
		}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var idResp idResponse
		resp = env.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/prompts", owner, map[string]any{
			"namespace": "default", "response_message": "hello",
		}, &idResp)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NotEmpty(t, idResp.ID)

		var prompts V1Prompts
		resp = env.do(t, http.MethodGet, "/v1/tasks/"+created.ID+"/prompts", owner, nil, &prompts)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.True(t, containsPromptID(prompts.Prompts, idResp.ID))

		resp = env.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/prompts/"+idResp.ID+"/approve", owner, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodGet, "/v1/tasks/"+created.ID+"/prompts", owner, nil, &prompts)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		for _, p := range prompts.Prompts {
			if p.ID == idResp.ID {
				require.True(t, p.Approved)
			}
		}
	})

	t.Run("action ordering", func(t *testing.T) {
		owner := "action-owner@myspace.com"
		var created store.Task
		resp := env.do(t, http.MethodPost, "/v1/tasks", owner, map[string]any{
			"owner_id": owner, "description": "a task",
		}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		for _, name := range []string{"click", "mouse_move", "end"} {
			resp = env.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/actions", owner, map[string]any{
				"action_name": name,
			}, nil)
			require.Contains(t, []int{http.StatusCreated, http.StatusOK}, resp.StatusCode)
		}

		var actions V1ActionEvents
		resp = env.do(t, http.MethodGet, "/v1/tasks/"+created.ID+"/actions", owner, nil, &actions)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		names := make([]string, len(actions.Actions))
		for i, a := range actions.Actions {
			names[i] = a.ActionName
		}
		require.Equal(t, []string{"click", "end"}, names)
	})

	t.Run("benchmark to eval", func(t *testing.T) {
		owner := "bench-owner@myspace.com"
		var created store.Benchmark
		resp := env.do(t, http.MethodPost, "/v1/benchmarks", owner, map[string]any{
			"name": "test-bench", "owner_id": owner,
			"tasks": []map[string]any{
				{"description": "desktop task", "device_type": "desktop"},
				{"description": "mobile task", "device_type": "mobile"},
			},
		}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "test-bench", created.Name)

		var eval store.Eval
		resp = env.do(t, http.MethodPost, "/v1/benchmarks/"+created.ID+"/eval", owner, map[string]any{
			"assigned_to": "test_agent", "assigned_type": "pizza",
		}, &eval)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Len(t, eval.TaskIDs, 2)

		for _, id := range eval.TaskIDs {
			var tk store.Task
			resp = env.do(t, http.MethodGet, "/v1/tasks/"+id, owner, nil, &tk)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, "test-bench", tk.Labels["benchmark"])
			require.Equal(t, "test_agent", tk.AssignedTo)
		}
	})

	t.Run("org authz", func(t *testing.T) {
		org := "acme-corp"
		owner := "acme-admin@myspace.com"
		var created store.Task
		resp := env.doWithOrgs(t, http.MethodPost, "/v1/tasks", owner, org, authz.RoleAdmin, map[string]any{
			"owner_id": org, "description": "an org task",
		}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		viewer := "viewer@myspace.com"
		resp = env.doWithOrgs(t, http.MethodGet, "/v1/tasks/"+created.ID, viewer, org, authz.RoleViewer, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.doWithOrgs(t, http.MethodPut, "/v1/tasks/"+created.ID, viewer, org, authz.RoleViewer,
			map[string]any{"status": "finished"}, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		member := "member@myspace.com"
		resp = env.doWithOrgs(t, http.MethodPut, "/v1/tasks/"+created.ID, member, org, authz.RoleMember,
			map[string]any{"status": "finished"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

// doWithOrgs is do() plus an X-Task-Organizations header granting the
// caller the given role in org.
func (e *e2eEnv) doWithOrgs(t *testing.T, method, path, email, org string, role authz.Role, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.base+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+email)
	orgs, err := json.Marshal(map[string]authz.OrgMembership{org: {Role: role}})
	require.NoError(t, err)
	req.Header.Set(orgHeader, string(orgs))
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func containsPromptID(prompts []*promptstore.Prompt, id string) bool {
	for _, p := range prompts {
		if p.ID == id {
			return true
		}
	}
	return false
}
