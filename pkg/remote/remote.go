// Package remote implements the HTTP Remote Adapter (spec §4.8): for a
// Task carrying a non-empty remote endpoint, every mutating and read
// operation routes to that endpoint over HTTP instead of the local Store,
// preserving method, path, and JSON body exactly as spec §6 names them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/store"
)

// Client is an HTTP implementation of pkg/task.RemoteClient.
type Client struct {
	httpClient *http.Client
}

// New constructs a remote Client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Get implements refresh()'s remote path (spec §4.8): GET
// {endpoint}/v1/tasks/{id}, overwriting local fields with the response.
func (c *Client) Get(ctx context.Context, endpoint, authToken, id string) (*store.Task, error) {
	t := &store.Task{}
	if err := c.do(ctx, http.MethodGet, endpoint+"/v1/tasks/"+id, authToken, nil, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Exists probes save()'s existence check (spec §4.8): a 404 is a valid,
// non-error "false" — it is NOT an error, it selects POST-create over
// PUT-update.
func (c *Client) Exists(ctx context.Context, endpoint, authToken, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/v1/tasks/"+id, nil)
	if err != nil {
		return false, fmt.Errorf("build exists request: %w", err)
	}
	setAuthHeader(req, authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, statusError(resp)
	}
	return true, nil
}

// Create POSTs a new task to the remote tracker (spec §6's `POST /v1/tasks`).
func (c *Client) Create(ctx context.Context, endpoint, authToken string, t *store.Task) (*store.Task, error) {
	out := &store.Task{}
	if err := c.do(ctx, http.MethodPost, endpoint+"/v1/tasks", authToken, t, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update PUTs the current state of an existing remote task (spec §6's
// `PUT /v1/tasks/{id}`). The remote's version is advisory: divergence is
// tolerated by the caller, never rejected here.
func (c *Client) Update(ctx context.Context, endpoint, authToken string, t *store.Task) (*store.Task, error) {
	out := &store.Task{}
	if err := c.do(ctx, http.MethodPut, endpoint+"/v1/tasks/"+t.ID, authToken, t, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, url, authToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	setAuthHeader(req, authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func setAuthHeader(req *http.Request, authToken string) {
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
}

// classify maps a transport-level failure (timeout, connection refused) to
// the sentinel a caller can match with errors.Is.
func classify(err error) error {
	var netErr interface{ Timeout() bool }
	if asTimeout(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", apierr.ErrTimeout, err)
	}
	return &apierr.RemoteFailureError{StatusCode: 0, Body: err.Error()}
}

func asTimeout(err error, target *interface{ Timeout() bool }) bool {
	for err != nil {
		if t, ok := err.(interface{ Timeout() bool }); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &apierr.RemoteFailureError{StatusCode: resp.StatusCode, Body: string(body)}
}
