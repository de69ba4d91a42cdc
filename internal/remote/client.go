// Package remote provides the HTTP client for the glimpse task API.
//
// All task operations go through /api/tasks. Update and delete are
// body-based rather than path-based, matching the server's route surface.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/glimmerhq/glimpse/internal/task"
)

// APIError is a structured error response from the server.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// weekRange is the JSON-encoded value of the week query parameter.
type weekRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Client issues authenticated task CRUD calls against a glimpse server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
//
// The token is the session token obtained at login; it is sent as a bearer
// credential on every request. An empty token produces unauthenticated
// requests, which the server rejects for task routes.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WeekTasks fetches the caller's tasks with a due date inside [start, end].
func (c *Client) WeekTasks(ctx context.Context, start, end time.Time) ([]*task.Task, error) {
	week, err := json.Marshal(weekRange{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to encode week range: %w", err)
	}

	endpoint := c.baseURL + "/api/tasks?week=" + url.QueryEscape(string(week))

	var tasks []*task.Task
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task on the server. The server mints the identifier;
// any local identifier on t is not transmitted.
func (c *Client) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	var created task.Task
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/tasks", t, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask updates the server task identified by t.ID.
func (c *Client) UpdateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	var updated task.Task
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/api/tasks", t, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Session is the server's answer to a successful login.
type Session struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// Login exchanges credentials for a session token. The returned session is
// what subsequent authenticated clients are built from.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{"username": username, "password": password}

	var session Session
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/session", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout ends the session server-side. Token revocation is client-side
// discard, so this is advisory.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/api/session", nil, nil)
}

// DeleteTask deletes the server task with the given identifier.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	body := map[string]string{"id": id}
	return c.do(ctx, http.MethodDelete, c.baseURL+"/api/tasks", body, nil)
}

// do issues a request and decodes the JSON response into out (if non-nil).
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UnknownError", Message: "something went wrong"}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
