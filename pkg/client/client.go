// Package client provides a Go SDK for the Puppy Station HTTP API and its WebSocket push channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/buppyai/puppy-station/pkg/models"
)

// Client calls the Puppy Station HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client().Do(req)
}

// doJSON performs the request and decodes the body into out. It returns the X-Fleet-Seq header (0 if absent).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) (uint64, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return 0, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errBody.Error}
	}
	seq, _ := strconv.ParseUint(resp.Header.Get(models.SeqHeader), 10, 64)
	if out != nil {
		return seq, json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return seq, nil
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

// Health returns the /health response.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var out models.Health
	_, err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return &out, err
}

// ListAgents returns every agent ordered by name.
func (c *Client) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var out []models.Agent
	_, err := c.doJSON(ctx, http.MethodGet, "/agents", nil, &out)
	return out, err
}

// GetAgent returns one agent.
func (c *Client) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var out models.Agent
	_, err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// CreateAgent provisions a new agent.
func (c *Client) CreateAgent(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error) {
	var out models.Agent
	_, err := c.doJSON(ctx, http.MethodPost, "/agents", req, &out)
	return &out, err
}

// UpdateTask sets an agent's current task (and makes it active).
func (c *Client) UpdateTask(ctx context.Context, agentID, task string) (*models.AgentUpdate, error) {
	var out models.AgentUpdate
	_, err := c.doJSON(ctx, http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/task", models.TaskRequest{Task: task}, &out)
	return &out, err
}

// UpdateStatus sets an agent's status.
func (c *Client) UpdateStatus(ctx context.Context, agentID, status string) (*models.AgentUpdate, error) {
	var out models.AgentUpdate
	_, err := c.doJSON(ctx, http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/status", models.StatusRequest{Status: status}, &out)
	return &out, err
}

// LogActivity appends one record to an agent's activity log.
func (c *Client) LogActivity(ctx context.Context, agentID string, req models.ActivityRequest) (*models.Activity, error) {
	var out models.Activity
	_, err := c.doJSON(ctx, http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/activity", req, &out)
	return &out, err
}

// AgentActivities returns an agent's newest records. limit <= 0 uses the server default.
func (c *Client) AgentActivities(ctx context.Context, agentID string, limit int) ([]models.Activity, error) {
	var out []models.Activity
	_, err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(agentID)+"/activity"+limitQuery(limit), nil, &out)
	return out, err
}

// RecentActivities returns the newest records across all agents.
func (c *Client) RecentActivities(ctx context.Context, limit int) ([]models.Activity, error) {
	var out []models.Activity
	_, err := c.doJSON(ctx, http.MethodGet, "/activities"+limitQuery(limit), nil, &out)
	return out, err
}

// PendingReviews returns the pending queue, highest priority first.
func (c *Client) PendingReviews(ctx context.Context) ([]models.Review, error) {
	var out []models.Review
	_, err := c.doJSON(ctx, http.MethodGet, "/reviews", nil, &out)
	return out, err
}

// AddReview queues a review. An empty priority means medium.
func (c *Client) AddReview(ctx context.Context, agentID, question, priority string) (*models.Review, error) {
	var out models.Review
	_, err := c.doJSON(ctx, http.MethodPost, "/reviews", models.ReviewRequest{AgentID: agentID, Question: question, Priority: priority}, &out)
	return &out, err
}

// GetReview returns a review in any status.
func (c *Client) GetReview(ctx context.Context, id int64) (*models.Review, error) {
	var out models.Review
	_, err := c.doJSON(ctx, http.MethodGet, "/reviews/"+strconv.FormatInt(id, 10), nil, &out)
	return &out, err
}

// ResolveReview resolves a pending review. Resolving twice returns a 404 APIError.
func (c *Client) ResolveReview(ctx context.Context, id int64) (*models.Review, error) {
	var out models.Review
	_, err := c.doJSON(ctx, http.MethodPatch, "/reviews/"+strconv.FormatInt(id, 10)+"/resolve", nil, &out)
	return &out, err
}

// Snapshot returns the full state with its sequence watermark.
func (c *Client) Snapshot(ctx context.Context, limit int) (models.Snapshot, error) {
	var out models.Snapshot
	_, err := c.doJSON(ctx, http.MethodGet, "/snapshot"+limitQuery(limit), nil, &out)
	return out, err
}
