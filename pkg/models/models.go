// Package models provides shared types for the Puppy Station HTTP API and push channels.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import (
	"encoding/json"
	"time"
)

// Agent is one fleet member.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Emoji       string    `json:"emoji"`
	Role        string    `json:"role"`
	Model       string    `json:"model"`
	Status      string    `json:"status"`
	CurrentTask *string   `json:"current_task"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Activity is one entry of the activity log.
type Activity struct {
	ID          int64          `json:"id"`
	AgentID     string         `json:"agent_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Review is a question awaiting a human decision.
type Review struct {
	ID         int64      `json:"id"`
	AgentID    string     `json:"agent_id"`
	Question   string     `json:"question"`
	Priority   string     `json:"priority"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// Snapshot is the full state at sequence Seq: the init message payload and the /snapshot response.
// Every change with a sequence <= Seq is reflected in it. Epoch changes when the server restarts
// and its sequence starts over.
type Snapshot struct {
	Epoch      string     `json:"epoch"`
	Seq        uint64     `json:"seq"`
	Agents     []Agent    `json:"agents"`
	Reviews    []Review   `json:"reviews"`
	Activities []Activity `json:"activities"`
}

// SystemMetrics is the payload of system messages.
type SystemMetrics struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemUsedPercent float64   `json:"mem_used_percent"`
	MemUsedBytes   uint64    `json:"mem_used_bytes"`
	MemTotalBytes  uint64    `json:"mem_total_bytes"`
	Load1          float64   `json:"load1"`
	Load5          float64   `json:"load5"`
	Load15         float64   `json:"load15"`
	UptimeSeconds  uint64    `json:"uptime_seconds"`
	SampledAt      time.Time `json:"sampled_at"`
}

// Message is one push-channel frame. Data decodes per Type: Snapshot for init, Agent for
// agent/task_update/status_update, Activity for activity, Review for review/review-resolved,
// SystemMetrics for system. Seq is 0 for system messages.
type Message struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	TS   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// CreateAgentRequest is the POST /agents body.
type CreateAgentRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
	Role  string `json:"role,omitempty"`
	Model string `json:"model,omitempty"`
}

// TaskRequest is the POST /agents/{id}/task body.
type TaskRequest struct {
	Task string `json:"task"`
}

// StatusRequest is the POST /agents/{id}/status body.
type StatusRequest struct {
	Status string `json:"status"`
}

// ActivityRequest is the POST /agents/{id}/activity body.
type ActivityRequest struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ReviewRequest is the POST /reviews body. AgentIDAlt accepts the snake_case spelling.
type ReviewRequest struct {
	AgentID    string `json:"agentId,omitempty"`
	AgentIDAlt string `json:"agent_id,omitempty"`
	Question   string `json:"question"`
	Priority   string `json:"priority,omitempty"`
}

// Agent returns whichever agent id spelling was supplied.
func (r ReviewRequest) Agent() string {
	if r.AgentID != "" {
		return r.AgentID
	}
	return r.AgentIDAlt
}

// AgentUpdate is the response of task and status updates: the agent plus its paired log record.
type AgentUpdate struct {
	Agent    Agent    `json:"agent"`
	Activity Activity `json:"activity"`
}

// Health is the /health response.
type Health struct {
	OK          bool   `json:"ok"`
	Seq         uint64 `json:"seq"`
	Subscribers int    `json:"subscribers"`
	Driver      string `json:"driver,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
