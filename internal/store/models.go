// Package store defines the persistence contract and shared models for agents, the activity log, and the review queue.
package store

import (
	"fmt"
	"strings"
	"time"
)

// AgentStatus is the coarse state of a fleet member.
type AgentStatus string

const (
	StatusActive AgentStatus = "active"
	StatusIdle   AgentStatus = "idle"
	StatusBusy   AgentStatus = "busy"
)

// ParseAgentStatus accepts only active, idle, or busy.
func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(strings.TrimSpace(s)); st {
	case StatusActive, StatusIdle, StatusBusy:
		return st, nil
	default:
		return "", fmt.Errorf("%w: status must be active, idle, or busy (got %q)", ErrValidation, s)
	}
}

// Priority orders the review queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority defaults an empty value to medium and rejects anything outside the enum.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.TrimSpace(s)); p {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("%w: priority must be high, medium, or low (got %q)", ErrValidation, s)
	}
}

// Rank is the sort key of the pending queue: high=1, medium=2, low=3, anything else=4.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ReviewStatus moves only from pending to resolved.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

// ActivityType is the open tag on an activity record. Unknown tags are stored verbatim
// and classify as TypeOther.
type ActivityType string

const (
	TypeCommand        ActivityType = "command"
	TypeFileUpdate     ActivityType = "file_update"
	TypeStatusChange   ActivityType = "status_change"
	TypeTaskUpdate     ActivityType = "task_update"
	TypeReviewCreated  ActivityType = "review_created"
	TypeReviewResolved ActivityType = "review_resolved"
	TypeSystem         ActivityType = "system"
	TypeOther          ActivityType = "other"
)

// Kind returns t when it is one of the known tags and TypeOther otherwise.
func (t ActivityType) Kind() ActivityType {
	switch t {
	case TypeCommand, TypeFileUpdate, TypeStatusChange, TypeTaskUpdate,
		TypeReviewCreated, TypeReviewResolved, TypeSystem:
		return t
	default:
		return TypeOther
	}
}

// Metadata is an opaque key/value payload carried on activity records.
type Metadata map[string]any

// Agent is one fleet member. ID never changes once created.
type Agent struct {
	ID          string
	Name        string
	Emoji       string
	Role        string
	Model       string
	Status      AgentStatus
	CurrentTask *string
	UpdatedAt   time.Time
}

// Activity is one immutable entry of the append-only log.
type Activity struct {
	ID          int64
	AgentID     string
	Type        ActivityType
	Description string
	Metadata    Metadata
	Timestamp   time.Time
}

// Review is a question raised by an agent. ResolvedAt is set iff Status is resolved.
type Review struct {
	ID         int64
	AgentID    string
	Question   string
	Priority   Priority
	Status     ReviewStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewAgent is the provisioning input for CreateAgent.
type NewAgent struct {
	ID    string `yaml:"id" toml:"id"`
	Name  string `yaml:"name" toml:"name"`
	Emoji string `yaml:"emoji" toml:"emoji"`
	Role  string `yaml:"role" toml:"role"`
	Model string `yaml:"model" toml:"model"`
}

// NewActivity is the input for LogActivity.
type NewActivity struct {
	AgentID     string
	Type        ActivityType
	Description string
	Metadata    Metadata
}

// NewReview is the input for AddReview. An empty Priority means medium.
type NewReview struct {
	AgentID  string
	Question string
	Priority Priority
}
