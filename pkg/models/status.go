package models

// Agent statuses.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusBusy   = "busy"
)

// Review priorities and statuses.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
	ReviewPending  = "pending"
	ReviewResolved = "resolved"
)

// Push message types.
const (
	MsgInit           = "init"
	MsgAgent          = "agent"
	MsgActivity       = "activity"
	MsgTaskUpdate     = "task_update"
	MsgStatusUpdate   = "status_update"
	MsgReview         = "review"
	MsgReviewResolved = "review-resolved"
	MsgSystem         = "system"
)

// SeqHeader carries the state watermark on read responses.
const SeqHeader = "X-Fleet-Seq"

// Default limits.
const (
	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	DefaultActivityLimit       = 20
	DefaultStreamBuffer        = 256
)

// PriorityRank is the pending-queue sort key: high=1, medium=2, low=3, anything else=4.
func PriorityRank(p string) int {
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
