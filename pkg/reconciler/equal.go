package reconciler

import (
	"reflect"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func agentEqual(a, b models.Agent) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Emoji == b.Emoji && a.Role == b.Role &&
		a.Model == b.Model && a.Status == b.Status && strPtrEqual(a.CurrentTask, b.CurrentTask) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

func reviewEqual(a, b models.Review) bool {
	return a.ID == b.ID && a.AgentID == b.AgentID && a.Question == b.Question &&
		a.Priority == b.Priority && a.Status == b.Status && a.CreatedAt.Equal(b.CreatedAt) &&
		timePtrEqual(a.ResolvedAt, b.ResolvedAt)
}

// activityEqual compares metadata structurally; it is decoded JSON, so DeepEqual is exact.
func activityEqual(a, b models.Activity) bool {
	return a.ID == b.ID && a.AgentID == b.AgentID && a.Type == b.Type &&
		a.Description == b.Description && a.Timestamp.Equal(b.Timestamp) &&
		(len(a.Metadata) == 0 && len(b.Metadata) == 0 || reflect.DeepEqual(a.Metadata, b.Metadata))
}

func sliceEqual[T any](a, b []T, eq func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

func agentsEqual(a, b []models.Agent) bool { return sliceEqual(a, b, agentEqual) }
func reviewsEqual(a, b []models.Review) bool { return sliceEqual(a, b, reviewEqual) }
func activitiesEqual(a, b []models.Activity) bool { return sliceEqual(a, b, activityEqual) }

func systemEqual(a, b *models.SystemMetrics) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
