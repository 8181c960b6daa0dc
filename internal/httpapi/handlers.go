package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/pkg/models"
)

// setSeq stamps a read response with the watermark taken before the query.
func setSeq(w http.ResponseWriter, seq uint64) {
	w.Header().Set(models.SeqHeader, strconv.FormatUint(seq, 10))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// queryLimit parses ?limit=. Missing or non-positive means the store default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return n, true
}

func pathReviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid review id")
		return 0, false
	}
	return id, true
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.Health{OK: true, Seq: a.Fleet.Seq(), Subscribers: a.Hub.Len(), Driver: a.opts.Driver})
}

func (a *App) handleListAgents(w http.ResponseWriter, r *http.Request) {
	seq := a.Fleet.Seq()
	agents, err := a.Fleet.ListAgents(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, seq)
	writeJSON(w, fleet.AgentModels(agents))
}

func (a *App) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body models.CreateAgentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	ag, err := a.Fleet.CreateAgent(r.Context(), store.NewAgent{
		ID: body.ID, Name: body.Name, Emoji: body.Emoji, Role: body.Role, Model: body.Model,
	})
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, fleet.AgentModel(ag))
}

func (a *App) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	seq := a.Fleet.Seq()
	ag, err := a.Fleet.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, seq)
	writeJSON(w, fleet.AgentModel(ag))
}

func (a *App) handleAgentActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	seq := a.Fleet.Seq()
	acts, err := a.Fleet.AgentActivities(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, seq)
	writeJSON(w, fleet.ActivityModels(acts))
}

func (a *App) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	var body models.ActivityRequest
	if !decodeBody(w, r, &body) {
		return
	}
	act, err := a.Fleet.LogActivity(r.Context(), store.NewActivity{
		AgentID:     r.PathValue("id"),
		Type:        store.ActivityType(body.Type),
		Description: body.Description,
		Metadata:    store.Metadata(body.Metadata),
	})
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, fleet.ActivityModel(act))
}

func (a *App) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var body models.TaskRequest
	if !decodeBody(w, r, &body) {
		return
	}
	ag, act, err := a.Fleet.UpdateAgentTask(r.Context(), r.PathValue("id"), body.Task)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, models.AgentUpdate{Agent: fleet.AgentModel(ag), Activity: fleet.ActivityModel(act)})
}

func (a *App) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body models.StatusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	ag, act, err := a.Fleet.UpdateAgentStatus(r.Context(), r.PathValue("id"), store.AgentStatus(body.Status))
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, models.AgentUpdate{Agent: fleet.AgentModel(ag), Activity: fleet.ActivityModel(act)})
}

func (a *App) handleRecentActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	seq := a.Fleet.Seq()
	acts, err := a.Fleet.RecentActivities(r.Context(), limit)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, seq)
	writeJSON(w, fleet.ActivityModels(acts))
}

func (a *App) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	seq := a.Fleet.Seq()
	reviews, err := a.Fleet.PendingReviews(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, seq)
	writeJSON(w, fleet.ReviewModels(reviews))
}

func (a *App) handleAddReview(w http.ResponseWriter, r *http.Request) {
	var body models.ReviewRequest
	if !decodeBody(w, r, &body) {
		return
	}
	rv, _, err := a.Fleet.AddReview(r.Context(), store.NewReview{
		AgentID:  body.Agent(),
		Question: body.Question,
		Priority: store.Priority(body.Priority),
	})
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, fleet.ReviewModel(rv))
}

func (a *App) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathReviewID(w, r)
	if !ok {
		return
	}
	seq := a.Fleet.Seq()
	rv, err := a.Fleet.GetReview(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, seq)
	writeJSON(w, fleet.ReviewModel(rv))
}

func (a *App) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathReviewID(w, r)
	if !ok {
		return
	}
	rv, _, err := a.Fleet.ResolveReview(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, fleet.ReviewModel(rv))
}

func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = a.opts.ActivityLimit
	}
	snap, err := a.Fleet.Snapshot(r.Context(), limit)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	setSeq(w, snap.Seq)
	writeJSON(w, snap)
}
