package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

// handleSSE is the server-sent-events rendition of the push channel, for clients
// that cannot open a WebSocket. Same framing: init first, then broadcast messages.
func (a *App) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := a.Hub.Subscribe("sse")
	defer a.Hub.Unsubscribe(sub)

	ctx := r.Context()
	snap, err := a.Fleet.Snapshot(ctx, a.opts.ActivityLimit)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	init, err := a.Hub.Encode(models.MsgInit, snap.Seq, snap)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "encode failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprintf(w, "data: %s\n\n", init)
	flusher.Flush()

	keepalive := time.NewTicker(a.opts.PingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			// Comment keepalive.
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
