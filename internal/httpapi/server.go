package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/buppyai/puppy-station/internal/broadcast"
	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/internal/ui"
	"github.com/buppyai/puppy-station/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for dev mode (UI served from a different origin).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", models.SeqHeader+", X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr           string
	Dev            bool
	Driver         string         // reported by /health
	Fleet          *fleet.Service // required
	Hub            *broadcast.Hub // required
	MetricsHandler http.Handler   // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool           // if true, wrap handler with otelhttp for request metrics
	ActivityLimit  int            // activities in snapshots; 0 uses the store default
	PingInterval   time.Duration  // push keepalive; 0 means 30s
	Logger         *slog.Logger
}

// App holds the HTTP server and the components its handlers use.
type App struct {
	Server *http.Server
	Hub    *broadcast.Hub
	Fleet  *fleet.Service

	opts ServerOptions
	log  *slog.Logger
}

// NewApp creates the HTTP app and registers all routes.
func NewApp(opts ServerOptions) (*App, error) {
	if opts.Fleet == nil || opts.Hub == nil {
		return nil, errors.New("httpapi: Fleet and Hub are required")
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &App{Hub: opts.Hub, Fleet: opts.Fleet, opts: opts, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	mux.HandleFunc("GET /agents", a.handleListAgents)
	mux.HandleFunc("POST /agents", a.handleCreateAgent)
	mux.HandleFunc("GET /agents/{id}", a.handleGetAgent)
	mux.HandleFunc("GET /agents/{id}/activity", a.handleAgentActivities)
	mux.HandleFunc("POST /agents/{id}/activity", a.handleLogActivity)
	mux.HandleFunc("POST /agents/{id}/task", a.handleUpdateTask)
	mux.HandleFunc("POST /agents/{id}/status", a.handleUpdateStatus)
	mux.HandleFunc("GET /activities", a.handleRecentActivities)
	mux.HandleFunc("GET /reviews", a.handlePendingReviews)
	mux.HandleFunc("POST /reviews", a.handleAddReview)
	mux.HandleFunc("GET /reviews/{id}", a.handleGetReview)
	mux.HandleFunc("PATCH /reviews/{id}/resolve", a.handleResolveReview)
	mux.HandleFunc("GET /snapshot", a.handleSnapshot)

	mux.HandleFunc("GET /ws", a.handleWebSocket)
	mux.HandleFunc("GET /stream", a.handleSSE)

	// UI: embedded dashboard
	mux.Handle("/", ui.Handler())

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(models.DefaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	handler = requestLogMiddleware(log, handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "puppy-station")
	}
	a.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /ws and /stream are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	a.Server.RegisterOnShutdown(opts.Hub.Close)
	return a, nil
}

// writeStoreError maps store sentinels to status codes. Unexpected errors are logged and hidden.
func (a *App) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}
