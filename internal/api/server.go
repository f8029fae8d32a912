package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/slotbot/internal/assistant"
	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/metrics"
	"github.com/kalambet/slotbot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// InteractionStore is the read side of the interaction log.
type InteractionStore interface {
	ListInteractions(ctx context.Context, limit, offset int) ([]storage.Interaction, error)
	GetInteraction(ctx context.Context, id string) (storage.Interaction, error)
	DeleteInteraction(ctx context.Context, id string) error
}

// Deps holds the dependencies of the HTTP handler.
type Deps struct {
	Assistant    *assistant.Service
	Executor     *dispatch.Executor
	Interactions InteractionStore   // optional; interaction routes are not mounted when nil
	Metrics      *metrics.Collector // optional; /metrics is not mounted when nil
	Token        string
	Location     *time.Location // zone of ICS event times
}

// NewHandler returns the slotbot HTTP API. /health, /chat and /metrics are
// open; the calendar and interaction routes require the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(cors)

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		mountCalendar(r, deps)
		if deps.Interactions != nil {
			r.Get("/interactions", handleListInteractions(deps))
			r.Get("/interactions/{id}", handleGetInteraction(deps))
			r.Delete("/interactions/{id}", handleDeleteInteraction(deps))
		}
	})

	return r
}

// cors allows any origin, as browser chat front ends are served separately.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
