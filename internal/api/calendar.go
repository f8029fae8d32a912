package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
)

func mountCalendar(r chi.Router, deps Deps) {
	r.Route("/calendar", func(r chi.Router) {
		r.Get("/availability/{date}", handleAvailability(deps))
		r.Get("/day/{date}", handleDay(deps))
		r.Get("/week/{date}", handleWeek(deps))
		r.Get("/week/{date}/ics", handleWeekICS(deps))
		r.Post("/events", handleBook(deps))
		r.Delete("/events/{date}/{time}", handleDelete(deps))
		r.Post("/events/move", handleMove(deps))
	})
}

// statusFor maps an outcome kind onto an HTTP status.
func statusFor(kind dispatch.OutcomeKind) int {
	switch kind {
	case dispatch.OutcomeOK:
		return http.StatusOK
	case dispatch.OutcomeConflict:
		return http.StatusConflict
	case dispatch.OutcomeNotFound:
		return http.StatusNotFound
	case dispatch.OutcomeBackendTimeout:
		return http.StatusGatewayTimeout
	case dispatch.OutcomeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// execute runs op through the executor and writes the error response when
// it fails. The bool reports success.
func execute(w http.ResponseWriter, r *http.Request, deps Deps, op string, args map[string]string) (dispatch.Outcome, bool) {
	out := deps.Executor.Execute(r.Context(), op, args)
	if out.Kind != dispatch.OutcomeOK {
		httpError(w, statusFor(out.Kind), string(out.Kind), "%s", out.Text)
		return out, false
	}
	return out, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleAvailability(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, ok := execute(w, r, deps, registry.CheckAvailability, map[string]string{"date": chi.URLParam(r, "date")})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":      out.Arguments["date"],
			"available": out.Value,
			"message":   out.Text,
		})
	}
}

func handleDay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, ok := execute(w, r, deps, registry.ViewDay, map[string]string{"date": chi.URLParam(r, "date")})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":    out.Arguments["date"],
			"events":  out.Value,
			"message": out.Text,
		})
	}
}

func handleWeek(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, ok := execute(w, r, deps, registry.ViewWeek, map[string]string{"date": chi.URLParam(r, "date")})
		if !ok {
			return
		}
		days, _ := out.Value.([]calendar.Day)
		if days == nil {
			days = []calendar.Day{}
		}
		weekStart, _ := timeparse.WeekStart(out.Arguments["date"])
		writeJSON(w, http.StatusOK, map[string]any{
			"week_start": weekStart,
			"days":       days,
			"message":    out.Text,
		})
	}
}

// BookRequest is the body of POST /calendar/events.
type BookRequest struct {
	Date  string  `json:"date"`
	Time  string  `json:"time"`
	Title *string `json:"title,omitempty"`
}

func handleBook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if !decodeBody(w, r, &req) {
			return
		}
		args := map[string]string{"date": req.Date, "time": req.Time}
		if req.Title != nil {
			args["title"] = *req.Title
		}
		out, ok := execute(w, r, deps, registry.Book, args)
		if !ok {
			return
		}
		ev, _ := out.Value.(calendar.Event)
		writeJSON(w, http.StatusCreated, map[string]any{
			"date":    ev.Date,
			"time":    ev.Time,
			"title":   ev.Title,
			"message": out.Text,
		})
	}
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args := map[string]string{"date": chi.URLParam(r, "date"), "time": chi.URLParam(r, "time")}
		out, ok := execute(w, r, deps, registry.Delete, args)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":    out.Arguments["date"],
			"time":    out.Arguments["time"],
			"title":   out.Value,
			"message": out.Text,
		})
	}
}

// MoveRequest is the body of POST /calendar/events/move.
type MoveRequest struct {
	Date    string `json:"date"`
	OldTime string `json:"old_time"`
	NewTime string `json:"new_time"`
}

func handleMove(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		args := map[string]string{"date": req.Date, "old_time": req.OldTime, "new_time": req.NewTime}
		out, ok := execute(w, r, deps, registry.Move, args)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":     out.Arguments["date"],
			"old_time": out.Arguments["old_time"],
			"new_time": out.Arguments["new_time"],
			"title":    out.Value,
			"message":  out.Text,
		})
	}
}
