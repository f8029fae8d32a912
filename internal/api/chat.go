package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalambet/slotbot/internal/session"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		reply, err := deps.Assistant.Handle(r.Context(), req.SessionID, req.Question)
		if errors.Is(err, session.ErrInvalidID) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "handling message: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}
