// Package assistant ties a user message to its session transcript, runs the
// dispatch loop over it and records the exchange in the interaction log.
package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/session"
	"github.com/kalambet/slotbot/internal/storage"
)

// InteractionLog persists handled requests. *storage.Store implements it.
type InteractionLog interface {
	SaveInteraction(ctx context.Context, i storage.Interaction) error
}

// Reply is the result of one handled message.
type Reply struct {
	Answer        string              `json:"response"`
	SessionID     string              `json:"session_id"`
	Stop          dispatch.StopReason `json:"stop_reason"`
	Iterations    int                 `json:"iterations"`
	InteractionID string              `json:"interaction_id,omitempty"`
}

// Service handles chat messages.
type Service struct {
	loop     *dispatch.Loop
	sessions *session.Manager
	log      InteractionLog
	now      func() time.Time
}

// New creates a Service. log may be nil, in which case nothing is recorded.
func New(loop *dispatch.Loop, sessions *session.Manager, log InteractionLog) *Service {
	return &Service{loop: loop, sessions: sessions, log: log, now: time.Now}
}

// Loop returns the dispatch loop the service runs.
func (s *Service) Loop() *dispatch.Loop { return s.loop }

// Sessions returns the session manager.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Handle runs text through the dispatch loop on the transcript of sessionID.
// An empty sessionID starts a new session. Requests on the same session are
// handled one at a time.
func (s *Service) Handle(ctx context.Context, sessionID, text string) (Reply, error) {
	sess, release, err := s.sessions.Acquire(sessionID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	before := sess.Transcript.Len()
	start := s.now()
	resp := s.loop.Run(ctx, sess.Transcript, text)

	reply := Reply{
		Answer:     resp.Answer,
		SessionID:  sess.ID,
		Stop:       resp.Stop,
		Iterations: resp.Iterations,
	}
	slog.Info("request handled",
		"session_id", sess.ID,
		"stop_reason", resp.Stop,
		"iterations", resp.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if s.log == nil || resp.Stop == dispatch.StopEmptyInput {
		return reply, nil
	}

	entries := resp.Transcript.Entries()
	if before <= len(entries) {
		entries = entries[before:]
	}
	transcriptJSON, err := json.Marshal(entries)
	if err != nil {
		slog.Warn("failed to encode transcript", "session_id", sess.ID, "error", err)
		return reply, nil
	}

	id := uuid.NewString()
	// The request may have been cancelled; the record is still written.
	err = s.log.SaveInteraction(context.WithoutCancel(ctx), storage.Interaction{
		ID:             id,
		CreatedAt:      start.UTC(),
		SessionID:      sess.ID,
		UserQuery:      text,
		Answer:         resp.Answer,
		StopReason:     string(resp.Stop),
		Iterations:     resp.Iterations,
		TranscriptJSON: string(transcriptJSON),
	})
	if err != nil {
		slog.Warn("failed to save interaction", "session_id", sess.ID, "error", err)
		return reply, nil
	}
	reply.InteractionID = id
	return reply, nil
}
