// Package session keeps per-conversation transcripts alive across requests
// so that follow-ups ("move it to 4pm") see earlier turns. Idle sessions
// expire after a TTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/slotbot/internal/transcript"
)

// DefaultTTL is the idle time after which a session is discarded.
const DefaultTTL = 30 * time.Minute

// ErrInvalidID is returned for session IDs that are not UUIDs.
var ErrInvalidID = errors.New("invalid session id")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Session is one conversation. Requests on the same session are serialized
// so that the transcript grows in exchange order.
type Session struct {
	ID         string
	Transcript *transcript.Transcript

	run      sync.Mutex
	lastUsed time.Time // guarded by Manager.mu
	inUse    int       // guarded by Manager.mu
}

// Manager owns the live sessions.
type Manager struct {
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager with the given idle TTL.
func NewManager(ttl time.Duration) *Manager {
	return NewManagerWithClock(realClock{}, ttl)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(clock Clock, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		clock:    clock,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the session for id, creating it when it does not exist or
// has expired. An empty id starts a new session with a generated ID. The
// returned release func must be called when the request is done.
func (m *Manager) Acquire(id string) (*Session, func(), error) {
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	now := m.clock.Now()
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || (s.inUse == 0 && m.expired(s, now)) {
		s = &Session{ID: id, Transcript: transcript.New()}
		m.sessions[id] = s
	}
	s.inUse++
	s.lastUsed = now
	m.mu.Unlock()

	s.run.Lock()
	var once sync.Once
	release := func() {
		once.Do(func() {
			s.run.Unlock()
			m.mu.Lock()
			s.inUse--
			s.lastUsed = m.clock.Now()
			m.mu.Unlock()
		})
	}
	return s, release, nil
}

// Get returns a live session without acquiring it.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || (s.inUse == 0 && m.expired(s, m.clock.Now())) {
		return nil, false
	}
	return s, true
}

// Delete discards a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Len returns the number of tracked sessions, including expired ones not
// yet swept.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes idle sessions past their TTL and returns how many were
// removed.
func (m *Manager) Sweep() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.inUse == 0 && m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("expired sessions swept", "count", n)
			}
		}
	}
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return !now.Before(s.lastUsed.Add(m.ttl))
}
