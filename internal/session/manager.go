package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/metrics"
	"github.com/rosy-tax/reviewer/internal/review"
)

// DefaultMaxSessions limits concurrent sessions to bound memory use.
const DefaultMaxSessions = 200

// Manager holds the review sessions of all connected browsers and clients.
type Manager struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	backend     review.Backend
	sink        review.DownloadSink
	recorder    review.Recorder
	policy      review.UploadPolicy
	maxSessions int
}

// Session is one user's review workflow.
type Session struct {
	ID           string
	Controller   *review.Controller
	CreatedAt    time.Time
	LastAccessed time.Time

	hub *statusHub
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRecorder journals every session's actions.
func WithRecorder(r review.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithUploadPolicy applies p to every session's submissions.
func WithUploadPolicy(p review.UploadPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithMaxSessions overrides DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// NewManager creates a session manager whose controllers use backend and sink.
func NewManager(backend review.Backend, sink review.DownloadSink, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		backend:     backend,
		sink:        sink,
		maxSessions: DefaultMaxSessions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session with a fresh id.
func (m *Manager) Create() *Session {
	m.cleanupOldSessionsIfNeeded()

	id := uuid.New().String()
	hub := newStatusHub()
	now := time.Now()
	s := &Session{
		ID: id,
		Controller: review.NewController(m.backend, m.sink, review.Options{
			SessionID: id,
			OnStatus:  hub.publish,
			Recorder:  m.recorder,
			Policy:    m.policy,
		}),
		CreatedAt:    now,
		LastAccessed: now,
		hub:          hub,
	}

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
	log.Debug().Str("session", shortID(id)).Msg("session created")
	return s
}

// Get returns the session and marks it as used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		s.LastAccessed = time.Now()
	}
	return s, ok
}

// GetOrCreate returns the session for id, or a new one when id is unknown.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s, false
		}
	}
	return m.Create(), true
}

// Delete removes a session and disconnects its status subscribers.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.hub.close()
		metrics.SetActiveSessions(n)
	}
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Subscribe streams the session's status lines.
func (s *Session) Subscribe() (<-chan string, func()) {
	return s.hub.subscribe()
}

// cleanupOldSessionsIfNeeded evicts the least recently used idle session
// when at the limit.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	if len(m.sessions) < m.maxSessions {
		m.mu.Unlock()
		return
	}

	var oldestID string
	var oldestTime time.Time
	for id, s := range m.sessions {
		if s.Controller.Busy() {
			continue
		}
		if oldestID == "" || s.LastAccessed.Before(oldestTime) {
			oldestID = id
			oldestTime = s.LastAccessed
		}
	}
	m.mu.Unlock()

	if oldestID != "" && m.Delete(oldestID) {
		log.Info().Str("session", shortID(oldestID)).Msg("evicted least recently used session")
	}
}

// CleanupOldSessions removes idle sessions not accessed within maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.LastAccessed.Before(cutoff) && !s.Controller.Busy() {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if m.Delete(id) {
			removed++
			log.Info().Str("session", shortID(id)).Msg("cleaned up idle session")
		}
	}
	return removed
}

// shortID safely truncates an ID for logging
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
