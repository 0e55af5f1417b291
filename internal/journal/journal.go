// internal/journal/journal.go
//
// Session journal: an audit trail of TCP sessions and the moves applied in
// them. The world itself is never persisted; the journal only records what
// happened to it.
//
// Two implementations:
//   - NewMemory: map-backed, used when no DSN is configured and in tests.
//   - OpenSQLite: SQLite-backed (see sqlite.go).

package journal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robalobadob/feedbot/internal/world"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("not found")

// Session outcome values.
const (
	OutcomeActive       = "active"
	OutcomeDisconnected = "disconnected"
	OutcomeTransport    = "transport_error"
	OutcomeDecode       = "decode_error"
	OutcomeInvariant    = "invariant_violation"
	OutcomeShutdown     = "shutdown"
)

// Session is one TCP connection from accept to close.
type Session struct {
	ID        string     `json:"id"`
	Remote    string     `json:"remote"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Moves     int        `json:"moves"`
	Outcome   string     `json:"outcome"`
}

// Move is one command applied (or rejected) within a session.
type Move struct {
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	Direction string    `json:"direction"`
	Robot     world.Pos `json:"robot"`
	State     string    `json:"state"`
	Err       string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Journal records sessions and moves.
type Journal interface {
	OpenSession(ctx context.Context, s Session) error
	RecordMove(ctx context.Context, m Move) error
	CloseSession(ctx context.Context, id, outcome string, at time.Time) error

	// Sessions lists the most recent sessions first.
	Sessions(ctx context.Context, limit int) ([]Session, error)
	// Moves lists a session's moves in order.
	Moves(ctx context.Context, sessionID string) ([]Move, error)

	Close() error
}

const defaultLimit = 20

// memory is a map-backed Journal.
type memory struct {
	mu       sync.RWMutex // guards sessions and moves
	sessions map[string]*Session
	moves    map[string][]Move
}

// NewMemory constructs an in-memory Journal.
func NewMemory() Journal {
	return &memory{
		sessions: make(map[string]*Session),
		moves:    make(map[string][]Move),
	}
}

func (m *memory) OpenSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Outcome == "" {
		s.Outcome = OutcomeActive
	}
	m.sessions[s.ID] = &s
	return nil
}

func (m *memory) RecordMove(ctx context.Context, mv Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[mv.SessionID]
	if !ok {
		return ErrNotFound
	}
	if mv.Err == "" {
		s.Moves++
	}
	m.moves[mv.SessionID] = append(m.moves[mv.SessionID], mv)
	return nil
}

func (m *memory) CloseSession(ctx context.Context, id, outcome string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Outcome = outcome
	s.EndedAt = &at
	return nil
}

func (m *memory) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memory) Moves(ctx context.Context, sessionID string) ([]Move, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	return append([]Move(nil), m.moves[sessionID]...), nil
}

func (m *memory) Close() error { return nil }
