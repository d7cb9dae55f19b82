// Package session keeps per-session chat history in memory.
package session

import (
	"sync"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/pagination"
)

// DefaultID is the session used when a caller does not name one
const DefaultID = "default"

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Turn is a ChatTurn with its position in the session.
type Turn struct {
	Seq       int64       `json:"seq"`
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

type history struct {
	turns      []Turn
	nextSeq    int64
	lastActive time.Time
}

// Store holds chat histories keyed by session id. Histories only change
// through AppendExchange, Clear and Delete, so readers always see whole
// user/assistant pairs.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*history
	maxTurns int
	now      func() time.Time
}

// NewStore creates a Store. When maxTurns > 0 the oldest exchanges are
// dropped once a session grows past it.
func NewStore(maxTurns int) *Store {
	return &Store{
		sessions: make(map[string]*history),
		maxTurns: maxTurns,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func normalizeID(id string) string {
	if id == "" {
		return DefaultID
	}
	return id
}

// GetOrCreate ensures the session exists and returns its normalized id.
func (s *Store) GetOrCreate(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = normalizeID(id)
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = &history{lastActive: s.now()}
	}
	return id
}

// History returns a copy of the session's turns in order. Unknown sessions
// have an empty history.
func (s *Store) History(id string) []domain.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.sessions[normalizeID(id)]
	if !ok {
		return []domain.ChatTurn{}
	}
	out := make([]domain.ChatTurn, len(h.turns))
	for i, t := range h.turns {
		out[i] = domain.ChatTurn{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt}
	}
	return out
}

// AppendExchange records a question and its answer as one atomic step.
func (s *Store) AppendExchange(id, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = normalizeID(id)
	h, ok := s.sessions[id]
	if !ok {
		h = &history{}
		s.sessions[id] = h
	}

	now := s.now()
	h.turns = append(h.turns,
		Turn{Seq: h.nextSeq, Role: domain.RoleUser, Content: question, CreatedAt: now},
		Turn{Seq: h.nextSeq + 1, Role: domain.RoleAssistant, Content: answer, CreatedAt: now},
	)
	h.nextSeq += 2
	h.lastActive = now

	if s.maxTurns > 0 && len(h.turns) > s.maxTurns {
		drop := len(h.turns) - s.maxTurns
		if drop%2 == 1 {
			drop++
		}
		h.turns = append([]Turn(nil), h.turns[drop:]...)
	}
}

// Clear empties a session's history. It reports whether the session existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[normalizeID(id)]
	if !ok {
		return false
	}
	h.turns = nil
	h.lastActive = s.now()
	return true
}

// Delete removes a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = normalizeID(id)
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// EvictIdle removes sessions untouched for longer than ttl and returns how
// many were removed.
func (s *Store) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	evicted := 0
	for id, h := range s.sessions {
		if h.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Page returns turns after cursor, oldest first.
func (s *Store) Page(id string, limit int, cursor string) (*pagination.PageResult[Turn], error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeMalformedRequest, "invalid cursor", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.sessions[normalizeID(id)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	result := pagination.Paginate(h.turns, c, limit,
		func(t Turn) int64 { return t.Seq },
		func(t Turn) time.Time { return t.CreatedAt },
	)
	return result, nil
}
