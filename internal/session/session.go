// Package session keeps per-user dashboard state between requests.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/KaramelBytes/funnelboard/internal/pipeline"
	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session is one uploaded dataset plus the last funnel evaluated on it.
// Raw is never modified after Create.
type Session struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Hash      string           `json:"hash"`
	Raw       *table.Table     `json:"-"`
	Last      *pipeline.Result `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
	TouchedAt time.Time        `json:"touched_at"`
}

// Store is an in-memory, mutex-guarded set of sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore returns a Store whose sessions expire after ttl of inactivity.
// ttl <= 0 keeps sessions until deleted.
func NewStore(ttl time.Duration) *Store {
	return &Store{sessions: make(map[string]*Session), ttl: ttl, now: time.Now}
}

// Create registers a freshly loaded table under a new id.
func (s *Store) Create(name string, raw *table.Table) *Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Hash:      raw.Hash(),
		Raw:       raw,
		CreatedAt: now,
		TouchedAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns a copy of the session and marks it as used.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	sess.TouchedAt = s.now()
	return *sess, nil
}

// Update records the latest pipeline result for a session.
func (s *Store) Update(id string, res *pipeline.Result) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	sess.Last = res
	sess.TouchedAt = s.now()
	return *sess, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Prune drops sessions idle for longer than the TTL and returns their ids.
func (s *Store) Prune(now time.Time) []string {
	if s.ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []string
	for id, sess := range s.sessions {
		if now.Sub(sess.TouchedAt) > s.ttl {
			delete(s.sessions, id)
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
