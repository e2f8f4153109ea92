package escalations

import (
	"sync"
	"time"

	"perimguard/internal/model"
)

// Store keeps the most recent escalations in a bounded ring for the API.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Escalation
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(e model.Escalation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, e)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = e
}

func (s *Store) List(limit int) []model.Escalation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Escalation, 0, limit)
	start := len(s.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Since(ts time.Time) []model.Escalation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Escalation, 0)
	for _, e := range s.buf {
		if !e.Timestamp.Before(ts) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
