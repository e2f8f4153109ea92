package assessments

import (
	"sort"
	"sync"
	"time"

	"perimguard/internal/model"
)

// Store is the in-memory view of current assessments, one per subject. It
// mirrors what storage persists so API reads never touch the database.
type Store struct {
	mu        sync.RWMutex
	bySubject map[string]model.Assessment
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		bySubject: make(map[string]model.Assessment),
		limit:     limit,
	}
}

func (s *Store) Upsert(a model.Assessment) {
	if a.SubjectKey == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[a.Subject().String()] = a
	if len(s.bySubject) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(subjectType model.SubjectType, subjectKey string) (model.Assessment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.bySubject[model.SubjectRef{Type: subjectType, Key: subjectKey}.String()]
	return a, ok
}

// List returns up to limit assessments, most recently updated first.
// limit <= 0 means no cap.
func (s *Store) List(limit int) []model.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Assessment, 0, len(s.bySubject))
	for _, a := range s.bySubject {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySubject)
}

func (s *Store) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, a := range s.bySubject {
		if oldestKey == "" || a.UpdatedAt.Before(oldest) {
			oldestKey = key
			oldest = a.UpdatedAt
		}
	}
	if oldestKey != "" {
		delete(s.bySubject, oldestKey)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject = make(map[string]model.Assessment)
}
