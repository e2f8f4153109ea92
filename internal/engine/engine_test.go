package engine

import (
	"context"
	"sort"
	"testing"
	"time"

	"perimguard/internal/assessments"
	"perimguard/internal/config"
	"perimguard/internal/escalations"
	"perimguard/internal/logging"
	"perimguard/internal/model"
)

type fakeStore struct {
	events    []model.Event
	saveCalls int
	upserts   int
	cleared   int
}

func (s *fakeStore) Init(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                   { return nil }

func (s *fakeStore) SaveEvents(ctx context.Context, events []model.Event) error {
	s.saveCalls++
	s.events = append(s.events, events...)
	return nil
}

func (s *fakeStore) SubjectEvents(ctx context.Context, subjectType model.SubjectType, subjectKey string, from, to time.Time) ([]model.Event, error) {
	var out []model.Event
	for _, ev := range s.events {
		if ev.SubjectType != subjectType || ev.SubjectKey != subjectKey {
			continue
		}
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *fakeStore) TypeTimestamps(ctx context.Context, subjectType model.SubjectType, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, ev := range s.events {
		if ev.SubjectType != subjectType {
			continue
		}
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		out = append(out, ev.Timestamp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *fakeStore) Subjects(ctx context.Context, since time.Time) ([]model.SubjectRef, error) {
	seen := map[string]model.SubjectRef{}
	for _, ev := range s.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		ref := ev.Subject()
		seen[ref.String()] = ref
	}
	out := make([]model.SubjectRef, 0, len(seen))
	for _, ref := range seen {
		out = append(out, ref)
	}
	return out, nil
}

func (s *fakeStore) UpsertAssessment(ctx context.Context, a model.Assessment) error {
	s.upserts++
	return nil
}

func (s *fakeStore) ClearAssessments(ctx context.Context) error {
	s.cleared++
	return nil
}

func testEngineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Risk.Timezone = "UTC"
	return cfg
}

func newEngineForTest(cfg *config.Config, store *fakeStore) (*Engine, *assessments.Store, *escalations.Store) {
	assessStore := assessments.NewStore(100)
	escalationStore := escalations.NewStore(100)
	eng := NewEngine(cfg, logging.NewLogger("error"), assessStore, escalationStore, store)
	return eng, assessStore, escalationStore
}

func TestProcessEventDedupes(t *testing.T) {
	store := &fakeStore{}
	eng, _, _ := newEngineForTest(testEngineConfig(), store)
	ev := model.Event{
		SubjectType: model.SubjectIMSI,
		SubjectKey:  "460001234567890",
		Timestamp:   time.Now().UTC().Add(-time.Minute),
	}
	eng.ProcessEvent(context.Background(), ev)
	eng.ProcessEvent(context.Background(), ev)
	if store.saveCalls != 1 {
		t.Fatalf("save calls %d, want 1", store.saveCalls)
	}
}

func TestProcessEventRejectsInvalid(t *testing.T) {
	store := &fakeStore{}
	eng, _, _ := newEngineForTest(testEngineConfig(), store)
	eng.ProcessEvent(context.Background(), model.Event{SubjectType: model.SubjectIMSI, Timestamp: time.Now()})
	eng.ProcessEvent(context.Background(), model.Event{SubjectType: model.SubjectIMSI, SubjectKey: "x"})
	if store.saveCalls != 0 {
		t.Fatalf("invalid events must not be stored, got %d saves", store.saveCalls)
	}
}

func TestEvaluateSubjectDeterministic(t *testing.T) {
	store := &fakeStore{}
	base := at(t, "2026-03-10T22:00:00Z")
	store.events = eventsAt(model.SubjectCamera, "cam-03",
		base,
		base.Add(1*time.Minute),
		base.Add(2*time.Minute),
	)
	eng, assessStore, _ := newEngineForTest(testEngineConfig(), store)
	subject := model.SubjectRef{Type: model.SubjectCamera, Key: "cam-03"}
	now := base.Add(2 * time.Minute)

	first, err := eng.EvaluateSubjectAt(context.Background(), subject, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := eng.EvaluateSubjectAt(context.Background(), subject, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if first.Score != second.Score || first.Classification != second.Classification {
		t.Fatalf("evaluation not deterministic: %d/%s vs %d/%s",
			first.Score, first.Classification, second.Score, second.Classification)
	}
	if first.Classification != model.ClassBlack {
		t.Fatalf("classification: got %s, score %d", first.Classification, first.Score)
	}
	if first.EventCount != 3 {
		t.Fatalf("event count %d, want 3", first.EventCount)
	}
	if got, ok := assessStore.Get(subject.Type, subject.Key); !ok || got.Score != first.Score {
		t.Fatalf("assessment view not updated")
	}
	if store.upserts != 2 {
		t.Fatalf("upserts %d, want 2", store.upserts)
	}
}

func TestEscalationCooldown(t *testing.T) {
	store := &fakeStore{}
	base := at(t, "2026-03-10T22:00:00Z")
	store.events = eventsAt(model.SubjectCamera, "cam-03",
		base,
		base.Add(5*time.Minute),
	)
	eng, _, escalationStore := newEngineForTest(testEngineConfig(), store)
	subject := model.SubjectRef{Type: model.SubjectCamera, Key: "cam-03"}
	now := base.Add(5 * time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := eng.EvaluateSubjectAt(context.Background(), subject, now); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	list := escalationStore.List(0)
	if len(list) != 1 {
		t.Fatalf("escalations %d, want 1 inside cooldown window", len(list))
	}
	if list[0].Classification != model.ClassBlack {
		t.Fatalf("escalation classification: %s", list[0].Classification)
	}
	if list[0].ID == "" {
		t.Fatalf("escalation id missing")
	}
}

func TestRecomputeAll(t *testing.T) {
	store := &fakeStore{}
	now := time.Now().UTC()
	store.events = append(store.events,
		model.Event{SubjectType: model.SubjectIMSI, SubjectKey: "460001234567890", Timestamp: now.Add(-time.Hour)},
		model.Event{SubjectType: model.SubjectCamera, SubjectKey: "cam-01", Timestamp: now.Add(-2 * time.Hour)},
		model.Event{SubjectType: model.SubjectRadar, SubjectKey: "radar-1#7", Timestamp: now.Add(-30 * time.Minute)},
	)
	eng, assessStore, _ := newEngineForTest(testEngineConfig(), store)
	count, err := eng.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if count != 3 {
		t.Fatalf("recomputed %d, want 3", count)
	}
	if got := assessStore.List(0); len(got) != 3 {
		t.Fatalf("assessments %d, want 3", len(got))
	}
}

func TestResetClearsState(t *testing.T) {
	store := &fakeStore{}
	eng, assessStore, escalationStore := newEngineForTest(testEngineConfig(), store)
	assessStore.Upsert(model.Assessment{SubjectType: model.SubjectIMSI, SubjectKey: "x", UpdatedAt: time.Now()})
	escalationStore.Add(model.Escalation{ID: "risk-1", Timestamp: time.Now()})
	eng.Reset()
	if len(assessStore.List(0)) != 0 || len(escalationStore.List(0)) != 0 {
		t.Fatalf("reset left state behind")
	}
	if store.cleared != 1 {
		t.Fatalf("persisted assessments not cleared")
	}
}
