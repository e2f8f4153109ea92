package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"perimguard/internal/assessments"
	"perimguard/internal/config"
	"perimguard/internal/escalations"
	"perimguard/internal/model"
	"perimguard/internal/storage"
)

const dedupeCacheSize = 100000

// Engine consumes normalized events and maintains one current assessment
// per subject. Every event triggers a full recompute of its subject from
// stored history, so the output never depends on processing order beyond
// what the events themselves say.
type Engine struct {
	logger      *slog.Logger
	assessments *assessments.Store
	escalations *escalations.Store
	store       storage.Store
	cfg         *config.Config
	cfgMu       sync.RWMutex
	dedupe      *expirable.LRU[string, struct{}]
	dedupeMu    sync.Mutex
	locks       *keyLocks
	cooldown    *cooldown
	started     time.Time
}

func NewEngine(cfg *config.Config, logger *slog.Logger, assessStore *assessments.Store, escalationStore *escalations.Store, store storage.Store) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	e := &Engine{
		logger:      logger,
		assessments: assessStore,
		escalations: escalationStore,
		store:       store,
		cfg:         cfg,
		locks:       newKeyLocks(),
		cooldown:    newCooldown(),
		started:     time.Now().UTC(),
	}
	e.dedupe = expirable.NewLRU[string, struct{}](dedupeCacheSize, nil, cfg.Risk.DedupeWindow)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfgMu.Lock()
	rebuild := cfg.Risk.DedupeWindow != e.cfg.Risk.DedupeWindow
	e.cfg = cfg
	e.cfgMu.Unlock()
	if rebuild {
		e.dedupeMu.Lock()
		e.dedupe = expirable.NewLRU[string, struct{}](dedupeCacheSize, nil, cfg.Risk.DedupeWindow)
		e.dedupeMu.Unlock()
	}
}

func (e *Engine) config() *config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

func (e *Engine) Started() time.Time {
	return e.started
}

func (e *Engine) Start(ctx context.Context, in <-chan model.Event) {
	go func() {
		for {
			select {
			case ev := <-in:
				e.ProcessEvent(ctx, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessEvent records one event and re-evaluates its subject. Duplicate
// deliveries inside the dedupe window are absorbed without side effects.
func (e *Engine) ProcessEvent(ctx context.Context, ev model.Event) {
	if ev.SubjectKey == "" || ev.Timestamp.IsZero() {
		return
	}
	if e.isDuplicate(ev) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.store != nil {
		if err := e.store.SaveEvents(ctx, []model.Event{ev}); err != nil {
			e.logger.Error("event save failed",
				"subject_type", ev.SubjectType,
				"subject_key", ev.SubjectKey,
				"error", err,
			)
			return
		}
	}
	if _, err := e.EvaluateSubjectAt(ctx, ev.Subject(), time.Now().UTC()); err != nil {
		e.logger.Error("subject evaluation failed",
			"subject_type", ev.SubjectType,
			"subject_key", ev.SubjectKey,
			"error", err,
		)
	}
}

// EvaluateSubjectAt recomputes the subject's assessment as of now and
// persists it. Concurrent evaluations of the same subject serialize; other
// subjects proceed in parallel.
func (e *Engine) EvaluateSubjectAt(ctx context.Context, subject model.SubjectRef, now time.Time) (model.Assessment, error) {
	unlock := e.locks.Lock(subject.String())
	defer unlock()

	cfg := e.config()
	r := &cfg.Risk
	bounds, err := r.Bounds()
	if err != nil {
		return model.Assessment{}, err
	}

	lookback := r.CasingDays
	if r.WhitelistDays > lookback {
		lookback = r.WhitelistDays
	}
	history, err := e.store.SubjectEvents(ctx, subject.Type, subject.Key, now.AddDate(0, 0, -lookback), now)
	if err != nil {
		return model.Assessment{}, err
	}
	longStart := now.Add(-r.LongWindow)
	var imsiTimes, cameraTimes, radarTimes []time.Time
	for _, other := range []model.SubjectType{model.SubjectIMSI, model.SubjectCamera, model.SubjectRadar} {
		if other == subject.Type {
			continue
		}
		times, err := e.store.TypeTimestamps(ctx, other, longStart, now)
		if err != nil {
			return model.Assessment{}, err
		}
		switch other {
		case model.SubjectIMSI:
			imsiTimes = times
		case model.SubjectCamera:
			cameraTimes = times
		case model.SubjectRadar:
			radarTimes = times
		}
	}

	f := buildFeatures(subject, now, bounds, r, history, imsiTimes, cameraTimes, radarTimes)
	acc := NewAccumulator()
	evaluateRules(r, f, acc)
	class := classify(r.Thresholds, acc)
	assessment := buildAssessment(f, acc, class)

	if _, err := json.Marshal(assessment.Evidence); err != nil {
		e.logger.Warn("evidence serialization failed, storing without detail",
			"subject_type", subject.Type,
			"subject_key", subject.Key,
			"error", err,
		)
		assessment.Evidence = model.Evidence{ScoreHits: []model.RuleHit{}}
	}

	if err := e.store.UpsertAssessment(ctx, assessment); err != nil {
		return model.Assessment{}, err
	}
	e.assessments.Upsert(assessment)

	if class == model.ClassBlack || class == model.ClassStrongAlert {
		e.escalate(assessment, r.EscalationCooldown)
	}
	return assessment, nil
}

// RecomputeAll re-evaluates every subject seen inside the extended lookback.
// Used after config changes and by the admin endpoint.
func (e *Engine) RecomputeAll(ctx context.Context) (int, error) {
	cfg := e.config()
	lookback := cfg.Risk.CasingDays
	if cfg.Risk.WhitelistDays > lookback {
		lookback = cfg.Risk.WhitelistDays
	}
	now := time.Now().UTC()
	subjects, err := e.store.Subjects(ctx, now.AddDate(0, 0, -lookback))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, subject := range subjects {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if _, err := e.EvaluateSubjectAt(ctx, subject, now); err != nil {
			e.logger.Error("recompute failed",
				"subject_type", subject.Type,
				"subject_key", subject.Key,
				"error", err,
			)
			continue
		}
		count++
	}
	return count, nil
}

// Reset drops evaluation state: dedupe cache, escalation cooldowns, the
// assessment/escalation views, and persisted assessments. Stored events
// survive so a recompute can rebuild everything.
func (e *Engine) Reset() {
	cfg := e.config()
	e.dedupeMu.Lock()
	e.dedupe = expirable.NewLRU[string, struct{}](dedupeCacheSize, nil, cfg.Risk.DedupeWindow)
	e.dedupeMu.Unlock()
	e.cooldown.Reset()
	e.assessments.Clear()
	e.escalations.Clear()
	if e.store != nil {
		if err := e.store.ClearAssessments(context.Background()); err != nil {
			e.logger.Error("assessment clear failed", "error", err)
		}
	}
}

func (e *Engine) escalate(a model.Assessment, window time.Duration) {
	now := time.Now().UTC()
	if !e.cooldown.Allow(a.Subject().String(), window, now) {
		return
	}
	esc := model.Escalation{
		ID:             "risk-" + uuid.NewString(),
		Timestamp:      now,
		SubjectType:    a.SubjectType,
		SubjectKey:     a.SubjectKey,
		Classification: a.Classification,
		Score:          a.Score,
		Summary:        a.Summary,
	}
	e.escalations.Add(esc)
	e.logger.Warn("risk escalation",
		"subject_type", a.SubjectType,
		"subject_key", a.SubjectKey,
		"classification", a.Classification,
		"score", a.Score,
		"summary", a.Summary,
	)
}

func (e *Engine) isDuplicate(ev model.Event) bool {
	sum := sha256.Sum256([]byte(string(ev.SubjectType) + "|" + ev.SubjectKey + "|" + ev.Timestamp.UTC().Format(time.RFC3339Nano)))
	key := hex.EncodeToString(sum[:])
	e.dedupeMu.Lock()
	defer e.dedupeMu.Unlock()
	if _, ok := e.dedupe.Get(key); ok {
		return true
	}
	e.dedupe.Add(key, struct{}{})
	return false
}
