package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"perimguard/internal/config"
)

func newTestServer(t *testing.T) (*Server, *config.Manager) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Risk.Timezone = "UTC"
	mgr := config.NewStaticManager(cfg)
	return &Server{cfg: mgr, started: time.Now().UTC()}, mgr
}

func TestRiskConfigUpdateApplies(t *testing.T) {
	s, mgr := newTestServer(t)
	body := `{"weights":{"night_activity":30}}`
	req := httptest.NewRequest("PUT", "/config/risk", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRiskConfig(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := mgr.Get().Risk.Weights.NightActivity; got != 30 {
		t.Fatalf("night activity weight %d, want 30", got)
	}
}

func TestRiskConfigRejectedUpdateLeavesConfigUntouched(t *testing.T) {
	s, mgr := newTestServer(t)
	before := append([]int(nil), mgr.Get().Risk.Weights.BucketDensity...)

	// A negative bucket weight fails validation; the live config must not
	// carry any trace of the rejected payload afterwards.
	body := `{"weights":{"bucket_density":[-1,8,14,20]}}`
	req := httptest.NewRequest("PUT", "/config/risk", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRiskConfig(rec, req)
	if rec.Code == 200 {
		t.Fatalf("expected rejection, got 200")
	}
	after := mgr.Get().Risk.Weights.BucketDensity
	if len(after) != len(before) {
		t.Fatalf("bucket density length changed: %v -> %v", before, after)
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("bucket density mutated at %d: %v -> %v", i, before, after)
		}
	}
}
