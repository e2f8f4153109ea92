package normalize

import (
	"testing"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ingest.Parser.Timezone = "UTC"
	return cfg
}

func TestNormalizeImsi(t *testing.T) {
	ev, err := Normalize(EventFields{
		Timestamp: "2026-03-10T22:00:00Z",
		Imsi:      "460001234567890",
	}, testConfig())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.SubjectType != model.SubjectIMSI || ev.SubjectKey != "460001234567890" {
		t.Fatalf("subject: %s/%s", ev.SubjectType, ev.SubjectKey)
	}
}

func TestNormalizeCamera(t *testing.T) {
	ev, err := Normalize(EventFields{
		Timestamp: "2026-03-10 22:00:00",
		Channel:   "cam-03",
	}, testConfig())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.SubjectType != model.SubjectCamera || ev.SubjectKey != "cam-03" {
		t.Fatalf("subject: %s/%s", ev.SubjectType, ev.SubjectKey)
	}
	want := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp: %v", ev.Timestamp)
	}
}

func TestNormalizeRadarKey(t *testing.T) {
	ev, err := Normalize(EventFields{
		Timestamp: "1767996000",
		RadarHost: "radar-east",
		TargetID:  "42",
	}, testConfig())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.SubjectType != model.SubjectRadar || ev.SubjectKey != "radar-east#42" {
		t.Fatalf("subject: %s/%s", ev.SubjectType, ev.SubjectKey)
	}
}

func TestNormalizeRadarDefaultHost(t *testing.T) {
	ev, err := Normalize(EventFields{
		Timestamp: "2026-03-10T22:00:00Z",
		TargetID:  "42",
	}, testConfig())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.SubjectKey != "radar#42" {
		t.Fatalf("key: %s", ev.SubjectKey)
	}
}

func TestNormalizeDropsMissingTimestamp(t *testing.T) {
	if _, err := Normalize(EventFields{Imsi: "460001234567890"}, testConfig()); err == nil {
		t.Fatalf("expected missing timestamp error")
	}
	if _, err := Normalize(EventFields{Timestamp: "not-a-time", Imsi: "460001234567890"}, testConfig()); err == nil {
		t.Fatalf("expected unparseable timestamp error")
	}
}

func TestNormalizeExplicitTypeWins(t *testing.T) {
	// Explicit subject_type overrides field-based inference.
	ev, err := Normalize(EventFields{
		Timestamp:   "2026-03-10T22:00:00Z",
		SubjectType: "CAMERA",
		Imsi:        "460001234567890",
		Channel:     "cam-03",
	}, testConfig())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.SubjectType != model.SubjectCamera {
		t.Fatalf("subject type: %s", ev.SubjectType)
	}
}

func TestNormalizeRejectsNoIdentity(t *testing.T) {
	if _, err := Normalize(EventFields{Timestamp: "2026-03-10T22:00:00Z"}, testConfig()); err == nil {
		t.Fatalf("expected identity error")
	}
}

func TestParseTimestampUnixMillis(t *testing.T) {
	ts, err := ParseTimestamp("1767996000000", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts.Unix() != 1767996000 {
		t.Fatalf("unix: %d", ts.Unix())
	}
}
