package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.Thresholds.Gray = 60
	cfg.Risk.Thresholds.StrongAlert = 55
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected threshold ordering error")
	}
}

func TestValidateRejectsZeroWeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.Weights.NightActivity = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected zero weight rejection")
	}
}

func TestValidateRejectsBadBucketDensity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.Weights.BucketDensity = []int{2, 8, 14}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected bucket density length error")
	}
}

func TestValidateRejectsBadClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.DuskStart = "25:00"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected clock parse error")
	}
	cfg = DefaultConfig()
	cfg.Risk.DayStart = "19:30"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected band order error")
	}
}

func TestBounds(t *testing.T) {
	r := DefaultConfig().Risk
	r.Timezone = "UTC"
	bounds, err := r.Bounds()
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if bounds.DayStart != 6*60 || bounds.DuskStart != 19*60 || bounds.NightStart != 21*60 {
		t.Fatalf("bounds minutes wrong: %+v", bounds)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("log_level: debug\nrisk:\n  timezone: UTC\n  thresholds:\n    black: 80\n    strong_alert: 60\n    gray: 40\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level: %s", cfg.LogLevel)
	}
	if cfg.Risk.Thresholds.Black != 80 || cfg.Risk.Thresholds.Gray != 40 {
		t.Fatalf("thresholds not applied: %+v", cfg.Risk.Thresholds)
	}
	// Untouched fields keep their defaults.
	if cfg.Risk.Weights.NightActivity != 25 {
		t.Fatalf("defaults lost: %+v", cfg.Risk.Weights)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := []byte(`{"log_level":"warn"}`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level: %s", cfg.LogLevel)
	}
}

func TestStaticManager(t *testing.T) {
	m := NewStaticManager(nil)
	if m.Get() == nil {
		t.Fatalf("static manager must fall back to defaults")
	}
	if needs, err := m.NeedsReload(); err != nil || needs {
		t.Fatalf("static manager should never need reload")
	}
}
