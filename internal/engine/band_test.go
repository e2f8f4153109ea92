package engine

import (
	"testing"
	"time"

	"perimguard/internal/config"
)

func testBounds(t *testing.T) config.BandBounds {
	t.Helper()
	r := testRisk()
	bounds, err := r.Bounds()
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	return bounds
}

func testRisk() *config.RiskConfig {
	r := config.DefaultConfig().Risk
	r.Timezone = "UTC"
	return &r
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestBandBoundaries(t *testing.T) {
	bounds := testBounds(t)
	cases := []struct {
		ts   string
		want Band
	}{
		{"2026-03-10T05:59:00Z", BandNight},
		{"2026-03-10T06:00:00Z", BandDay},
		{"2026-03-10T18:59:00Z", BandDay},
		{"2026-03-10T19:00:00Z", BandDusk},
		{"2026-03-10T20:59:00Z", BandDusk},
		{"2026-03-10T21:00:00Z", BandNight},
		{"2026-03-10T23:30:00Z", BandNight},
		{"2026-03-10T02:00:00Z", BandNight},
	}
	for _, c := range cases {
		if got := band(at(t, c.ts), bounds); got != c.want {
			t.Fatalf("band(%s) = %s, want %s", c.ts, got, c.want)
		}
	}
}

func TestDominantBand(t *testing.T) {
	bounds := testBounds(t)
	night := at(t, "2026-03-10T22:00:00Z")
	day := at(t, "2026-03-10T10:00:00Z")
	dusk := at(t, "2026-03-10T19:30:00Z")

	if got := dominantBand(nil, bounds); got != BandDay {
		t.Fatalf("empty input: got %s", got)
	}
	if got := dominantBand([]time.Time{day, night, night}, bounds); got != BandNight {
		t.Fatalf("night majority: got %s", got)
	}
	// Ties resolve toward the earlier band in DAY, DUSK, NIGHT order.
	if got := dominantBand([]time.Time{day, night}, bounds); got != BandDay {
		t.Fatalf("day/night tie: got %s", got)
	}
	if got := dominantBand([]time.Time{dusk, night}, bounds); got != BandDusk {
		t.Fatalf("dusk/night tie: got %s", got)
	}
}
