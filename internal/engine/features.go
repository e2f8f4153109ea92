package engine

import (
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

// Features is the read-only input every rule sees. It is assembled once per
// evaluation from data already fetched for the subject; rules never touch
// storage.
type Features struct {
	Subject     model.SubjectRef
	Now         time.Time
	WindowStart time.Time
	Bounds      config.BandBounds

	// Events is the subject's own valid events inside the long lookback
	// window, ascending. History is the extended multi-day lookback used by
	// the casing and whitelist rules (it contains the long window too).
	Events  []model.Event
	History []model.Event

	Timeline   Timeline
	Dominant   Band
	LatestBand Band

	// Other-sensor event times inside the long window, for correlation.
	ImsiTimes   []time.Time
	CameraTimes []time.Time
	RadarTimes  []time.Time
}

// buildFeatures filters invalid events, structures the subject's timeline,
// and computes the band features. history must be ascending by timestamp.
func buildFeatures(subject model.SubjectRef, now time.Time, bounds config.BandBounds, r *config.RiskConfig, history []model.Event, imsiTimes, cameraTimes, radarTimes []time.Time) *Features {
	history = dropInvalid(history)
	longStart := now.Add(-r.LongWindow)
	var events []model.Event
	for _, ev := range history {
		if !ev.Timestamp.Before(longStart) && !ev.Timestamp.After(now) {
			events = append(events, ev)
		}
	}

	f := &Features{
		Subject:     subject,
		Now:         now,
		WindowStart: longStart,
		Bounds:      bounds,
		Events:      events,
		History:     history,
		ImsiTimes:   imsiTimes,
		CameraTimes: cameraTimes,
		RadarTimes:  radarTimes,
	}
	f.Timeline = buildTimeline(events, now, r)
	f.Dominant = dominantBand(f.Timeline.Bursts, bounds)
	if len(events) > 0 {
		f.LatestBand = band(events[len(events)-1].Timestamp, bounds)
	} else {
		f.LatestBand = BandDay
	}
	return f
}

func dropInvalid(events []model.Event) []model.Event {
	out := events[:0:0]
	for _, ev := range events {
		if ev.Timestamp.IsZero() || ev.SubjectKey == "" {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func eventTimes(events []model.Event) []time.Time {
	out := make([]time.Time, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Timestamp)
	}
	return out
}
