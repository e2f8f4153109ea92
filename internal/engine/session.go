package engine

import (
	"sort"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

// Session is a contiguous run of bursts bounded by an inactivity gap,
// representing one visit. Sessions are rebuilt from scratch on every
// evaluation and never persisted.
type Session struct {
	Start      time.Time
	End        time.Time
	Bursts     []time.Time
	HasLongGap bool
}

// Timeline is the structured view of one subject's own events inside the
// long lookback window.
type Timeline struct {
	Bursts       []time.Time
	Sessions     []Session
	ShortBursts  []time.Time
	BucketStarts []time.Time
}

func (t Timeline) LatestSession() (Session, bool) {
	if len(t.Sessions) == 0 {
		return Session{}, false
	}
	return t.Sessions[len(t.Sessions)-1], true
}

// buildTimeline merges closely-spaced events into bursts, segments bursts
// into sessions, and derives the short-window density buckets. Events must
// already be sorted ascending with zero timestamps filtered out; a single
// burst forms its own session, zero events yield all-empty structures.
func buildTimeline(events []model.Event, now time.Time, r *config.RiskConfig) Timeline {
	var tl Timeline
	if len(events) == 0 {
		return tl
	}

	// Burst merge: a new burst starts whenever the gap since the
	// burst-starting event exceeds the merge interval. Each burst is
	// represented by its first event, so a steady trickle still yields a
	// fresh burst once it outruns the anchor by more than the interval.
	for _, ev := range events {
		if len(tl.Bursts) == 0 || ev.Timestamp.Sub(tl.Bursts[len(tl.Bursts)-1]) > r.BurstMerge {
			tl.Bursts = append(tl.Bursts, ev.Timestamp)
		}
	}

	shortStart := now.Add(-r.ShortWindow)
	buckets := make(map[time.Time]struct{})
	for _, ts := range tl.Bursts {
		if ts.Before(shortStart) || ts.After(now) {
			continue
		}
		tl.ShortBursts = append(tl.ShortBursts, ts)
		buckets[ts.Truncate(r.Bucket)] = struct{}{}
	}
	for start := range buckets {
		tl.BucketStarts = append(tl.BucketStarts, start)
	}
	sort.Slice(tl.BucketStarts, func(i, j int) bool { return tl.BucketStarts[i].Before(tl.BucketStarts[j]) })

	var cur *Session
	for _, ts := range tl.Bursts {
		if cur == nil || ts.Sub(cur.End) > r.SessionBreak {
			tl.Sessions = append(tl.Sessions, Session{Start: ts, End: ts, Bursts: []time.Time{ts}})
			cur = &tl.Sessions[len(tl.Sessions)-1]
			continue
		}
		if ts.Sub(cur.End) > r.StayGap {
			// Sticky once set: any internal gap above the stay-gap
			// threshold marks probable lingering.
			cur.HasLongGap = true
		}
		cur.End = ts
		cur.Bursts = append(cur.Bursts, ts)
	}
	return tl
}
