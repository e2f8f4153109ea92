package engine

import (
	"fmt"
	"strconv"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

// A ruleFunc is one independent, side-effect-free detection rule. Rules read
// the shared Features and report through the accumulator; evaluation order
// is the catalogue order, which also decides ties when the top rule is
// picked for the summary.
type ruleFunc func(r *config.RiskConfig, f *Features, acc *Accumulator)

var ruleCatalogue = []ruleFunc{
	ruleNightActivity,
	ruleDuskActivity,
	ruleBucketDensity,
	ruleSessionLongGap,
	ruleQuickRevisit,
	ruleAOIEntry,
	ruleDwell,
	ruleDwellLong,
	ruleReentry,
	rulePatrol,
	ruleCompanion,
	ruleCorroboration,
	ruleRadarRepeat,
	ruleRadarLinger,
	ruleMultiDayCasing,
	ruleFarmWhitelist,
	ruleNightStay,
	ruleForcedGraySoloDwell,
	ruleForcedGrayPatrol,
}

func evaluateRules(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if len(f.Events) == 0 {
		// Zero valid events still yield a well-defined LOG_ONLY outcome.
		return
	}
	for _, rule := range ruleCatalogue {
		rule(r, f, acc)
	}
}

func ruleNightActivity(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Dominant == BandNight {
		acc.AddScore("night_activity", r.Weights.NightActivity, "夜间活动为主")
	}
}

func ruleDuskActivity(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Dominant == BandDusk {
		acc.AddScore("dusk_activity", r.Weights.DuskActivity, "黄昏活动为主")
	}
}

func ruleBucketDensity(r *config.RiskConfig, f *Features, acc *Accumulator) {
	n := len(f.Timeline.BucketStarts)
	if n == 0 {
		return
	}
	acc.SetMetadata("bucketCount", n)
	idx := n - 1
	if idx >= len(r.Weights.BucketDensity) {
		idx = len(r.Weights.BucketDensity) - 1
	}
	acc.AddScore("bucket_density", r.Weights.BucketDensity[idx],
		fmt.Sprintf("近%d分钟内活动覆盖 %d 个时间段", int(r.ShortWindow.Minutes()), n))
}

func ruleSessionLongGap(r *config.RiskConfig, f *Features, acc *Accumulator) {
	for _, s := range f.Timeline.Sessions {
		if s.HasLongGap {
			acc.AddScore("session_long_gap", r.Weights.SessionLongGap, "会话内存在长间隔，疑似滞留")
			return
		}
	}
}

func ruleQuickRevisit(r *config.RiskConfig, f *Features, acc *Accumulator) {
	sessions := f.Timeline.Sessions
	if len(sessions) < 2 {
		return
	}
	gap := sessions[len(sessions)-1].Start.Sub(sessions[len(sessions)-2].End)
	if gap > r.QuickRevisitMin && gap <= r.QuickRevisitMax {
		acc.AddScore("quick_revisit", r.Weights.QuickRevisit, "短时间内再次到访")
	}
}

func ruleAOIEntry(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera {
		return
	}
	if f.LatestBand == BandNight {
		acc.AddScore("aoi_entry", r.Weights.NightAOIEntry, "夜间闯入防区")
	} else {
		acc.AddScore("aoi_entry", r.Weights.DayAOIEntry, "白天进入防区")
	}
}

func ruleDwell(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera {
		return
	}
	if !hasDwellPair(f.Events, r.DwellPairMax) {
		return
	}
	if f.LatestBand == BandNight {
		acc.AddScore("aoi_dwell_60s", r.Weights.DwellNight, "夜间防区停留超过60秒")
	} else {
		acc.AddScore("aoi_dwell_60s", r.Weights.DwellDay, "防区停留超过60秒")
	}
}

func ruleDwellLong(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera || f.LatestBand != BandNight {
		return
	}
	if hasTripleSpan(f.Events, r.DwellLongSpan) {
		acc.AddScore("aoi_dwell_180s", r.Weights.DwellLongNight, "夜间防区停留超过180秒")
	}
}

func ruleReentry(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera {
		return
	}
	if !hasReentryPair(f.Timeline.Bursts, r.ReentryMax) {
		return
	}
	if f.LatestBand == BandNight {
		acc.AddScore("aoi_reentry", r.Weights.ReentryNight, "夜间10分钟内再次闯入防区")
		acc.MarkDirectBlack("black_night_reentry", "夜间再次闯入防区")
	} else {
		acc.AddScore("aoi_reentry", r.Weights.ReentryDay, "10分钟内再次闯入防区")
	}
}

func rulePatrol(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera {
		return
	}
	if !isPatrolling(r, f) {
		return
	}
	if f.LatestBand == BandNight {
		acc.AddScore("perimeter_patrol", r.Weights.PatrolNight, "夜间沿防区往返徘徊")
	} else {
		acc.AddScore("perimeter_patrol", r.Weights.PatrolDay, "沿防区往返徘徊")
	}
}

func ruleCompanion(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if !hasCompanion(r, f) {
		return
	}
	if f.Dominant == BandNight {
		acc.AddScore("companion_presence", r.Weights.CompanionNight, "夜间多设备同行出现")
	} else {
		acc.AddScore("companion_presence", r.Weights.CompanionDay, "多设备同行出现")
	}
	if f.Subject.Type == model.SubjectCamera && f.LatestBand == BandNight {
		acc.MarkDirectBlack("black_night_companion", "夜间多人结伴闯入防区")
	}
}

func ruleCorroboration(r *config.RiskConfig, f *Features, acc *Accumulator) {
	tol := r.CorrelationTolerance
	switch f.Subject.Type {
	case model.SubjectIMSI:
		if hasMatch(f.Timeline.Bursts, f.RadarTimes, tol) {
			acc.AddScore("sensor_corroboration", r.Weights.CorroborationRadar, "手机信号与雷达探测同时出现")
		}
	case model.SubjectCamera:
		if hasMatch(eventTimes(f.Events), f.RadarTimes, tol) {
			acc.AddScore("sensor_corroboration", r.Weights.CorroborationRadar, "摄像头告警与雷达探测同时出现")
		}
	case model.SubjectRadar:
		if hasMatch(f.Timeline.Bursts, f.CameraTimes, tol) || hasMatch(f.Timeline.Bursts, f.ImsiTimes, tol) {
			acc.AddScore("sensor_corroboration", r.Weights.CorroborationOther, "雷达目标获其他传感器印证")
		}
	}
}

func ruleRadarRepeat(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectRadar {
		return
	}
	if len(f.Timeline.ShortBursts) >= r.RadarRepeatMin {
		acc.AddScore("radar_repeat", r.Weights.RadarRepeat,
			fmt.Sprintf("雷达%d分钟内重复探测同一目标", int(r.ShortWindow.Minutes())))
	}
}

func ruleRadarLinger(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectRadar {
		return
	}
	if !hasRadarLinger(r, f.Events) {
		return
	}
	if f.Dominant == BandNight {
		acc.AddScore("radar_linger", r.Weights.RadarLingerNight, "夜间雷达目标低速徘徊")
		if len(f.Timeline.ShortBursts) >= r.RadarLingerBlackHits {
			acc.MarkDirectBlack("black_radar_night_linger", "夜间雷达低速徘徊且短时多次探测")
		}
	} else {
		acc.AddScore("radar_linger", r.Weights.RadarLingerDay, "雷达目标低速徘徊")
	}
}

func ruleMultiDayCasing(r *config.RiskConfig, f *Features, acc *Accumulator) {
	stats := dailyStats(f.History, f.Now, r.CasingDays, f.Bounds)
	if stats.nightSeen {
		return
	}
	qualifying := 0
	for _, day := range stats.days {
		if day.day >= r.CasingMinDaySightings && day.night == 0 {
			qualifying++
		}
	}
	if qualifying >= r.CasingMinDays {
		acc.SetMetadata("casingDays", qualifying)
		acc.AddScore("multi_day_casing", r.Weights.MultiDayCasing,
			fmt.Sprintf("近%d天内 %d 天白天踩点、从未夜间出现", r.CasingDays, qualifying))
	}
}

func ruleFarmWhitelist(r *config.RiskConfig, f *Features, acc *Accumulator) {
	stats := dailyStats(f.History, f.Now, r.WhitelistDays, f.Bounds)
	if stats.nightSeen {
		return
	}
	qualifying := 0
	for _, day := range stats.days {
		if day.day >= 1 {
			qualifying++
		}
	}
	if qualifying >= r.WhitelistMinDays {
		acc.SetMetadata("whitelistDays", qualifying)
		acc.MarkWhite("farm_whitelist", "多日白天规律出现，疑似农作人员")
	}
}

func ruleNightStay(r *config.RiskConfig, f *Features, acc *Accumulator) {
	latest, ok := f.Timeline.LatestSession()
	if !ok {
		return
	}
	tMin := latest.End.Sub(latest.Start)
	tHat := time.Duration(len(latest.Bursts)-1) * r.DwellPerHit
	if tMin > tHat {
		tHat = tMin
	}
	tMax := tMin + r.DwellPad
	acc.SetMetadata("dwellEstimate", map[string]any{
		"tMinSec": int(tMin.Seconds()),
		"tHatSec": int(tHat.Seconds()),
		"tMaxSec": int(tMax.Seconds()),
	})
	acc.SetMetadata("latestSession", map[string]any{
		"start":  latest.Start.UTC().Format(time.RFC3339),
		"end":    latest.End.UTC().Format(time.RFC3339),
		"bursts": len(latest.Bursts),
	})
	if band(latest.End, f.Bounds) != BandNight {
		return
	}
	if len(f.Timeline.BucketStarts) >= r.NightStayMinBuckets || tHat >= r.NightStayDwell || tMax >= r.NightStayDwellMax {
		acc.ForceStrongAlert()
		acc.SetMetadata("nightStay", true)
	}
}

func ruleForcedGraySoloDwell(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera || f.LatestBand != BandNight {
		return
	}
	if !hasDwellPair(f.Events, r.DwellPairMax) {
		return
	}
	if hasReentryPair(f.Timeline.Bursts, r.ReentryMax) || hasCompanion(r, f) {
		return
	}
	acc.MarkForcedGray("gray_solo_night_dwell", "夜间单人防区停留，未再次闯入")
}

func ruleForcedGrayPatrol(r *config.RiskConfig, f *Features, acc *Accumulator) {
	if f.Subject.Type != model.SubjectCamera || f.LatestBand != BandNight {
		return
	}
	if !isPatrolling(r, f) || hasCompanion(r, f) {
		return
	}
	acc.MarkForcedGray("gray_night_patrol_solo", "夜间沿防区徘徊，未达同行人数")
}

// hasDwellPair reports two consecutive raw alarms no more than maxGap apart.
// Raw alarms, not bursts: a camera re-triggering inside the burst-merge
// interval is exactly the dwell signal merging would erase.
func hasDwellPair(events []model.Event, maxGap time.Duration) bool {
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Sub(events[i-1].Timestamp) <= maxGap {
			return true
		}
	}
	return false
}

// hasTripleSpan reports three alarms spanning no more than span end to end.
func hasTripleSpan(events []model.Event, span time.Duration) bool {
	for i := 2; i < len(events); i++ {
		if events[i].Timestamp.Sub(events[i-2].Timestamp) <= span {
			return true
		}
	}
	return false
}

// hasReentryPair reports two consecutive bursts within maxGap. Bursts are
// more than the merge interval apart by construction, so sub-interval camera
// chatter never reads as a reentry.
func hasReentryPair(bursts []time.Time, maxGap time.Duration) bool {
	for i := 1; i < len(bursts); i++ {
		if bursts[i].Sub(bursts[i-1]) <= maxGap {
			return true
		}
	}
	return false
}

func isPatrolling(r *config.RiskConfig, f *Features) bool {
	return len(f.Timeline.ShortBursts) >= r.PatrolMinBursts && !hasDwellPair(f.Events, r.DwellPairMax)
}

// hasCompanion applies the intentional plurality asymmetry: identity/camera
// co-occurrence only counts when more than one device is detected near one
// alarm, hence the group threshold.
func hasCompanion(r *config.RiskConfig, f *Features) bool {
	switch f.Subject.Type {
	case model.SubjectIMSI:
		return hasGroupMatch(f.Timeline.Bursts, f.CameraTimes, r.CorrelationTolerance, r.GroupMinMatches)
	case model.SubjectCamera:
		return hasGroupMatch(eventTimes(f.Events), f.ImsiTimes, r.CorrelationTolerance, r.GroupMinMatches)
	default:
		return false
	}
}

func hasRadarLinger(r *config.RiskConfig, events []model.Event) bool {
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Sub(events[i-1].Timestamp) > r.RadarLingerGap {
			continue
		}
		speed, ok := eventSpeed(events[i])
		if ok && speed < r.RadarLingerSpeed {
			return true
		}
	}
	return false
}

func eventSpeed(ev model.Event) (float64, bool) {
	raw, ok := ev.Attributes["speed"]
	if !ok || raw == "" {
		return 0, false
	}
	speed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return speed, true
}

type dayCounts struct {
	day   int
	dusk  int
	night int
}

type historyStats struct {
	days      map[string]*dayCounts
	nightSeen bool
}

// dailyStats aggregates the extended history over the last `days` local
// days, bucketed by local calendar date.
func dailyStats(history []model.Event, now time.Time, days int, bounds config.BandBounds) historyStats {
	stats := historyStats{days: make(map[string]*dayCounts)}
	cutoff := now.AddDate(0, 0, -days)
	for _, ev := range history {
		if ev.Timestamp.Before(cutoff) || ev.Timestamp.After(now) {
			continue
		}
		key := ev.Timestamp.In(bounds.Location).Format("2006-01-02")
		counts := stats.days[key]
		if counts == nil {
			counts = &dayCounts{}
			stats.days[key] = counts
		}
		switch band(ev.Timestamp, bounds) {
		case BandNight:
			counts.night++
			stats.nightSeen = true
		case BandDusk:
			counts.dusk++
		default:
			counts.day++
		}
	}
	return stats
}
