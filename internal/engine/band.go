package engine

import (
	"time"

	"perimguard/internal/config"
)

// Band classifies a timestamp into the local-time activity band used by the
// rule catalogue.
type Band int

const (
	BandDay Band = iota
	BandDusk
	BandNight
)

func (b Band) String() string {
	switch b {
	case BandDusk:
		return "DUSK"
	case BandNight:
		return "NIGHT"
	default:
		return "DAY"
	}
}

func band(ts time.Time, bounds config.BandBounds) Band {
	local := ts.In(bounds.Location)
	minute := local.Hour()*60 + local.Minute()
	switch {
	case minute >= bounds.DayStart && minute < bounds.DuskStart:
		return BandDay
	case minute >= bounds.DuskStart && minute < bounds.NightStart:
		return BandDusk
	default:
		return BandNight
	}
}

// dominantBand is a majority vote, ties broken by enumeration order
// DAY, DUSK, NIGHT: the first band reaching the maximum count wins.
// Empty input yields DAY.
func dominantBand(times []time.Time, bounds config.BandBounds) Band {
	if len(times) == 0 {
		return BandDay
	}
	var counts [3]int
	for _, ts := range times {
		counts[band(ts, bounds)]++
	}
	best := BandDay
	for _, b := range []Band{BandDusk, BandNight} {
		if counts[b] > counts[best] {
			best = b
		}
	}
	return best
}
