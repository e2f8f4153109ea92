package engine

import "time"

// hasMatch reports whether at least one pair (p, o) of timestamps falls
// within the tolerance window. Both slices are event times from different
// sensors; correlation is by time proximity only.
func hasMatch(primary, others []time.Time, tolerance time.Duration) bool {
	for _, p := range primary {
		for _, o := range others {
			if absDelta(p, o) <= tolerance {
				return true
			}
		}
	}
	return false
}

// hasGroupMatch reports whether some primary timestamp has at least
// minMatches correlated others within tolerance. With minMatches 2 this is
// a proxy for "more than one device/person detected near one alarm".
func hasGroupMatch(primary, others []time.Time, tolerance time.Duration, minMatches int) bool {
	if minMatches < 1 {
		minMatches = 1
	}
	for _, p := range primary {
		count := 0
		for _, o := range others {
			if absDelta(p, o) <= tolerance {
				count++
				if count >= minMatches {
					return true
				}
			}
		}
	}
	return false
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
