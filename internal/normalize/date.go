package normalize

import (
	"time"

	"cloud.google.com/go/civil"
)

// DaysBetween is the absolute number of calendar days between a and b. Only
// the date part counts, in each value's own location.
func DaysBetween(a, b time.Time) int {
	d := civil.DateOf(a).DaysSince(civil.DateOf(b))
	if d < 0 {
		return -d
	}
	return d
}

// DateProximity scores how close two dates are:
//
//	same day   1.0
//	1 day      0.9
//	≤ 3 days   0.7
//	≤ 7 days   0.5
//	≤ 14 days  0.3
//	otherwise  0.1
func DateProximity(a, b time.Time) float64 {
	switch days := DaysBetween(a, b); {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.9
	case days <= 3:
		return 0.7
	case days <= 7:
		return 0.5
	case days <= 14:
		return 0.3
	default:
		return 0.1
	}
}
