// Package interruption decides whether a learner stepped away from a
// session long enough to warrant a resumption summary.
package interruption

import (
	"fmt"
	"time"
)

// DefaultThreshold is the gap at or beyond which a session counts as
// interrupted.
const DefaultThreshold = 10 * time.Minute

// Result is the outcome of one detection.
type Result struct {
	Interrupted bool
	Gap         time.Duration
	// Anomaly is set when the last activity timestamp is unusable.
	Anomaly string
}

// Detect compares the last activity time with now. A zero or future last
// timestamp is never an interruption; it is reported as an anomaly. A
// non-positive threshold falls back to DefaultThreshold.
func Detect(last, now time.Time, threshold time.Duration) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if last.IsZero() {
		return Result{Anomaly: "no previous activity recorded"}
	}
	if last.After(now) {
		return Result{Anomaly: fmt.Sprintf("last activity %s is in the future", last.UTC().Format(time.RFC3339))}
	}

	gap := now.Sub(last)
	return Result{Interrupted: gap >= threshold, Gap: gap}
}

// FormatGap renders a gap for learner-facing text, e.g. "2 hours",
// "1 day 3 hours", "15 minutes".
func FormatGap(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		if hours == 0 {
			return plural(days, "day")
		}
		return plural(days, "day") + " " + plural(hours, "hour")
	case hours > 0:
		if minutes == 0 {
			return plural(hours, "hour")
		}
		return plural(hours, "hour") + " " + plural(minutes, "minute")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
