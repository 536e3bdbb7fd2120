package render

import (
	"time"

	"github.com/dustin/go-humanize"
)

// billingCountdown applies spec.md §4.5 step 5's client-side age
// correction: remainingMin was accurate as of fetchedAt, but the
// Renderer may run long after that gather cycle, so the elapsed wall
// clock is subtracted before display rather than showing a number that
// silently drifts stale.
func billingCountdown(remainingMin int, fetchedAt, now time.Time) string {
	if fetchedAt.IsZero() {
		return "--"
	}
	elapsed := now.Sub(fetchedAt)
	remaining := time.Duration(remainingMin)*time.Minute - elapsed
	if remaining <= 0 {
		return "due now"
	}
	return humanize.Time(now.Add(remaining))
}
