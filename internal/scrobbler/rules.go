package scrobbler

import (
	"math"
)

// ThresholdMs returns how many milliseconds of listening a track of
// durationMs needs before it is scrobbled: round(durationMs * fraction).
func ThresholdMs(durationMs uint64, fraction float64) uint64 {
	return uint64(math.Round(float64(durationMs) * fraction))
}

// ShouldScrobble reports whether listenedMs has reached the scrobble
// threshold for a track of durationMs. Tracks without a known duration
// never qualify.
func ShouldScrobble(durationMs, listenedMs uint64, fraction float64) bool {
	if durationMs == 0 {
		return false
	}
	return listenedMs >= ThresholdMs(durationMs, fraction)
}
