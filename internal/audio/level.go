package audio

import "time"

// SilenceTracker reports when a stream has carried nothing but near-silence
// for a sustained period. Not safe for concurrent use; each audio path owns
// its own tracker.
type SilenceTracker struct {
	Threshold float64       // RMS at or below this counts as silence
	After     time.Duration // continuous silence before reporting

	since    time.Time
	reported bool
}

// Observe feeds one chunk's RMS level. It returns true exactly once per
// silence episode, after the stream has been silent for the configured
// duration. Any louder chunk resets the episode.
func (t *SilenceTracker) Observe(rms float64, now time.Time) bool {
	if rms > t.Threshold {
		t.since = time.Time{}
		t.reported = false
		return false
	}
	if t.since.IsZero() {
		t.since = now
		return false
	}
	if !t.reported && now.Sub(t.since) >= t.After {
		t.reported = true
		return true
	}
	return false
}
