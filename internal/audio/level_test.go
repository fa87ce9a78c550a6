package audio

import (
	"testing"
	"time"
)

func TestSilenceTrackerReportsOncePerEpisode(t *testing.T) {
	tr := SilenceTracker{Threshold: 10, After: 5 * time.Second}
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	if tr.Observe(0, base) {
		t.Error("first silent chunk should not report")
	}
	if tr.Observe(0, base.Add(3*time.Second)) {
		t.Error("silence below the duration should not report")
	}
	if !tr.Observe(0, base.Add(6*time.Second)) {
		t.Error("sustained silence should report")
	}
	if tr.Observe(0, base.Add(20*time.Second)) {
		t.Error("an episode should report only once")
	}
}

func TestSilenceTrackerResetsOnSound(t *testing.T) {
	tr := SilenceTracker{Threshold: 10, After: 5 * time.Second}
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	tr.Observe(0, base)
	if tr.Observe(500, base.Add(2*time.Second)) {
		t.Error("loud chunk should not report")
	}
	if tr.Observe(0, base.Add(3*time.Second)) {
		t.Error("new episode should restart the clock")
	}
	if tr.Observe(0, base.Add(7*time.Second)) {
		t.Error("3s into the new episode is too early to report")
	}
	if !tr.Observe(0, base.Add(9*time.Second)) {
		t.Error("sustained silence after reset should report again")
	}
}
