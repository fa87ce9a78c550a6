package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plusone_active_sessions",
		Help: "Number of active recording sessions (0 or 1)",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plusone_sessions_total",
		Help: "Total number of recording sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plusone_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
	})

	// Transcript metrics
	entriesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plusone_transcript_entries_total",
		Help: "Total finalized transcript entries appended",
	})

	entriesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_transcript_entries_dropped_total",
		Help: "Transcript entries dropped before append",
	}, []string{"reason"}) // reason: "out_of_order"

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_audio_frames_dropped_total",
		Help: "Audio frames dropped from bounded queues",
	}, []string{"queue"}) // queue: "capture", "telephony", "stt_send"

	// STT metrics
	sttReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plusone_stt_reconnects_total",
		Help: "Total STT connection recovery attempts",
	})

	sttResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_stt_results_total",
		Help: "Recognition results received from the STT service",
	}, []string{"kind"}) // kind: "interim" or "final"

	// Monitor metrics
	monitorCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_monitor_cycles_total",
		Help: "Monitor analysis cycles by outcome",
	}, []string{"status"}) // status: "ok", "failed", "skipped_inflight"

	monitorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plusone_monitor_analysis_seconds",
		Help:    "Latency of reasoning-service analysis calls",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	suggestionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_suggestions_total",
		Help: "Monitor suggestions emitted by category",
	}, []string{"category"})

	// Broadcast metrics
	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plusone_broadcast_subscribers",
		Help: "Currently connected observation-channel subscribers",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plusone_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordSessionStart records the start of a recording session.
func RecordSessionStart() {
	activeSessions.Inc()
	sessionsTotal.Inc()
}

// RecordSessionEnd records the end of a session and its duration.
func RecordSessionEnd(startedAt time.Time) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(startedAt).Seconds())
}

// RecordEntryAppended records a finalized entry reaching the store.
func RecordEntryAppended() {
	entriesAppended.Inc()
}

// RecordEntryDropped records an entry dropped before append.
func RecordEntryDropped(reason string) {
	entriesDropped.WithLabelValues(reason).Inc()
}

// RecordAudioBytes records audio bytes moving through the pipeline.
func RecordAudioBytes(direction string, n int64) {
	audioBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordFrameDropped records a frame shed from a bounded queue.
func RecordFrameDropped(queue string) {
	framesDropped.WithLabelValues(queue).Inc()
}

// RecordSTTReconnect records an STT reconnection attempt.
func RecordSTTReconnect() {
	sttReconnects.Inc()
}

// RecordSTTResult records a recognition result by kind.
func RecordSTTResult(final bool) {
	kind := "interim"
	if final {
		kind = "final"
	}
	sttResults.WithLabelValues(kind).Inc()
}

// RecordMonitorCycle records a monitor cycle outcome.
func RecordMonitorCycle(status string) {
	monitorCycles.WithLabelValues(status).Inc()
}

// RecordMonitorLatency records the duration of one analysis call.
func RecordMonitorLatency(d time.Duration) {
	monitorLatency.Observe(d.Seconds())
}

// RecordSuggestion records an emitted suggestion.
func RecordSuggestion(category string) {
	suggestionsEmitted.WithLabelValues(category).Inc()
}

// SubscriberConnected adjusts the subscriber gauge.
func SubscriberConnected()    { subscribers.Inc() }
func SubscriberDisconnected() { subscribers.Dec() }

// RecordError records an error by type and component.
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
