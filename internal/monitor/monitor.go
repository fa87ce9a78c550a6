package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/broadcast"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/reasoning"
	"github.com/plusone-ai/plusone/internal/transcript"
)

// priorLimit bounds the already-surfaced summaries carried between cycles
// for deduplication.
const priorLimit = 10

// Analyzer produces suggestions from a transcript window.
type Analyzer interface {
	Analyze(ctx context.Context, transcriptText string, priorSummaries []string) ([]reasoning.Suggestion, error)
}

// SpeakFunc voices a suggestion into the call. Optional.
type SpeakFunc func(ctx context.Context, text string)

// Monitor periodically analyzes the transcript and publishes suggestions.
// A cycle fires only when BOTH gates pass: the cooldown since the previous
// cycle has elapsed AND enough new finalized lines have accumulated. At
// most one analysis runs at a time.
type Monitor struct {
	cfg      *config.Config
	store    *transcript.Store
	analyzer Analyzer
	bus      *broadcast.Broadcaster
	speak    SpeakFunc
	logger   zerolog.Logger

	now func() time.Time

	mu          sync.Mutex
	lastCycleAt time.Time
	prior       []string

	inFlight atomic.Bool
}

func New(cfg *config.Config, store *transcript.Store, analyzer Analyzer, bus *broadcast.Broadcaster, speak SpeakFunc, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		store:    store,
		analyzer: analyzer,
		bus:      bus,
		speak:    speak,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled. The first cycle's cooldown is measured
// from session start, so analysis never fires in the opening seconds of a
// call no matter how chatty it is.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.lastCycleAt = m.now()
	m.mu.Unlock()

	ticker := time.NewTicker(time.Duration(m.cfg.MonitorPollSeconds * float64(time.Second)))
	defer ticker.Stop()

	m.logger.Info().
		Int("cooldown_s", m.cfg.MonitorCooldownSeconds).
		Int("min_new_lines", m.cfg.MonitorMinNewLines).
		Msg("Monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor stopped")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll runs one gate evaluation and, if it passes, launches a cycle.
func (m *Monitor) poll(ctx context.Context) {
	now := m.now()
	if !m.shouldFire(now) {
		return
	}

	if !m.inFlight.CompareAndSwap(false, true) {
		observability.RecordMonitorCycle("skipped_inflight")
		m.logger.Debug().Msg("Analysis still in flight, skipping poll")
		return
	}

	// Gates are consumed at cycle start. Lines that arrive while the
	// analysis runs count toward the next cycle, and a failed cycle still
	// spends its cooldown.
	m.mu.Lock()
	m.lastCycleAt = now
	m.mu.Unlock()
	m.store.ResetNewLines()

	go func() {
		defer m.inFlight.Store(false)
		m.runCycle(ctx)
	}()
}

// shouldFire reports whether both gates pass at t.
func (m *Monitor) shouldFire(t time.Time) bool {
	m.mu.Lock()
	last := m.lastCycleAt
	m.mu.Unlock()

	cooldown := time.Duration(m.cfg.MonitorCooldownSeconds) * time.Second
	if t.Sub(last) < cooldown {
		return false
	}
	return m.store.NewLines() >= m.cfg.MonitorMinNewLines
}

// runCycle performs one analysis pass over the recent transcript window.
func (m *Monitor) runCycle(ctx context.Context) {
	started := m.now()
	window := m.store.Snapshot(m.cfg.MonitorWindowLines)
	text := formatWindow(window)

	m.mu.Lock()
	prior := make([]string, len(m.prior))
	copy(prior, m.prior)
	m.mu.Unlock()

	suggestions, err := m.analyzer.Analyze(ctx, text, prior)
	observability.RecordMonitorLatency(m.now().Sub(started))
	if err != nil {
		observability.RecordMonitorCycle("failed")
		observability.RecordError("analysis_failed", "monitor")
		m.logger.Warn().Err(err).Msg("Analysis cycle failed")
		return
	}
	observability.RecordMonitorCycle("ok")

	for _, s := range suggestions {
		if !s.Category.Valid() {
			m.logger.Debug().Str("category", string(s.Category)).Msg("Dropping suggestion with unknown category")
			continue
		}
		observability.RecordSuggestion(string(s.Category))
		m.logger.Info().
			Str("category", string(s.Category)).
			Str("summary", s.Summary).
			Msg("Suggestion")

		suggestion := s
		m.bus.Publish(broadcast.Event{Type: broadcast.EventSuggestion, Suggestion: &suggestion})

		if m.speak != nil && s.Category.HighPriority() {
			m.speak(ctx, s.Summary)
		}

		m.remember(s.Summary)
	}
}

// remember records a surfaced summary, keeping only the most recent few.
func (m *Monitor) remember(summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prior = append(m.prior, summary)
	if len(m.prior) > priorLimit {
		m.prior = m.prior[len(m.prior)-priorLimit:]
	}
}

// formatWindow renders entries the way they appear in the live transcript.
func formatWindow(entries []transcript.Entry) string {
	return transcript.FormatLines(entries)
}
