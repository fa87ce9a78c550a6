package assistant

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/broadcast"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/transcript"
)

// wakeRE matches the ways STT renders the assistant's name.
var wakeRE = regexp.MustCompile(`(?i)\bhey\s+plus\s*one\b|\bplus\s*one\b|\+\s*1\b`)

// HasWakeWord reports whether a transcript line addresses the assistant.
func HasWakeWord(text string) bool {
	return wakeRE.MatchString(text)
}

// ExtractQuestion returns everything after the wake word, or the full text
// when the wake word ends the line.
func ExtractQuestion(text string) string {
	loc := wakeRE.FindStringIndex(text)
	if loc == nil {
		return text
	}
	after := strings.TrimLeft(text[loc[1]:], ", \t")
	if after == "" {
		return text
	}
	return after
}

// Answerer produces a spoken-form answer to a question, given the meeting
// transcript so far.
type Answerer interface {
	Answer(ctx context.Context, question, transcriptText string) (string, error)
}

// SpeakFunc voices an answer into the call.
type SpeakFunc func(ctx context.Context, text string)

// minQuestionLen drops wake words with nothing usable after them.
const minQuestionLen = 3

// Conversation watches final transcript entries for the wake word, collects
// the question across the asker's lines, and answers it. One answer is
// generated at a time; wake words spoken mid-answer are ignored.
type Conversation struct {
	cfg      *config.Config
	store    *transcript.Store
	answerer Answerer
	bus      *broadcast.Broadcaster
	speak    SpeakFunc
	logger   zerolog.Logger
	now      func() time.Time

	processing atomic.Bool

	mu             sync.Mutex
	collecting     bool
	collectSpeaker *int
	collected      []string
	lastCollect    time.Time
	pending        string
}

func New(cfg *config.Config, store *transcript.Store, answerer Answerer, bus *broadcast.Broadcaster, speak SpeakFunc, logger zerolog.Logger) *Conversation {
	return &Conversation{
		cfg:      cfg,
		store:    store,
		answerer: answerer,
		bus:      bus,
		speak:    speak,
		logger:   logger,
		now:      time.Now,
	}
}

// Observe feeds one final transcript entry to the wake-word state machine.
// Called from the ingestion path; it never blocks.
func (c *Conversation) Observe(e transcript.Entry) {
	if c.processing.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.collecting {
		// Lines from the asker (or without attribution) extend the
		// question; another speaker cutting in ends it.
		if e.Speaker == nil || sameSpeaker(c.collectSpeaker, e.Speaker) {
			c.collected = append(c.collected, e.Text)
			c.lastCollect = c.now()
			return
		}
		c.flushLocked()
		return
	}

	if !HasWakeWord(e.Text) {
		return
	}
	c.collecting = true
	c.collectSpeaker = e.Speaker
	c.collected = []string{ExtractQuestion(e.Text)}
	c.lastCollect = c.now()
	c.logger.Debug().Msg("Wake word detected")
}

// Run flushes a collected question once the asker has been quiet for the
// configured window, then answers it. Returns when ctx is done.
func (c *Conversation) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.AssistantPollMS) * time.Millisecond)
	defer ticker.Stop()

	quiet := time.Duration(c.cfg.AssistantQuietMS) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.collecting && c.now().Sub(c.lastCollect) >= quiet {
			c.flushLocked()
		}
		question := c.pending
		c.pending = ""
		c.mu.Unlock()

		if question != "" {
			c.answer(ctx, question)
		}
	}
}

// flushLocked ends collection and stages the question for Run to answer.
func (c *Conversation) flushLocked() {
	c.collecting = false
	question := strings.TrimSpace(strings.Join(c.collected, " "))
	c.collected = nil
	c.collectSpeaker = nil
	if len(question) < minQuestionLen {
		return
	}
	c.pending = question
}

// answer asks the reasoning service and voices the reply.
func (c *Conversation) answer(ctx context.Context, question string) {
	if !c.processing.CompareAndSwap(false, true) {
		return
	}
	defer c.processing.Store(false)

	c.logger.Info().Str("question", question).Msg("Assistant question")

	text, err := c.answerer.Answer(ctx, question, transcript.FormatLines(c.store.Snapshot(0)))
	if err != nil {
		observability.RecordError("answer_failed", "assistant")
		c.logger.Warn().Err(err).Msg("Assistant answer failed")
		return
	}

	c.bus.Publish(broadcast.Event{Type: broadcast.EventAnswer, Answer: text})
	if c.speak != nil {
		c.speak(ctx, text)
	}
	c.logger.Info().Str("answer", text).Msg("Assistant answered")
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
