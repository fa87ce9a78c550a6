package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/assistant"
	"github.com/plusone-ai/plusone/internal/broadcast"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/monitor"
	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/stt"
	"github.com/plusone-ai/plusone/internal/transcript"
)

// Controller owns the session state machine. Exactly one session exists at
// a time; Start and Stop transitions are serialized and everything a session
// allocates is torn down before the controller returns to idle.
type Controller struct {
	cfg       *config.Config
	bus       *broadcast.Broadcaster
	analyzer  monitor.Analyzer
	speak     monitor.SpeakFunc
	newSource SourceFactory
	newSTT    STTFactory
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	active    *activeSession
	lastStore *transcript.Store
	lastErr   error
}

type activeSession struct {
	id        string
	topic     string
	startedAt time.Time

	store        *transcript.Store
	writer       *transcript.LiveWriter
	source       AudioSource
	sttClient    stt.Client
	conversation *assistant.Conversation

	cancel     context.CancelFunc
	ingestDone chan struct{}
	wg         sync.WaitGroup
}

// NewController wires a controller. analyzer may be nil; the monitor is then
// disabled and sessions are transcription-only.
func NewController(cfg *config.Config, bus *broadcast.Broadcaster, analyzer monitor.Analyzer, speak monitor.SpeakFunc, newSource SourceFactory, newSTT STTFactory, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		bus:       bus,
		analyzer:  analyzer,
		speak:     speak,
		newSource: newSource,
		newSTT:    newSTT,
		logger:    logger,
		now:       time.Now,
		state:     StateIdle,
	}
}

// Start begins a new session. Every resource is acquired before the state
// flips to recording; any acquisition failure unwinds what came before it
// and leaves the controller idle.
func (c *Controller) Start(ctx context.Context, topic string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return c.statusLocked(), ErrAlreadyRecording
	}

	id := observability.NewSessionID()
	logger := observability.SessionLogger(c.logger, id)

	writer := transcript.NewLiveWriter(c.cfg.TranscriptFilePath)
	if err := writer.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to open live transcript file")
		return c.statusLocked(), err
	}

	store := transcript.NewStore(writer, logger)

	source := c.newSource()
	if err := source.Open(ctx); err != nil {
		writer.Close()
		logger.Error().Err(err).Msg("Failed to open audio source")
		return c.statusLocked(), err
	}

	sttClient := c.newSTT(source.StreamOptions())
	if err := sttClient.Start(ctx); err != nil {
		source.Close()
		writer.Close()
		logger.Error().Err(err).Msg("Failed to start transcription")
		return c.statusLocked(), err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &activeSession{
		id:         id,
		topic:      topic,
		startedAt:  c.now(),
		store:      store,
		writer:     writer,
		source:     source,
		sttClient:  sttClient,
		cancel:     cancel,
		ingestDone: make(chan struct{}),
	}

	s.wg.Add(2)
	go c.sendLoop(sessionCtx, s)
	go c.ingestLoop(sessionCtx, s, logger)

	s.wg.Add(1)
	go c.watchFatal(sessionCtx, s, logger)

	if c.analyzer != nil {
		mon := monitor.New(c.cfg, store, c.analyzer, c.bus, c.speak, logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			mon.Run(sessionCtx)
		}()
	}

	// The analyzer doubles as the wake-word answerer when it supports
	// conversational answers.
	if ans, ok := c.analyzer.(assistant.Answerer); ok && c.cfg.AssistantEnabled {
		conv := assistant.New(c.cfg, store, ans, c.bus, assistant.SpeakFunc(c.speak), logger)
		s.conversation = conv
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			conv.Run(sessionCtx)
		}()
	}

	c.active = s
	c.state = StateRecording
	c.lastErr = nil
	observability.RecordSessionStart()
	c.bus.Publish(broadcast.Event{Type: broadcast.EventStatus, Status: string(StateRecording)})

	logger.Info().Str("topic", topic).Msg("Session started")
	return c.statusLocked(), nil
}

// sendLoop pushes source audio into the transcription client until the
// source closes its channel.
func (c *Controller) sendLoop(ctx context.Context, s *activeSession) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-s.source.Chunks():
			if !ok {
				return
			}
			s.sttClient.SendAudio(chunk)
		}
	}
}

// ingestLoop appends finalized results and fans them out. Interim results
// never reach the store. The loop is the store's single writer.
func (c *Controller) ingestLoop(ctx context.Context, s *activeSession, logger zerolog.Logger) {
	defer s.wg.Done()
	defer close(s.ingestDone)

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-s.sttClient.Results():
			if !ok {
				return
			}
			if !result.IsFinal {
				continue
			}

			entry := transcript.Entry{
				StartMS: result.StartMS,
				EndMS:   result.EndMS,
				Speaker: result.Speaker,
				Text:    result.Text,
				IsFinal: true,
			}

			err := s.store.Append(entry)
			if errors.Is(err, transcript.ErrOutOfOrder) {
				continue
			}
			if err != nil {
				// Live transcript write failure. The artifact can no
				// longer be trusted, so the whole session comes down.
				logger.Error().Err(err).Msg("Live transcript write failed, aborting session")
				go c.abort(err)
				return
			}

			c.bus.Publish(broadcast.Event{Type: broadcast.EventEntry, Entry: &entry})
			if s.conversation != nil {
				s.conversation.Observe(entry)
			}
		}
	}
}

// watchFatal reacts to an unrecoverable transcription failure: abort the
// session when configured to, otherwise keep capturing in degraded mode so
// the call itself is not cut short.
func (c *Controller) watchFatal(ctx context.Context, s *activeSession, logger zerolog.Logger) {
	defer s.wg.Done()
	select {
	case <-ctx.Done():
		return
	case err := <-s.sttClient.Fatal():
		observability.RecordError("stt_fatal", "session")
		if c.cfg.AbortOnSTTFailure {
			logger.Error().Err(err).Msg("Transcription lost, aborting session")
			go c.abort(err)
			return
		}
		logger.Warn().Err(err).Msg("Transcription lost, continuing without new entries")
	}
}

// Stop drains in-flight results, exports the caption artifact, and returns
// to idle. A caption write failure is reported but the entries survive in
// memory; the live transcript file on disk is already complete.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return StopResult{}, ErrNotRecording
	}
	s := c.active
	c.state = StateProcessing
	c.mu.Unlock()

	c.bus.Publish(broadcast.Event{Type: broadcast.EventStatus, Status: string(StateProcessing)})
	result, err := c.shutdown(s, true)

	c.mu.Lock()
	c.state = StateIdle
	c.active = nil
	c.lastStore = s.store
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()

	c.bus.Publish(broadcast.Event{Type: broadcast.EventStatus, Status: string(StateIdle)})
	return result, err
}

// abort force-stops a session after a fatal pipeline error. Runs from a
// pipeline goroutine, so it re-checks state like any external Stop.
func (c *Controller) abort(cause error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	s := c.active
	c.state = StateProcessing
	c.lastErr = cause
	c.mu.Unlock()

	c.bus.Publish(broadcast.Event{Type: broadcast.EventStatus, Status: string(StateProcessing)})
	if _, err := c.shutdown(s, false); err != nil {
		c.logger.Warn().Err(err).Msg("Shutdown after abort was incomplete")
	}

	c.mu.Lock()
	c.state = StateIdle
	c.active = nil
	c.lastStore = s.store
	c.mu.Unlock()

	c.bus.Publish(broadcast.Event{Type: broadcast.EventStatus, Status: string(StateIdle)})
}

// shutdown tears the session down in pipeline order: source first so no new
// audio enters, then the transcriber with a bounded drain for in-flight
// results, then the artifacts.
func (c *Controller) shutdown(s *activeSession, drain bool) (StopResult, error) {
	logger := c.logger.With().Str("session_id", s.id).Logger()

	if err := s.source.Close(); err != nil {
		logger.Warn().Err(err).Msg("Audio source close failed")
	}
	if err := s.sttClient.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Transcription stop failed")
	}

	if drain {
		select {
		case <-s.ingestDone:
		case <-time.After(time.Duration(c.cfg.StopDrainTimeoutMS) * time.Millisecond):
			logger.Warn().Msg("Drain timeout reached, in-flight results discarded")
		}
	}
	s.cancel()
	s.wg.Wait()

	if err := s.writer.Close(); err != nil {
		logger.Warn().Err(err).Msg("Live transcript close failed")
	}

	observability.RecordSessionEnd(s.startedAt)

	result := StopResult{Entries: s.store.Len()}
	entries := s.store.Snapshot(0)
	if len(entries) > 0 {
		path, err := transcript.WriteVTT(entries, s.topic, c.cfg.CaptionOutputDir, c.now())
		if err != nil {
			logger.Error().Err(err).Msg("Caption export failed, entries retained in memory")
			observability.RecordError("caption_write", "session")
			return result, err
		}
		result.CaptionPath = path
		logger.Info().Str("path", path).Int("entries", result.Entries).Msg("Caption exported")
	}

	logger.Info().Int("entries", result.Entries).Msg("Session ended")
	return result, nil
}

// Status reports the current state. After a session ends, the entry count
// of the finished session remains visible until the next Start.
func (c *Controller) Status() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Session {
	st := Session{State: c.state}
	switch {
	case c.active != nil:
		st.ID = c.active.id
		st.Topic = c.active.topic
		st.StartedAt = c.active.startedAt
		st.Entries = c.active.store.Len()
	case c.lastStore != nil:
		st.Entries = c.lastStore.Len()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// TranscriptContext returns the session's entries and the elapsed session
// milliseconds. After a stop it serves the finished session's entries.
func (c *Controller) TranscriptContext() ([]transcript.Entry, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var store *transcript.Store
	var elapsed int64
	if c.active != nil {
		store = c.active.store
		elapsed = c.now().Sub(c.active.startedAt).Milliseconds()
	} else {
		store = c.lastStore
	}
	if store == nil {
		return nil, elapsed
	}
	return store.Snapshot(0), elapsed
}

// TranscriptText renders the current transcript as live-file text.
func (c *Controller) TranscriptText() string {
	entries, _ := c.TranscriptContext()
	return transcript.FormatLines(entries)
}
