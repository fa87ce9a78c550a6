package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/resilience"
)

// StreamOptions describes the audio the caller will send.
type StreamOptions struct {
	Encoding   string // "linear16" for local capture, "mulaw" for telephony
	SampleRate int
	Channels   int
}

// messageCallbackHandler adapts the SDK's callback interface. It embeds the
// default handler and overrides only message and error delivery.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	m.onMessage(msg)
	return nil
}

func (m *messageCallbackHandler) Error(errResp *msginterfaces.ErrorResponse) error {
	if m.onError != nil {
		return m.onError(errResp)
	}
	return m.DefaultCallbackHandler.Error(errResp)
}

// DeepgramClient implements Client on Deepgram's streaming websocket API.
type DeepgramClient struct {
	cfg     *config.Config
	opts    StreamOptions
	logger  zerolog.Logger
	results chan Result
	fatal   chan error

	// sendQueue decouples audio producers from the websocket write. When it
	// fills, the oldest chunk is dropped so a slow connection sheds backlog
	// instead of growing it.
	sendQueue chan []byte

	mu     sync.RWMutex
	client *listenClient.WSCallback
	active bool
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	fatalOnce sync.Once
	closeOnce sync.Once
	senderWG  sync.WaitGroup
}

func NewDeepgramClient(cfg *config.Config, opts StreamOptions, logger zerolog.Logger) *DeepgramClient {
	if opts.Channels == 0 {
		opts.Channels = 1
	}
	return &DeepgramClient{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		results:   make(chan Result, 100),
		fatal:     make(chan error, 1),
		sendQueue: make(chan []byte, cfg.SendQueueSize),
	}
}

// Start opens the streaming session and launches the sender loop.
func (d *DeepgramClient) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return fmt.Errorf("deepgram client already active")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if err := d.connect(); err != nil {
		d.cancel()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	d.senderWG.Add(1)
	go d.senderLoop()

	d.logger.Info().
		Str("model", d.cfg.DeepgramModel).
		Str("encoding", d.opts.Encoding).
		Int("sample_rate", d.opts.SampleRate).
		Bool("diarize", d.cfg.EnableDiarization).
		Msg("Transcription stream opened")
	return nil
}

// connect dials one websocket session and installs callbacks.
func (d *DeepgramClient) connect() error {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.DeepgramModel,
		Language:       d.cfg.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Diarize:        d.cfg.EnableDiarization,
		Encoding:       d.opts.Encoding,
		Channels:       d.opts.Channels,
		SampleRate:     d.opts.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleMessage,
		onError: func(errResp *msginterfaces.ErrorResponse) error {
			d.logger.Warn().
				Str("type", errResp.Type).
				Str("description", errResp.Description).
				Msg("Transcription stream error")
			observability.RecordError("stream_error", "stt")

			select {
			case <-d.ctx.Done():
				return nil
			default:
			}

			d.mu.Lock()
			d.active = false
			d.mu.Unlock()
			go d.attemptReconnect()
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(d.ctx, d.cfg.DeepgramAPIKey, nil, tOptions, callback)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.client = client
	d.active = true
	d.mu.Unlock()
	return nil
}

// handleMessage converts SDK messages into Results.
func (d *DeepgramClient) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "SpeechStarted", "Metadata":
		return
	case "UtteranceEnd":
		d.logger.Debug().Msg("Utterance ended")
		return
	case "Results", "Message":
	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Unhandled transcription message type")
		return
	}

	result, ok := resultFromMessage(msg, d.cfg.EnableDiarization)
	if !ok {
		return
	}
	observability.RecordSTTResult(result.IsFinal)
	d.emit(result)
}

// emit delivers a result unless the client has been stopped. The read lock
// keeps in-flight sends ordered before closeResults closes the channel.
func (d *DeepgramClient) emit(result Result) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.results <- result:
	default:
		observability.RecordEntryDropped("results_queue_full")
		d.logger.Warn().Msg("Results channel full, dropping transcription")
	}
}

// closeResults closes the results channel exactly once after the callback
// path has quiesced, so consumers draining it can finish without a timeout.
func (d *DeepgramClient) closeResults() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.results)
		d.mu.Unlock()
	})
}

// resultFromMessage maps a transcription message to a Result. Returns false
// for messages with no usable text. When diarization is on, the speaker is
// the one who spoke the most words in the segment.
func resultFromMessage(msg *msginterfaces.MessageResponse, diarize bool) (Result, bool) {
	if len(msg.Channel.Alternatives) == 0 {
		return Result{}, false
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return Result{}, false
	}

	start := msg.Start
	duration := msg.Duration
	if len(alt.Words) > 0 && duration == 0 {
		start = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - start
	}

	r := Result{
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
		StartMS:    int64(start * 1000),
		EndMS:      int64((start + duration) * 1000),
	}

	if diarize {
		if speaker, ok := dominantSpeaker(alt.Words); ok {
			r.Speaker = &speaker
		}
	}
	return r, true
}

// dominantSpeaker returns the speaker index with the most labeled words.
// Words without a label are ignored; a segment with none stays unattributed.
func dominantSpeaker(words []msginterfaces.Word) (int, bool) {
	counts := make(map[int]int)
	for _, w := range words {
		if w.Speaker == nil {
			continue
		}
		counts[*w.Speaker]++
	}
	if len(counts) == 0 {
		return 0, false
	}
	best, bestCount := 0, -1
	for speaker, count := range counts {
		if count > bestCount || (count == bestCount && speaker < best) {
			best, bestCount = speaker, count
		}
	}
	return best, true
}

// SendAudio enqueues a chunk, dropping the oldest queued chunk when full.
func (d *DeepgramClient) SendAudio(chunk []byte) {
	select {
	case d.sendQueue <- chunk:
		return
	default:
	}

	select {
	case <-d.sendQueue:
		observability.RecordFrameDropped("stt_send")
	default:
	}
	select {
	case d.sendQueue <- chunk:
	default:
		observability.RecordFrameDropped("stt_send")
	}
}

// senderLoop drains the send queue into the websocket.
func (d *DeepgramClient) senderLoop() {
	defer d.senderWG.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case chunk := <-d.sendQueue:
			if err := d.write(chunk); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to send audio chunk")
			}
		}
	}
}

func (d *DeepgramClient) write(chunk []byte) error {
	d.mu.RLock()
	active := d.active
	client := d.client
	d.mu.RUnlock()

	if !active || client == nil {
		return fmt.Errorf("transcription stream not active")
	}

	if _, err := client.Write(chunk); err != nil {
		d.mu.Lock()
		d.active = false
		d.mu.Unlock()
		go d.attemptReconnect()
		return err
	}
	observability.RecordAudioBytes("stt", int64(len(chunk)))
	return nil
}

// attemptReconnect re-dials with backoff. Exhausted attempts surface on the
// fatal channel; audio arriving mid-reconnect is shed by the send queue.
func (d *DeepgramClient) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.mu.RLock()
	active := d.active
	d.mu.RUnlock()
	if active {
		return
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.cfg.ReconnectBackoffMS) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  time.Duration(d.cfg.ReconnectMaxBackoffS) * time.Second,
	}

	err := resilience.Reconnect(d.ctx, d.logger, func() error {
		observability.RecordSTTReconnect()
		return d.connect()
	}, reconnectConfig)

	if err != nil {
		d.logger.Error().Err(err).Msg("Transcription reconnect exhausted")
		d.fatalOnce.Do(func() {
			d.fatal <- fmt.Errorf("%w: %v", ErrConnectionLost, err)
		})
	}
}

func (d *DeepgramClient) Results() <-chan Result {
	return d.results
}

func (d *DeepgramClient) Fatal() <-chan error {
	return d.fatal
}

// Stop finishes the stream, stops the sender loop, and closes the results
// channel. Safe to call more than once.
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	client := d.client
	active := d.active
	d.active = false
	d.mu.Unlock()

	if active && client != nil {
		client.Finish()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.senderWG.Wait()
	d.closeResults()

	if active {
		d.logger.Info().Msg("Transcription stream closed")
	}
	return nil
}

// EncodingForSampleRate picks stream options for raw PCM at the given rate.
func EncodingForSampleRate(rate int) StreamOptions {
	return StreamOptions{Encoding: "linear16", SampleRate: rate, Channels: 1}
}

// TelephonyStreamOptions matches 8 kHz G.711 mu-law media streams.
func TelephonyStreamOptions() StreamOptions {
	return StreamOptions{Encoding: "mulaw", SampleRate: 8000, Channels: 1}
}

var _ Client = (*DeepgramClient)(nil)
