package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/audio"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
)

const (
	silenceRMS       = 10.0 // decoded mu-law silence sits at zero
	silenceWarnAfter = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Twilio does not send a browser Origin header.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// TwilioMessage is one message on a Twilio Media Streams websocket.
type TwilioMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Media     *TwilioMedia `json:"media,omitempty"`
	Start     *TwilioStart `json:"start,omitempty"`
	Stop      *TwilioStop  `json:"stop,omitempty"`
}

type TwilioMedia struct {
	Track     string `json:"track,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 mulaw
}

type TwilioStart struct {
	AccountSid string   `json:"accountSid"`
	CallSid    string   `json:"callSid"`
	StreamSid  string   `json:"streamSid"`
	Tracks     []string `json:"tracks,omitempty"`
}

type TwilioStop struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// outboundMedia is the message shape for injecting audio into the call.
type outboundMedia struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// MediaStream accepts one Twilio Media Streams connection and exposes the
// call's inbound audio as a bounded channel of decoded mulaw chunks. With
// both tracks streamed, only the inbound track is forwarded; the outbound
// track is our own injected audio and must not be transcribed.
type MediaStream struct {
	cfg    *config.Config
	logger zerolog.Logger

	audio chan []byte

	mu        sync.RWMutex
	conn      *websocket.Conn
	streamSid string
	callSid   string

	connected chan struct{}
	stopped   chan struct{}

	connectOnce sync.Once
	stopOnce    sync.Once

	// silence is touched only by the read loop.
	silence audio.SilenceTracker

	// writeMu serializes websocket writes; gorilla allows one writer.
	writeMu sync.Mutex
}

func NewMediaStream(cfg *config.Config, logger zerolog.Logger) *MediaStream {
	return &MediaStream{
		cfg:       cfg,
		logger:    logger,
		audio:     make(chan []byte, cfg.FrameQueueSize),
		connected: make(chan struct{}),
		stopped:   make(chan struct{}),
		silence:   audio.SilenceTracker{Threshold: silenceRMS, After: silenceWarnAfter},
	}
}

// Handler upgrades the request and runs the read loop until the stream
// stops or the peer disconnects.
func (m *MediaStream) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to upgrade media stream connection")
			return
		}
		defer conn.Close()

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()

		m.logger.Info().Msg("Media stream connection established")
		m.readLoop(conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.signalStopped()
	}
}

func (m *MediaStream) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn().Err(err).Msg("Media stream read error")
			}
			return
		}

		var msg TwilioMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.logger.Error().Err(err).Msg("Failed to parse media stream message")
			continue
		}

		switch msg.Event {
		case "connected":
			m.logger.Info().Msg("Media stream connected")

		case "start":
			m.mu.Lock()
			m.streamSid = msg.StreamSid
			if msg.Start != nil {
				m.callSid = msg.Start.CallSid
				if m.streamSid == "" {
					m.streamSid = msg.Start.StreamSid
				}
			}
			m.mu.Unlock()
			m.logger.Info().
				Str("stream_sid", msg.StreamSid).
				Msg("Media stream started")
			m.connectOnce.Do(func() { close(m.connected) })

		case "media":
			if msg.Media != nil {
				m.handleMedia(msg.Media)
			}

		case "stop":
			m.logger.Info().Msg("Media stream stopped")
			return

		default:
			m.logger.Debug().Str("event", msg.Event).Msg("Unknown media stream event")
		}
	}
}

// handleMedia decodes one inbound audio chunk and queues it. A full queue
// drops the chunk; real-time audio must never back up into the websocket
// read loop.
func (m *MediaStream) handleMedia(media *TwilioMedia) {
	if media.Track == "outbound" {
		return
	}
	if media.Payload == "" {
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to decode media payload")
		return
	}
	observability.RecordAudioBytes("in", int64(len(chunk)))
	m.observeLevel(chunk)

	select {
	case m.audio <- chunk:
	default:
		observability.RecordFrameDropped("telephony")
	}
}

// observeLevel warns when the call has carried nothing but silence for a
// while, which usually means the conference muted us into a waiting room.
func (m *MediaStream) observeLevel(mulaw []byte) {
	pcm, err := audio.MulawToPCM(mulaw)
	if err != nil {
		return
	}
	samples, err := audio.SamplesFromBytes(pcm)
	if err != nil {
		return
	}
	if m.silence.Observe(audio.RMS(samples), time.Now()) {
		m.logger.Warn().Msg("Inbound call audio has been silent, the call may be on hold or muted")
	}
}

// Audio delivers decoded inbound mulaw chunks.
func (m *MediaStream) Audio() <-chan []byte {
	return m.audio
}

// SendAudio injects a mulaw chunk into the call.
func (m *MediaStream) SendAudio(chunk []byte) error {
	m.mu.RLock()
	conn := m.conn
	streamSid := m.streamSid
	m.mu.RUnlock()

	if conn == nil || streamSid == "" {
		return fmt.Errorf("media stream not connected")
	}

	msg := outboundMedia{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(chunk)},
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	observability.RecordAudioBytes("out", int64(len(chunk)))
	return nil
}

// ClearAudio discards any audio Twilio has queued for playback.
func (m *MediaStream) ClearAudio() error {
	m.mu.RLock()
	conn := m.conn
	streamSid := m.streamSid
	m.mu.RUnlock()

	if conn == nil || streamSid == "" {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(outboundMedia{Event: "clear", StreamSid: streamSid})
}

// WaitForConnection blocks until the stream's start event arrives or the
// context expires. Dial-in calls take a while to navigate the conference
// IVR before media begins flowing.
func (m *MediaStream) WaitForConnection(ctx context.Context) error {
	select {
	case <-m.connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("media stream connection: %w", ctx.Err())
	}
}

// Stopped is closed when the stream ends.
func (m *MediaStream) Stopped() <-chan struct{} {
	return m.stopped
}

func (m *MediaStream) signalStopped() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

func (m *MediaStream) StreamSid() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streamSid
}

func (m *MediaStream) CallSid() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callSid
}

// IsConnected reports whether a started stream is attached.
func (m *MediaStream) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return false
	}
	select {
	case <-m.connected:
		return true
	default:
		return false
	}
}
