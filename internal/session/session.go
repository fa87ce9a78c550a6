package session

import (
	"context"
	"errors"
	"time"

	"github.com/plusone-ai/plusone/internal/stt"
)

// State is the session lifecycle phase.
type State string

const (
	// StateIdle means no session is active; Start is accepted.
	StateIdle State = "idle"
	// StateRecording means audio is flowing and entries are being appended.
	StateRecording State = "recording"
	// StateProcessing means Stop is draining and exporting artifacts.
	StateProcessing State = "processing"
)

// ErrAlreadyRecording rejects Start while a session is recording or still
// processing its shutdown.
var ErrAlreadyRecording = errors.New("session already recording")

// ErrNotRecording rejects Stop when no session is recording.
var ErrNotRecording = errors.New("no active recording")

// Session is a point-in-time snapshot of the controller state.
type Session struct {
	ID        string    `json:"id,omitempty"`
	State     State     `json:"state"`
	Topic     string    `json:"topic,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Entries   int       `json:"entries"`
	LastError string    `json:"last_error,omitempty"`
}

// StopResult summarizes a completed session.
type StopResult struct {
	CaptionPath string `json:"caption_path,omitempty"`
	Entries     int    `json:"entries"`
}

// AudioSource supplies raw audio chunks in the wire format described by
// StreamOptions. Local capture yields linear PCM; telephony yields mulaw.
type AudioSource interface {
	// Open claims the device or stream.
	Open(ctx context.Context) error

	// Chunks delivers audio. The channel closes after Close.
	Chunks() <-chan []byte

	// StreamOptions describes the chunk encoding for the transcriber.
	StreamOptions() stt.StreamOptions

	// Close releases the device or stream.
	Close() error
}

// SourceFactory builds the audio source for a new session.
type SourceFactory func() AudioSource

// STTFactory builds a transcription client for the session's audio format.
type STTFactory func(opts stt.StreamOptions) stt.Client
