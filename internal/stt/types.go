package stt

import (
	"context"
	"errors"
)

// ErrConnectionFailed reports that the transcription service could not be
// reached when opening a session.
var ErrConnectionFailed = errors.New("stt connection failed")

// ErrConnectionLost reports that an established transcription stream dropped
// and reconnection attempts were exhausted.
var ErrConnectionLost = errors.New("stt connection lost")

// Result is one transcription result, interim or final. Times are
// milliseconds since the start of the audio stream.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
	StartMS    int64
	EndMS      int64
	Speaker    *int
}

// Client streams audio to a transcription service and emits results.
type Client interface {
	// Start opens the streaming session.
	Start(ctx context.Context) error

	// SendAudio enqueues an audio chunk. It never blocks; when the send
	// queue is full the oldest queued chunk is dropped to keep latency
	// bounded.
	SendAudio(chunk []byte)

	// Results delivers interim and final transcription results.
	Results() <-chan Result

	// Fatal is signaled once when the stream is lost beyond recovery.
	Fatal() <-chan error

	// Stop flushes and closes the session.
	Stop() error
}
