package frames

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable reports that an audio input device could not be
// opened. Session start fails cleanly on this; no partial session is left
// behind.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Frame is one fixed-duration chunk of 16-bit mono PCM.
type Frame struct {
	PCM        []byte
	CapturedAt time.Time
}

// Source produces audio frames for the ingestion pipeline. Implementations
// deliver frames on a bounded channel; when the consumer lags, frames are
// dropped and counted rather than buffered without limit.
type Source interface {
	// Open claims the underlying device or stream and starts producing
	// frames. An unusable device yields ErrDeviceUnavailable.
	Open(ctx context.Context) error

	// Frames delivers captured frames. The channel closes after Close.
	Frames() <-chan Frame

	// Close releases the device and stops frame production.
	Close() error
}
