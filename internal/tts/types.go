package tts

import "context"

// Client converts text to speech audio.
type Client interface {
	// Synthesize returns 16-bit mono PCM for the text at SampleRate.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SampleRate is the PCM sample rate Synthesize produces.
	SampleRate() int
}
