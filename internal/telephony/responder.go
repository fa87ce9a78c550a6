package telephony

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/audio"
	"github.com/plusone-ai/plusone/internal/tts"
)

const (
	// Media streams carry 8 kHz mulaw; one 160-byte chunk is 20 ms.
	telephonySampleRate = 8000
	playbackChunkBytes  = 160
	playbackChunkPace   = 20 * time.Millisecond
)

// Responder speaks text into an active call. Synthesized PCM is downsampled
// to 8 kHz, mulaw-encoded, and paced into the media stream at real-time
// playback rate so Twilio's jitter buffer is never flooded.
type Responder struct {
	stream *MediaStream
	tts    tts.Client
	logger zerolog.Logger

	mu       sync.Mutex
	speaking bool
	cancel   context.CancelFunc
}

func NewResponder(stream *MediaStream, ttsClient tts.Client, logger zerolog.Logger) *Responder {
	return &Responder{
		stream: stream,
		tts:    ttsClient,
		logger: logger,
	}
}

// Speak synthesizes the text and plays it into the call. A second Speak
// while one is in progress is dropped; suggestions are advisory and must
// not be queued behind each other.
func (r *Responder) Speak(ctx context.Context, text string) {
	if !r.stream.IsConnected() {
		r.logger.Debug().Msg("Cannot speak, media stream not connected")
		return
	}

	r.mu.Lock()
	if r.speaking {
		r.mu.Unlock()
		r.logger.Debug().Msg("Already speaking, dropping utterance")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.speaking = true
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.speaking = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	pcm, err := r.tts.Synthesize(ctx, text)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Speech synthesis failed")
		return
	}

	mulaw, err := audio.PCMToMulaw(pcm, r.tts.SampleRate(), telephonySampleRate)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to encode speech for playback")
		return
	}

	r.playPaced(ctx, mulaw)
}

// playPaced sends the audio in 20 ms chunks at real-time rate.
func (r *Responder) playPaced(ctx context.Context, mulaw []byte) {
	ticker := time.NewTicker(playbackChunkPace)
	defer ticker.Stop()

	for offset := 0; offset < len(mulaw); offset += playbackChunkBytes {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		end := offset + playbackChunkBytes
		if end > len(mulaw) {
			end = len(mulaw)
		}
		if err := r.stream.SendAudio(mulaw[offset:end]); err != nil {
			r.logger.Warn().Err(err).Msg("Playback send failed, stopping")
			return
		}
	}
}

// IsSpeaking reports whether playback is in progress.
func (r *Responder) IsSpeaking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaking
}

// Stop interrupts any in-progress speech and clears Twilio's queued audio.
func (r *Responder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := r.stream.ClearAudio(); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to clear queued audio")
	}
}
