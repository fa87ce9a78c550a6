package session

import (
	"context"
	"sync"

	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/frames"
	"github.com/plusone-ai/plusone/internal/stt"
	"github.com/plusone-ai/plusone/internal/telephony"
)

// meetingAudioSource adapts a frame source to the session pipeline. Local
// capture produces linear PCM at the configured sample rate.
type meetingAudioSource struct {
	source frames.Source
	opts   stt.StreamOptions
	chunks chan []byte
	wg     sync.WaitGroup
}

// NewMeetingAudioSource wraps local capture for a meeting session.
func NewMeetingAudioSource(source frames.Source, cfg *config.Config) AudioSource {
	return &meetingAudioSource{
		source: source,
		opts:   stt.EncodingForSampleRate(cfg.SampleRate),
		chunks: make(chan []byte, cfg.FrameQueueSize),
	}
}

func (m *meetingAudioSource) Open(ctx context.Context) error {
	if err := m.source.Open(ctx); err != nil {
		return err
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(m.chunks)
		for frame := range m.source.Frames() {
			m.chunks <- frame.PCM
		}
	}()
	return nil
}

func (m *meetingAudioSource) Chunks() <-chan []byte {
	return m.chunks
}

func (m *meetingAudioSource) StreamOptions() stt.StreamOptions {
	return m.opts
}

func (m *meetingAudioSource) Close() error {
	err := m.source.Close()
	m.wg.Wait()
	return err
}

// telephonyAudioSource adapts an attached media stream. The stream server
// outlives sessions; Close detaches from it without shutting it down.
type telephonyAudioSource struct {
	stream *telephony.MediaStream
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewTelephonyAudioSource wraps an inbound media stream for a call session.
func NewTelephonyAudioSource(stream *telephony.MediaStream, cfg *config.Config) AudioSource {
	return &telephonyAudioSource{
		stream: stream,
		chunks: make(chan []byte, cfg.FrameQueueSize),
		done:   make(chan struct{}),
	}
}

// Open blocks until the call's media stream has started. Dial-in calls
// spend a while in the conference IVR first, so callers pass a context with
// a generous deadline.
func (t *telephonyAudioSource) Open(ctx context.Context) error {
	if err := t.stream.WaitForConnection(ctx); err != nil {
		return err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(t.chunks)
		for {
			select {
			case <-t.done:
				return
			case <-t.stream.Stopped():
				return
			case chunk := <-t.stream.Audio():
				select {
				case t.chunks <- chunk:
				case <-t.done:
					return
				}
			}
		}
	}()
	return nil
}

func (t *telephonyAudioSource) Chunks() <-chan []byte {
	return t.chunks
}

func (t *telephonyAudioSource) StreamOptions() stt.StreamOptions {
	return stt.TelephonyStreamOptions()
}

func (t *telephonyAudioSource) Close() error {
	t.once.Do(func() { close(t.done) })
	t.wg.Wait()
	return nil
}
