package frames

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/audio"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
)

const (
	silenceRMS       = 10.0 // around the noise floor of a muted input
	silenceWarnAfter = 5 * time.Second
)

// MeetingSource captures local meeting audio: the default microphone plus,
// when present, a loopback device carrying the remote participants (for
// example a BlackHole virtual device fed by the conference app). The two
// streams are mixed into one mono PCM stream.
//
// A missing loopback device degrades to microphone-only capture with a
// warning; a missing microphone fails Open.
type MeetingSource struct {
	cfg    *config.Config
	logger zerolog.Logger

	malgoCtx *malgo.AllocatedContext
	mic      *malgo.Device
	loopback *malgo.Device

	micBuf  *audio.RingBuffer
	loopBuf *audio.RingBuffer

	frames  chan Frame
	done    chan struct{}
	wg      sync.WaitGroup
	silence audio.SilenceTracker // owned by pump

	mu     sync.Mutex
	opened bool
}

func NewMeetingSource(cfg *config.Config, logger zerolog.Logger) *MeetingSource {
	bufBytes := cfg.SampleRate * 2 // one second of 16-bit mono
	return &MeetingSource{
		cfg:     cfg,
		logger:  logger,
		micBuf:  audio.NewRingBuffer(bufBytes),
		loopBuf: audio.NewRingBuffer(bufBytes),
		frames:  make(chan Frame, cfg.FrameQueueSize),
		done:    make(chan struct{}),
		silence: audio.SilenceTracker{Threshold: silenceRMS, After: silenceWarnAfter},
	}
}

// Open claims the capture devices and starts the frame pump.
func (s *MeetingSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return fmt.Errorf("meeting source already open")
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("%w: audio context: %v", ErrDeviceUnavailable, err)
	}
	s.malgoCtx = malgoCtx

	mic, err := s.initCaptureDevice(nil, s.micBuf)
	if err != nil {
		s.teardownContext()
		return fmt.Errorf("%w: microphone: %v", ErrDeviceUnavailable, err)
	}
	s.mic = mic

	if loopbackID := s.findLoopbackDevice(); loopbackID != nil {
		loopback, err := s.initCaptureDevice(loopbackID, s.loopBuf)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Loopback device failed to open, capturing microphone only")
		} else {
			s.loopback = loopback
		}
	} else {
		s.logger.Warn().
			Str("match", s.cfg.LoopbackMatch).
			Msg("Loopback device not found, capturing microphone only")
	}

	if err := s.mic.Start(); err != nil {
		s.teardownDevices()
		s.teardownContext()
		return fmt.Errorf("%w: microphone start: %v", ErrDeviceUnavailable, err)
	}
	if s.loopback != nil {
		if err := s.loopback.Start(); err != nil {
			s.logger.Warn().Err(err).Msg("Loopback device failed to start, capturing microphone only")
			s.loopback.Uninit()
			s.loopback = nil
		}
	}

	s.opened = true
	s.wg.Add(1)
	go s.pump()

	s.logger.Info().
		Int("sample_rate", s.cfg.SampleRate).
		Int("chunk_ms", s.cfg.ChunkMillis).
		Bool("loopback", s.loopback != nil).
		Msg("Meeting capture started")
	return nil
}

// initCaptureDevice opens one capture device. A nil id means the system
// default.
func (s *MeetingSource) initCaptureDevice(id *malgo.DeviceID, buf *audio.RingBuffer) (*malgo.Device, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20
	if id != nil {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			buf.Write(input)
		},
	}
	return malgo.InitDevice(s.malgoCtx.Context, deviceConfig, callbacks)
}

// findLoopbackDevice looks for a capture device whose name contains the
// configured substring.
func (s *MeetingSource) findLoopbackDevice() *malgo.DeviceID {
	if s.cfg.LoopbackMatch == "" {
		return nil
	}
	infos, err := s.malgoCtx.Devices(malgo.Capture)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to enumerate capture devices")
		return nil
	}
	match := strings.ToLower(s.cfg.LoopbackMatch)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), match) {
			id := infos[i].ID
			return &id
		}
	}
	return nil
}

// pump assembles fixed-duration frames from the device ring buffers.
func (s *MeetingSource) pump() {
	defer s.wg.Done()

	chunkBytes := s.cfg.SampleRate * s.cfg.ChunkMillis / 1000 * 2
	ticker := time.NewTicker(time.Duration(s.cfg.ChunkMillis) * time.Millisecond)
	defer ticker.Stop()

	micChunk := make([]byte, chunkBytes)
	loopChunk := make([]byte, chunkBytes)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		micN := s.micBuf.Read(micChunk)
		loopN := 0
		if s.loopback != nil {
			loopN = s.loopBuf.Read(loopChunk)
		}
		if micN == 0 && loopN == 0 {
			continue
		}

		mixed := s.mixChunk(micChunk[:micN], loopChunk[:loopN])
		if s.silence.Observe(audio.RMS(mixed), time.Now()) {
			s.logger.Warn().Msg("Capture has been silent, check input devices and gains")
		}

		pcm := audio.BytesFromSamples(mixed)
		observability.RecordAudioBytes("capture", int64(len(pcm)))

		select {
		case s.frames <- Frame{PCM: pcm, CapturedAt: time.Now()}:
		default:
			observability.RecordFrameDropped("capture")
		}
	}
}

// mixChunk combines the mic and loopback chunks with their configured gains.
func (s *MeetingSource) mixChunk(mic, loop []byte) []int16 {
	micSamples, _ := audio.SamplesFromBytes(mic)
	if len(loop) == 0 {
		return audio.ApplyGain(micSamples, s.cfg.MicGain)
	}
	loopSamples, _ := audio.SamplesFromBytes(loop)
	return audio.Mix(micSamples, loopSamples, s.cfg.MicGain, s.cfg.LoopbackGain)
}

func (s *MeetingSource) Frames() <-chan Frame {
	return s.frames
}

// Close stops the devices and the pump, then closes the frame channel.
func (s *MeetingSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false

	close(s.done)
	s.wg.Wait()

	s.teardownDevices()
	s.teardownContext()
	close(s.frames)

	s.logger.Info().Msg("Meeting capture stopped")
	return nil
}

func (s *MeetingSource) teardownDevices() {
	if s.mic != nil {
		s.mic.Uninit()
		s.mic = nil
	}
	if s.loopback != nil {
		s.loopback.Uninit()
		s.loopback = nil
	}
}

func (s *MeetingSource) teardownContext() {
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
		s.malgoCtx.Free()
		s.malgoCtx = nil
	}
}

var _ Source = (*MeetingSource)(nil)
