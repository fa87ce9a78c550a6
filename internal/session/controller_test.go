package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/broadcast"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/frames"
	"github.com/plusone-ai/plusone/internal/stt"
)

type fakeSource struct {
	chunks  chan []byte
	openErr error

	mu     sync.Mutex
	opened bool
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan []byte, 16)}
}

func (f *fakeSource) Open(ctx context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.opened = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Chunks() <-chan []byte { return f.chunks }

func (f *fakeSource) StreamOptions() stt.StreamOptions {
	return stt.EncodingForSampleRate(16000)
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.chunks)
	}
	return nil
}

type fakeSTT struct {
	results  chan stt.Result
	fatal    chan error
	startErr error

	mu      sync.Mutex
	sent    [][]byte
	stopped bool
}

func newFakeSTT() *fakeSTT {
	return &fakeSTT{
		results: make(chan stt.Result, 16),
		fatal:   make(chan error, 1),
	}
}

func (f *fakeSTT) Start(ctx context.Context) error { return f.startErr }

func (f *fakeSTT) SendAudio(chunk []byte) {
	f.mu.Lock()
	f.sent = append(f.sent, chunk)
	f.mu.Unlock()
}

func (f *fakeSTT) Results() <-chan stt.Result { return f.results }
func (f *fakeSTT) Fatal() <-chan error        { return f.fatal }

func (f *fakeSTT) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.results)
	}
	return nil
}

func (f *fakeSTT) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testHarness struct {
	ctl    *Controller
	cfg    *config.Config
	bus    *broadcast.Broadcaster
	source *fakeSource
	sttC   *fakeSTT
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		TranscriptFilePath: filepath.Join(dir, "transcript-live.txt"),
		CaptionOutputDir:   filepath.Join(dir, "captions"),
		StopDrainTimeoutMS: 2000,
		FrameQueueSize:     16,
	}
	h := &testHarness{
		cfg:    cfg,
		bus:    broadcast.New(16, zerolog.Nop()),
		source: newFakeSource(),
		sttC:   newFakeSTT(),
	}
	h.ctl = NewController(cfg, h.bus,
		nil, nil,
		func() AudioSource { return h.source },
		func(opts stt.StreamOptions) stt.Client { return h.sttC },
		zerolog.Nop())
	t.Cleanup(h.bus.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if got := h.ctl.Status().State; got != StateIdle {
		t.Fatalf("initial state = %q, want idle", got)
	}

	events, unsub := h.bus.Subscribe()
	defer unsub()

	st, err := h.ctl.Start(ctx, "weekly sync")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateRecording || st.Topic != "weekly sync" || st.ID == "" {
		t.Errorf("start status = %+v", st)
	}

	// A second start is rejected while recording.
	if _, err := h.ctl.Start(ctx, "other"); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second start error = %v, want ErrAlreadyRecording", err)
	}

	// Audio flows from the source to the transcriber.
	h.source.chunks <- []byte{1, 2, 3}
	waitFor(t, "audio forwarded", func() bool { return h.sttC.sentCount() == 1 })

	// Interim results never become entries; the final one does.
	speaker := 0
	for i := 0; i < 3; i++ {
		h.sttC.results <- stt.Result{Text: "hello", IsFinal: false}
	}
	h.sttC.results <- stt.Result{
		Text: "hello team", IsFinal: true,
		StartMS: 1000, EndMS: 2400, Speaker: &speaker,
	}

	waitFor(t, "entry appended", func() bool { return h.ctl.Status().Entries == 1 })

	var entryEvents int
	drainEvents := func() {
		for {
			select {
			case ev := <-events:
				if ev.Type == broadcast.EventEntry {
					entryEvents++
					if ev.Entry.Text != "hello team" || ev.Entry.StartMS != 1000 {
						t.Errorf("entry event = %+v", ev.Entry)
					}
				}
			default:
				return
			}
		}
	}
	waitFor(t, "entry event", func() bool { drainEvents(); return entryEvents >= 1 })
	if entryEvents != 1 {
		t.Errorf("entry events = %d, want 1 (interims are not broadcast)", entryEvents)
	}

	live, err := os.ReadFile(h.cfg.TranscriptFilePath)
	if err != nil {
		t.Fatal(err)
	}
	if want := "[00:00:01] Speaker 0: hello team\n"; string(live) != want {
		t.Errorf("live transcript = %q, want %q", live, want)
	}

	result, err := h.ctl.Stop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Entries != 1 {
		t.Errorf("stop entries = %d, want 1", result.Entries)
	}
	if result.CaptionPath == "" {
		t.Fatal("caption path empty")
	}

	vtt, err := os.ReadFile(result.CaptionPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(vtt)
	if !strings.HasPrefix(content, "WEBVTT") {
		t.Errorf("caption missing header: %q", content)
	}
	if !strings.Contains(content, "<v Speaker 0>hello team") {
		t.Errorf("caption missing cue: %q", content)
	}
	if !strings.Contains(content, "00:00:01.000 --> 00:00:02.400") {
		t.Errorf("caption missing timing: %q", content)
	}

	st = h.ctl.Status()
	if st.State != StateIdle {
		t.Errorf("state after stop = %q, want idle", st.State)
	}
	if st.Entries != 1 {
		t.Errorf("entries after stop = %d, want 1 (retained)", st.Entries)
	}

	if _, err := h.ctl.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second stop error = %v, want ErrNotRecording", err)
	}

	if !h.source.closed {
		t.Error("source not closed")
	}
	if !h.sttC.stopped {
		t.Error("stt client not stopped")
	}
}

func TestStartFailsWhenDeviceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.source.openErr = frames.ErrDeviceUnavailable

	_, err := h.ctl.Start(context.Background(), "t")
	if !errors.Is(err, frames.ErrDeviceUnavailable) {
		t.Fatalf("start error = %v, want ErrDeviceUnavailable", err)
	}
	if got := h.ctl.Status().State; got != StateIdle {
		t.Errorf("state = %q, want idle after failed start", got)
	}
}

func TestStartFailsWhenSTTUnreachable(t *testing.T) {
	h := newHarness(t)
	h.sttC.startErr = stt.ErrConnectionFailed

	_, err := h.ctl.Start(context.Background(), "t")
	if !errors.Is(err, stt.ErrConnectionFailed) {
		t.Fatalf("start error = %v, want ErrConnectionFailed", err)
	}
	if !h.source.closed {
		t.Error("source must be unwound when transcription cannot start")
	}
	if got := h.ctl.Status().State; got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestStartFailsWhenLiveFileUnwritable(t *testing.T) {
	h := newHarness(t)
	// Point the live transcript under a regular file so the directory
	// cannot be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.cfg.TranscriptFilePath = filepath.Join(blocker, "nested", "live.txt")

	if _, err := h.ctl.Start(context.Background(), "t"); err == nil {
		t.Fatal("start should fail when the live transcript cannot be created")
	}
	if h.source.opened {
		t.Error("source must not be opened when the live file fails first")
	}
	if got := h.ctl.Status().State; got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestOutOfOrderFinalIsDroppedNotFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.ctl.Start(ctx, "t"); err != nil {
		t.Fatal(err)
	}

	h.sttC.results <- stt.Result{Text: "second", IsFinal: true, StartMS: 5000, EndMS: 6000}
	waitFor(t, "first entry", func() bool { return h.ctl.Status().Entries == 1 })

	h.sttC.results <- stt.Result{Text: "stale", IsFinal: true, StartMS: 1000, EndMS: 2000}
	h.sttC.results <- stt.Result{Text: "third", IsFinal: true, StartMS: 7000, EndMS: 8000}
	waitFor(t, "third entry", func() bool { return h.ctl.Status().Entries == 2 })

	if got := h.ctl.Status().State; got != StateRecording {
		t.Errorf("state = %q, want recording (out-of-order is not fatal)", got)
	}

	if _, err := h.ctl.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	live, err := os.ReadFile(h.cfg.TranscriptFilePath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(live), "stale") {
		t.Error("out-of-order entry must not reach the live transcript")
	}
}

func TestCaptionFailureRetainsEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Make the caption directory path collide with a regular file.
	blocked := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.cfg.CaptionOutputDir = blocked

	if _, err := h.ctl.Start(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	h.sttC.results <- stt.Result{Text: "kept", IsFinal: true, StartMS: 100, EndMS: 900}
	waitFor(t, "entry", func() bool { return h.ctl.Status().Entries == 1 })

	result, err := h.ctl.Stop(ctx)
	if err == nil {
		t.Fatal("stop should surface the caption write failure")
	}
	if result.Entries != 1 {
		t.Errorf("result entries = %d, want 1", result.Entries)
	}

	st := h.ctl.Status()
	if st.State != StateIdle {
		t.Errorf("state = %q, want idle even after caption failure", st.State)
	}
	if st.Entries != 1 {
		t.Errorf("entries = %d, want 1 retained", st.Entries)
	}
	if st.LastError == "" {
		t.Error("status should report the caption failure")
	}
}

func TestSTTFatalAbortsWhenConfigured(t *testing.T) {
	h := newHarness(t)
	h.cfg.AbortOnSTTFailure = true
	ctx := context.Background()

	if _, err := h.ctl.Start(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	h.sttC.fatal <- stt.ErrConnectionLost

	waitFor(t, "session abort", func() bool { return h.ctl.Status().State == StateIdle })
	if got := h.ctl.Status().LastError; !strings.Contains(got, "connection lost") {
		t.Errorf("last error = %q, want connection lost", got)
	}
}

func TestSTTFatalDegradesWhenNotConfigured(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.ctl.Start(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	h.sttC.fatal <- stt.ErrConnectionLost

	time.Sleep(50 * time.Millisecond)
	if got := h.ctl.Status().State; got != StateRecording {
		t.Errorf("state = %q, want recording (degraded, not aborted)", got)
	}
	if _, err := h.ctl.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
