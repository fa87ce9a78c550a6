package telephony

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/config"
)

func TestBuildTwiMLWithoutPasscode(t *testing.T) {
	twiml := BuildTwiML("123 456 7890", "wss://example.com/streams/telephony", "")

	if !strings.Contains(twiml, `<Play digits="wwwwwwww1234567890#wwwwwwwwww#"/>`) {
		t.Errorf("missing dial sequence in:\n%s", twiml)
	}
	if !strings.Contains(twiml, `<Stream url="wss://example.com/streams/telephony" />`) {
		t.Errorf("missing stream element in:\n%s", twiml)
	}
	if strings.Count(twiml, "<Play") != 1 {
		t.Error("passcode-free flow should have a single Play element")
	}
}

func TestBuildTwiMLWithPasscode(t *testing.T) {
	twiml := BuildTwiML("123-456-7890", "wss://example.com/ws", "99 88")

	if !strings.Contains(twiml, `<Play digits="wwwwwwww1234567890#"/>`) {
		t.Errorf("missing meeting ID sequence in:\n%s", twiml)
	}
	if !strings.Contains(twiml, `<Play digits="9988#"/>`) {
		t.Errorf("missing passcode sequence in:\n%s", twiml)
	}
	// Trailing bare "#" skips the participant ID prompt.
	if !strings.Contains(twiml, `<Play digits="#"/>`) {
		t.Errorf("missing participant-id skip in:\n%s", twiml)
	}
}

func newTestStream() *MediaStream {
	cfg := &config.Config{FrameQueueSize: 4}
	return NewMediaStream(cfg, zerolog.Nop())
}

func TestHandleMediaDecodesInbound(t *testing.T) {
	m := newTestStream()
	raw := []byte{0x7f, 0x80, 0x01}

	m.handleMedia(&TwilioMedia{
		Track:   "inbound",
		Payload: base64.StdEncoding.EncodeToString(raw),
	})

	select {
	case got := <-m.Audio():
		if string(got) != string(raw) {
			t.Errorf("decoded chunk = %v, want %v", got, raw)
		}
	default:
		t.Fatal("no chunk queued")
	}
}

func TestHandleMediaSkipsOutboundTrack(t *testing.T) {
	m := newTestStream()
	m.handleMedia(&TwilioMedia{
		Track:   "outbound",
		Payload: base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
	})
	if len(m.audio) != 0 {
		t.Error("outbound track audio must not be queued")
	}
}

func TestHandleMediaIgnoresBadPayload(t *testing.T) {
	m := newTestStream()
	m.handleMedia(&TwilioMedia{Payload: "not-base64!!!"})
	m.handleMedia(&TwilioMedia{Payload: ""})
	if len(m.audio) != 0 {
		t.Error("invalid payloads must not be queued")
	}
}

func TestHandleMediaDropsWhenQueueFull(t *testing.T) {
	m := newTestStream()
	payload := base64.StdEncoding.EncodeToString([]byte{9})

	for i := 0; i < 10; i++ {
		m.handleMedia(&TwilioMedia{Payload: payload})
	}
	if got := len(m.audio); got != 4 {
		t.Errorf("queued chunks = %d, want 4 (rest dropped)", got)
	}
}

func TestSendAudioRequiresConnection(t *testing.T) {
	m := newTestStream()
	if err := m.SendAudio([]byte{1}); err == nil {
		t.Error("SendAudio without a connection should fail")
	}
	if m.IsConnected() {
		t.Error("fresh stream should not report connected")
	}
}
