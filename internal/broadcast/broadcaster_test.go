package broadcast

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/transcript"
)

func TestEntryEventWireShape(t *testing.T) {
	entry := &transcript.Entry{StartMS: 1000, EndMS: 2400, Text: "hello team", IsFinal: true}
	payload, err := json.Marshal(Event{Type: EventEntry, Entry: entry})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(payload)
	if !strings.Contains(got, `"type":"transcript"`) {
		t.Errorf("wire event = %s, want type %q", got, "transcript")
	}
	if !strings.Contains(got, `"entry":{`) {
		t.Errorf("wire event = %s, want an entry object", got)
	}
	if strings.Contains(got, `"suggestion"`) {
		t.Errorf("wire event = %s, empty suggestion should be omitted", got)
	}
}

func newTestBroadcaster(bufSize int) *Broadcaster {
	return New(bufSize, zerolog.Nop())
}

func TestSubscribeReceivesEvents(t *testing.T) {
	b := newTestBroadcaster(4)
	defer b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	entry := &transcript.Entry{StartMS: 1000, EndMS: 2400, Text: "hello team"}
	b.Publish(Event{Type: EventEntry, Entry: entry})

	select {
	case ev := <-ch:
		if ev.Type != EventEntry {
			t.Errorf("event type = %q, want %q", ev.Type, EventEntry)
		}
		if ev.Entry == nil || ev.Entry.Text != "hello team" {
			t.Errorf("unexpected entry: %+v", ev.Entry)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	b := newTestBroadcaster(2)
	defer b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Never read from ch; publish more than the buffer holds.
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: EventStatus, Status: "recording"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if got := len(ch); got != 2 {
		t.Errorf("buffered events = %d, want 2 (rest dropped)", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newTestBroadcaster(4)
	defer b.Close()

	ch, unsub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d, want 1", b.SubscriberCount())
	}
	unsub()
	unsub() // idempotent

	if b.SubscriberCount() != 0 {
		t.Errorf("subscriber count after unsubscribe = %d, want 0", b.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := newTestBroadcaster(4)
	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Close()
	b.Close() // idempotent

	for _, ch := range []<-chan Event{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Error("channel should be closed after broadcaster Close")
		}
	}

	// Publish and Subscribe after Close must not panic.
	b.Publish(Event{Type: EventStatus})
	ch3, unsub := b.Subscribe()
	unsub()
	if _, ok := <-ch3; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
