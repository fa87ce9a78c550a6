package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/reasoning"
	"github.com/plusone-ai/plusone/internal/transcript"
)

// Event types pushed to transcript observers. The values are the wire
// protocol; observers switch on them.
const (
	EventEntry      = "transcript"
	EventSuggestion = "suggestion"
	EventAnswer     = "answer"
	EventStatus     = "status"
)

// Event is one message fanned out to observers.
type Event struct {
	Type       string                `json:"type"`
	Entry      *transcript.Entry     `json:"entry,omitempty"`
	Suggestion *reasoning.Suggestion `json:"suggestion,omitempty"`
	Answer     string                `json:"answer,omitempty"`
	Status     string                `json:"status,omitempty"`
}

// Broadcaster fans events out to a dynamic set of observers. Publishing
// never blocks: an observer whose buffer is full loses the event. Observer
// failures are isolated; one slow or dead subscriber never affects the
// ingestion path or other subscribers.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	bufSize int
	closed  bool
	logger  zerolog.Logger
}

func New(bufSize int, logger zerolog.Logger) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broadcaster{
		subs:    make(map[int]chan Event),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe registers an observer and returns its event channel plus an
// unsubscribe function. The channel is closed on unsubscribe or on
// broadcaster Close.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufSize)
	b.subs[id] = ch
	observability.SubscriberConnected()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
				observability.SubscriberDisconnected()
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug().Int("subscriber", id).Str("event", ev.Type).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the number of active observers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriber channels. Further Publish calls are no-ops
// and further Subscribe calls return a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		observability.SubscriberDisconnected()
	}
}
