// Package eventbus decouples the cycle engine from observers (metrics,
// a future front-end) with a small in-memory fanout bus.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by the cycle engine.
const (
	TopicCycleDone  = "cycle.done"
	TopicNotifySent = "notify.sent"
	TopicFetchError = "fetch.error"
)

// CycleDone is the Data payload for TopicCycleDone.
type CycleDone struct {
	Traders   int
	Invasions int
	Fissures  int
	Cycles    int
	Delivered int
	Purged    int
	Duration  time.Duration
	Err       bool
}

// NotifySent is the Data payload for TopicNotifySent.
type NotifySent struct {
	Category string
	OK       bool
}

// FetchFailed is the Data payload for TopicFetchError.
type FetchFailed struct {
	Path string
	Kind string
}

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no background
// goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery; a slow subscriber drops. If the channel
		// closes concurrently, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
