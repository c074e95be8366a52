package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the scheduling engine.
const (
	TypeReminderArmed          = "reminder.armed"
	TypeReminderDropped        = "reminder.dropped"
	TypeReminderFired          = "reminder.fired"
	TypeReminderDeliveryFailed = "reminder.delivery_failed"
	TypeReminderCancelled      = "reminder.cancelled"
)

// Event is an in-memory signal used to decouple components.
//
// Publish never blocks; subscribers get a buffered channel and a slow
// subscriber drops events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// ReminderEvent is the Data payload for reminder.* events.
type ReminderEvent struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	NextRun time.Time `json:"next_run,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop returns a bus that discards everything.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}
func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
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
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
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
			// Publish holds the read lock while sending, so closing under
			// the write lock cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
