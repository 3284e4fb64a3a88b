package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSubscriptionClosed is returned by Subscriber.Next after the subscriber
// has been closed. No further delivery is attempted past this point.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Bus is an in-memory publish/subscribe fan-out. Each subscriber owns an
// unbounded delivery queue, so a slow consumer never blocks the publisher or
// other subscribers. There is no replay: a subscriber only sees events
// published after it attached.
type Bus struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscriber)}
}

// Publish delivers the event to every currently registered subscriber. It
// never blocks on subscriber consumption. The bus lock is held across the
// fan-out so concurrent publishers cannot interleave: every subscriber sees
// the same total order of events. push only appends and signals a buffered
// channel, so the critical section never waits on a consumer.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.push(ev)
	}
}

// Subscribe registers a new subscriber. Events published from this point on
// are queued until consumed via Next. The caller must Close the subscriber
// when done.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		id:   uuid.NewString(),
		bus:  b,
		wake: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscriber is a transient per-connection queue of pending events. It lives
// from Subscribe until Close and is never persisted.
type Subscriber struct {
	id   string
	bus  *Bus
	wake chan struct{}

	mu     sync.Mutex
	queue  []Event
	closed bool
}

func (s *Subscriber) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available and returns it. Events arrive in
// publish order, each exactly once. It returns ErrSubscriptionClosed after
// Close, or the context error if ctx is done first.
func (s *Subscriber) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.wake:
		}
	}
}

// Close deregisters the subscriber and discards its queue. Safe to call
// multiple times.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.bus.unsubscribe(s.id)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
