// Package server implements the broadcast bus that fans chat traffic out to
// every live session.
package server

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned by Subscribe after CloseAll has shut the bus down.
var ErrBusClosed = errors.New("broadcast bus is closed")

// Bus is a one-to-many message distribution point. Every session holds the
// shared publish handle and a private Subscription. Delivery is best effort:
// each subscription buffers a bounded number of undelivered messages, and a
// subscriber that falls behind loses its oldest pending messages rather than
// stalling the publisher or its peers.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// Subscription is one subscriber's private, ordered view of everything
// published after the subscription was created.
type Subscription struct {
	bus     *Bus
	ch      chan string
	dropped atomic.Uint64
	once    sync.Once
}

// NewBus creates a Bus whose subscriptions buffer up to the given number of
// undelivered messages each. A non-positive buffer falls back to the default.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe attaches a new subscription to the bus. The subscription sees
// only messages published after this call returns; there is no history.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	s := &Subscription{
		bus: b,
		ch:  make(chan string, b.buffer),
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// Publish delivers the message to every subscription currently attached,
// including the publisher's own. It never blocks: a full subscription has its
// oldest pending message discarded to make room. Publishing on a closed bus
// is a no-op.
func (b *Bus) Publish(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		s.offer(message)
	}
}

// offer enqueues the message, evicting the oldest pending message if the
// buffer is full. Sends happen only under the bus lock, so the channel is
// never written to after Close.
func (s *Subscription) offer(message string) {
	for {
		select {
		case s.ch <- message:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// C returns the channel to receive published messages from. The channel is
// closed when the subscription is closed.
func (s *Subscription) C() <-chan string {
	return s.ch
}

// Dropped returns how many messages this subscription has lost to lag.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the bus and closes its channel.
// Close is idempotent and safe to call concurrently with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// CloseAll closes every open subscription and rejects future subscribers.
// Used during shutdown to unblock sessions waiting on their subscriptions.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
