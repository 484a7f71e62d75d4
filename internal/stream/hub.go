// Package stream distributes simulation events from the owner loop to
// streaming connections.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrHubClosed is returned by Subscribe and Publish after Close.
var ErrHubClosed = errors.New("stream: hub closed")

// Mode selects how published events reach subscribers.
type Mode int

const (
	// Broadcast copies every event into every subscriber's own queue.
	Broadcast Mode = iota
	// Shared puts every event on one queue that all subscribers read, so
	// each event reaches exactly one of them.
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "broadcast"
}

// ParseMode maps the configuration names "broadcast" and "shared".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "broadcast":
		return Broadcast, nil
	case "shared":
		return Shared, nil
	}
	return 0, fmt.Errorf("stream: unknown fanout mode %q", s)
}

// Hub fans events out to subscribers. Publish never blocks: a full queue
// loses its oldest event.
type Hub struct {
	mode Mode
	size int
	log  *zap.Logger

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	shared chan Event
	nextID uint64
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub(mode Mode, queueSize int, log *zap.Logger) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	h := &Hub{
		mode: mode,
		size: queueSize,
		log:  log,
		subs: make(map[uint64]*Subscription),
	}
	if mode == Shared {
		h.shared = make(chan Event, queueSize)
	}
	return h
}

func (h *Hub) Mode() Mode { return h.mode }

// Subscription is one consumer's view of the hub.
type Subscription struct {
	ID  uint64
	hub *Hub
	ch  chan Event
}

// Events returns the receive side of the subscription. It is closed when
// the hub closes or the subscription is cancelled.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.ID]; !ok {
		return
	}
	delete(h.subs, s.ID)
	if h.mode == Broadcast {
		close(s.ch)
	}
}

// Subscribe registers a new consumer.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.nextID++
	sub := &Subscription{ID: h.nextID, hub: h}
	if h.mode == Shared {
		sub.ch = h.shared
	} else {
		sub.ch = make(chan Event, h.size)
	}
	h.subs[sub.ID] = sub
	return sub, nil
}

// Publish hands ev to the subscribers according to the hub mode.
func (h *Hub) Publish(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.published.Add(1)
	if h.mode == Shared {
		h.offer(h.shared, ev, 0)
		return nil
	}
	for id, sub := range h.subs {
		h.offer(sub.ch, ev, id)
	}
	return nil
}

// offer enqueues ev, evicting the oldest queued event when ch is full.
// Only the publisher sends on ch and it holds h.mu, so one eviction
// always makes room.
func (h *Hub) offer(ch chan Event, ev Event, sub uint64) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case old := <-ch:
		h.dropped.Add(1)
		h.log.Debug("stream queue full, dropped oldest event",
			zap.Uint64("subscriber", sub), zap.Stringer("kind", old.Kind))
	default:
	}
	select {
	case ch <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Close closes every subscriber queue. Consumers observe the closed channel
// and end their connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.mode == Shared {
		close(h.shared)
	} else {
		for _, sub := range h.subs {
			close(sub.ch)
		}
	}
	h.subs = make(map[uint64]*Subscription)
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Published returns the number of events accepted by Publish.
func (h *Hub) Published() uint64 { return h.published.Load() }

// Dropped returns the number of events evicted from full queues.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
