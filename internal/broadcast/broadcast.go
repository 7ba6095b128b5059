// Package broadcast implements a bounded, per-subscriber fan-out bus used to
// notify fetch subscribers of newly produced records. The standard library
// has no multi-subscriber broadcast channel — channels are single-consumer —
// so each subscriber gets its own bounded buffer, with the bus fanning sends
// out to all of them.
package broadcast

import "sync"

// Capacity is the fixed buffer size every subscriber's channel uses.
const Capacity = 8

// Message is one broadcast item: a produced record identified by its
// partition.
type Message struct {
	PartitionID uint64
	Offset      uint64
	Payload     any
}

// Bus is a single-producer, multi-consumer bounded broadcast point. Sends
// never block; a send into a subscriber whose buffer is full drops that
// subscriber's oldest unread message and marks it Lagged.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Send publishes msg to every currently subscribed receiver. Dropped
// receivers (those that never call Recv again) do not fail the send.
func (b *Bus) Send(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.deliver(msg)
	}
}

// Close marks the bus closed and wakes every subscriber's pending Recv with
// ok == false.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.closed)
	}
}

// Subscriber is one receiver bound to a Bus, with its own fixed-capacity
// buffer of undelivered messages.
type Subscriber struct {
	bus    *Bus
	ch     chan Message
	closed chan struct{}

	mu     sync.Mutex
	lagged bool
}

// Subscribe returns a new receiver bound to the bus, with a buffer capacity
// fixed at Capacity.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		bus:    b,
		ch:     make(chan Message, Capacity),
		closed: make(chan struct{}),
	}
	if b.closed {
		close(sub.closed)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// deliver performs a non-blocking send into sub's buffer. If the buffer is
// full, the oldest unread message is dropped to make room and the
// subscriber is marked lagged, so its next Recv reports a Lagged signal
// before resuming normal delivery.
func (sub *Subscriber) deliver(msg Message) {
	select {
	case sub.ch <- msg:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}

	sub.mu.Lock()
	sub.lagged = true
	sub.mu.Unlock()

	select {
	case sub.ch <- msg:
	default:
	}
}

// Recv blocks until a message is available, the bus closes, or stop fires.
// ok is false iff the bus closed with nothing left buffered, or stop
// fired first. lagged is true iff this subscriber dropped at least one
// message since its last Recv; a lagged receive is not a terminal
// condition, callers should log it and keep consuming.
func (sub *Subscriber) Recv(stop <-chan struct{}) (msg Message, lagged bool, ok bool) {
	select {
	case m := <-sub.ch:
		return m, sub.consumeLagged(), true
	default:
	}

	select {
	case m := <-sub.ch:
		return m, sub.consumeLagged(), true
	case <-sub.closed:
		select {
		case m := <-sub.ch:
			return m, sub.consumeLagged(), true
		default:
			return Message{}, false, false
		}
	case <-stop:
		return Message{}, false, false
	}
}

func (sub *Subscriber) consumeLagged() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	l := sub.lagged
	sub.lagged = false
	return l
}

// Unsubscribe removes sub from its bus; subsequent Sends no longer reach
// it. Safe to call more than once.
func (sub *Subscriber) Unsubscribe() {
	sub.bus.mu.Lock()
	defer sub.bus.mu.Unlock()
	delete(sub.bus.subs, sub)
}
