package gossip

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Event is one item of a topic's event stream. The set of events is closed:
// Received, NeighborUp, NeighborDown and Lagged.
type Event interface {
	isEvent()
}

// Received carries a payload broadcast by another member of the topic.
type Received struct {
	Content []byte
	// From is the peer that published the payload.
	From peer.ID
	// DeliveredFrom is the neighbor that relayed it to us.
	DeliveredFrom peer.ID
}

// NeighborUp reports a new direct neighbor in the topic mesh.
type NeighborUp struct {
	Peer peer.ID
}

// NeighborDown reports that a direct neighbor left the topic.
type NeighborDown struct {
	Peer peer.ID
}

// Lagged reports that inbound events were dropped because the consumer fell
// behind.
type Lagged struct{}

func (Received) isEvent()     {}
func (NeighborUp) isEvent()   {}
func (NeighborDown) isEvent() {}
func (Lagged) isEvent()       {}

const defaultQueueSize = 256

// eventQueue is a bounded event channel that never blocks producers. When the
// channel is full the event is dropped and a single Lagged is delivered ahead
// of the next event that fits, or just before the stream closes.
type eventQueue struct {
	mu      sync.Mutex
	ch      chan Event
	lagged  bool
	closed  bool
	dropped uint64
}

func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &eventQueue{ch: make(chan Event, size)}
}

// push enqueues ev and reports whether it was accepted.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.lagged {
		select {
		case q.ch <- Lagged{}:
			q.lagged = false
		default:
			q.dropped++
			return false
		}
	}
	select {
	case q.ch <- ev:
		return true
	default:
		q.lagged = true
		q.dropped++
		return false
	}
}

func (q *eventQueue) events() <-chan Event {
	return q.ch
}

// Dropped returns the number of events discarded so far.
func (q *eventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.lagged {
		select {
		case q.ch <- Lagged{}:
			q.lagged = false
		default:
		}
	}
	close(q.ch)
}
