package transport

import (
	"time"

	"github.com/PJ82RU/nets/protocol"
)

// DefaultQueueCapacity is the send queue depth used when Options leaves
// QueueCapacity zero.
const DefaultQueueCapacity = 16

// Queue is a bounded FIFO of packet values, safe for any number of
// producers and one consumer. Packets are copied in and out; the queue
// never retains references to caller memory.
type Queue struct {
	ch chan protocol.Packet
}

// NewQueue creates a queue holding at most capacity packets.
// A non-positive capacity falls back to DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan protocol.Packet, capacity)}
}

// Push appends a packet. With timeout 0 it never blocks: a full queue
// fails immediately (drop-newest policy). A positive timeout waits at most
// that long for space. Returns false when the packet was not enqueued.
func (q *Queue) Push(p protocol.Packet, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case q.ch <- p:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- p:
		return true
	case <-timer.C:
		return false
	}
}

// Pop removes and returns the head packet. With timeout 0 it never blocks;
// a positive timeout waits at most that long for a packet to arrive.
// The second return value is false when nothing was dequeued.
func (q *Queue) Pop(timeout time.Duration) (protocol.Packet, bool) {
	if timeout <= 0 {
		select {
		case p := <-q.ch:
			return p, true
		default:
			return protocol.Packet{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-q.ch:
		return p, true
	case <-timer.C:
		return protocol.Packet{}, false
	}
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Clear drains the queue and returns the number of packets removed.
func (q *Queue) Clear() int {
	count := 0
	for {
		select {
		case <-q.ch:
			count++
		default:
			return count
		}
	}
}
