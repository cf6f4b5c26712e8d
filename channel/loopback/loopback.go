// Package loopback provides an in-memory link pair. Two cross-wired
// adapters form a full-duplex channel with no physical layer underneath,
// for tests, local development, and the demo app's offline mode.
package loopback

import (
	"errors"
	"sync"

	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

// ErrClosed is the fatal outcome returned by Transmit after Close.
var ErrClosed = errors.New("loopback: closed")

// inboxDepth bounds each direction of the pair. A full peer inbox surfaces
// as transient backpressure, same as a congested real link.
const inboxDepth = 32

// Compile-time contract checks.
var (
	_ transport.Adapter = (*Adapter)(nil)
	_ transport.Poller  = (*Adapter)(nil)
)

// Adapter is one end of the pair. Transmit copies the packet into the
// peer's inbox; Poll drains this end's own inbox.
type Adapter struct {
	out chan<- protocol.Packet
	in  <-chan protocol.Packet

	mu       sync.Mutex
	failNext error
	closed   bool
}

// Pair creates two cross-wired loopback adapters. Packets transmitted on
// one appear on the other's Poll, and vice versa.
func Pair() (*Adapter, *Adapter) {
	ab := make(chan protocol.Packet, inboxDepth)
	ba := make(chan protocol.Packet, inboxDepth)
	return &Adapter{out: ab, in: ba}, &Adapter{out: ba, in: ab}
}

// MTU reports the global maximum — the loopback has no physical limit.
func (a *Adapter) MTU() int {
	return protocol.MaxMTU
}

// Transmit delivers the packet to the peer's inbox. A full inbox is
// transient backpressure; a closed adapter is fatal. An error armed with
// FailNext is consumed by exactly one call.
func (a *Adapter) Transmit(p *protocol.Packet) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if err := a.failNext; err != nil {
		a.failNext = nil
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()

	select {
	case a.out <- *p:
		return nil
	default:
		return transport.ErrNoResources
	}
}

// Poll returns one packet transmitted by the peer, if any.
func (a *Adapter) Poll() (protocol.Packet, bool) {
	select {
	case p := <-a.in:
		return p, true
	default:
		return protocol.Packet{}, false
	}
}

// FailNext arms a one-shot outcome for the next Transmit call. Use the
// transport sentinels to simulate transient failures, or any other error
// for fatal ones.
func (a *Adapter) FailNext(err error) {
	a.mu.Lock()
	a.failNext = err
	a.mu.Unlock()
}

// Close marks this end dead. Subsequent Transmit calls fail fatally; the
// peer keeps reading whatever is already in flight.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}
