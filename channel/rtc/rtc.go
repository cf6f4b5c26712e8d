// Package rtc adapts a WebRTC DataChannel to the transport engine — the
// wireless-style link: peers find each other through out-of-band signaling
// and then exchange packets directly. Inbound packets arrive through the
// DataChannel's event callbacks and are handed to the engine's mailbox, not
// polled.
//
// Signaling (offer/answer and ICE candidate exchange) stays with the
// caller: the adapter exposes the SDP plumbing and does not care how the
// descriptions travel.
package rtc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

// ErrClosed is the fatal outcome returned by Transmit once the channel or
// peer connection is gone.
var ErrClosed = errors.New("rtc: channel closed")

// highWaterMark pauses outbound traffic: while the DataChannel has more
// than this buffered, Transmit reports transient exhaustion and the engine
// retries once the stack drains.
const highWaterMark = 256 * 1024

// STUN servers for ICE candidate gathering. Direct peer-to-peer only, no
// relay infrastructure.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Compile-time contract check. Note: no Poller — this link is event-driven.
var _ transport.Adapter = (*Adapter)(nil)

// DeliverFunc receives decoded inbound packets; wire it to Engine.Deliver.
type DeliverFunc func(p protocol.Packet) bool

// Adapter wraps one PeerConnection + DataChannel pair.
type Adapter struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	open   chan struct{}
	closed atomic.Bool
	log    *zap.Logger

	mu      sync.Mutex
	deliver DeliverFunc
}

// New creates an adapter backed by a fresh PeerConnection and a
// pre-negotiated DataChannel. Perform signaling via CreateOffer /
// CreateAnswer / Set*Description / ICE methods, then hand the adapter to an
// engine; Transmit reports a transient invalid state until the channel
// opens.
func New(log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("peer connection: %w", err)
	}

	// Negotiated mode (ID 0) lets both sides create the channel
	// independently; unordered removes head-of-line blocking between
	// unrelated packet IDs.
	ordered := false
	negotiated := true
	id := uint16(0)
	dc, err := pc.CreateDataChannel("nets", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("data channel: %w", err)
	}

	a := &Adapter{
		pc:   pc,
		dc:   dc,
		open: make(chan struct{}),
		log:  log,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(a.open) })
	})
	dc.OnClose(func() {
		a.log.Info("data channel closed")
		a.closed.Store(true)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		pkt, err := protocol.Decode(msg.Data)
		if err != nil {
			a.log.Warn("undecodable message dropped", zap.Int("bytes", len(msg.Data)), zap.Error(err))
			return
		}
		a.mu.Lock()
		deliver := a.deliver
		a.mu.Unlock()
		if deliver != nil {
			deliver(pkt)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		a.log.Debug("peer connection state", zap.String("state", state.String()))
	})

	return a, nil
}

// OnPacket sets the inbound delivery function. Pass the owning engine's
// Deliver method so packets flow through its mailbox. Thread-safe; replaces
// any previous function.
func (a *Adapter) OnPacket(fn DeliverFunc) {
	a.mu.Lock()
	a.deliver = fn
	a.mu.Unlock()
}

// Ready returns a channel closed when the DataChannel is open.
func (a *Adapter) Ready() <-chan struct{} {
	return a.open
}

// MTU reports the global maximum; a 521-byte message is far below SCTP
// fragmentation limits.
func (a *Adapter) MTU() int {
	return protocol.MaxMTU
}

// Transmit sends one packet as a binary DataChannel message. Before the
// channel opens it reports a transient invalid state; above the buffered
// high-water mark it reports transient exhaustion. Send failures on an open
// channel are fatal.
func (a *Adapter) Transmit(p *protocol.Packet) error {
	if a.closed.Load() {
		return ErrClosed
	}

	select {
	case <-a.open:
	default:
		return fmt.Errorf("channel not open: %w", transport.ErrInvalidState)
	}

	if a.dc.BufferedAmount() > highWaterMark {
		return fmt.Errorf("send buffer above high water: %w", transport.ErrNoResources)
	}

	if err := a.dc.Send(protocol.Encode(p)); err != nil {
		a.closed.Store(true)
		return fmt.Errorf("dc send: %w", err)
	}
	return nil
}

// Close shuts down the DataChannel and PeerConnection.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return errors.Join(a.dc.Close(), a.pc.Close())
}

// ---------------------------------------------------------------------------
// Signaling plumbing
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (a *Adapter) CreateOffer() (webrtc.SessionDescription, error) {
	return a.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (a *Adapter) CreateAnswer() (webrtc.SessionDescription, error) {
	return a.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (a *Adapter) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return a.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (a *Adapter) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return a.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback for locally gathered ICE candidates.
// A nil candidate signals the end of gathering.
func (a *Adapter) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	a.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote candidate received through signaling.
func (a *Adapter) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return a.pc.AddICECandidate(candidate)
}
