package transport

import "github.com/PJ82RU/nets/protocol"

// Adapter is the contract every physical link must satisfy. The engine only
// ever talks to this interface — it never imports serial, websocket, or
// anything concrete. Channel bring-up (opening ports, dialing, pairing)
// happens before the adapter reaches the engine; a link that failed to come
// up should surface that by failing Transmit, not by blocking.
type Adapter interface {
	// MTU returns the maximum payload this link currently supports.
	// The engine does not enforce it — packet validity always checks the
	// global protocol.MaxMTU — but callers size their payloads with it.
	MTU() int

	// Transmit performs exactly one physical transmission attempt and must
	// return within one dispatch tick's budget. Return nil on success, one
	// of the transient sentinels (ErrNoResources, ErrInvalidState,
	// ErrTimeout — possibly wrapped) for recoverable failures, or any
	// other error to have the packet dropped and reported.
	Transmit(p *protocol.Packet) error
}

// Poller is implemented by adapters that read their link by polling
// (byte-stream channels). The engine invokes Poll once per dispatch tick;
// it must not block. Event-driven adapters skip this interface and push
// inbound packets through Engine.Deliver instead.
type Poller interface {
	// Poll checks the link for one received packet. The second return
	// value is false when nothing is available.
	Poll() (protocol.Packet, bool)
}
