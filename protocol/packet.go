// Package protocol defines the fixed-format packet container exchanged over
// every physical link (wireless, serial, debug-bridge).
package protocol

import "fmt"

// MaxMTU is the largest payload any link can carry, sized for the maximum
// supported channel MTU. Per-channel limits are reported by the adapter's
// MTU method; validity here always checks against this global maximum.
const MaxMTU = 517

// Packet is the universal container passed between devices. It is a plain
// value type: the zero value is an invalid (empty) packet, copies are cheap
// and independent, and no field allocates.
//
// Field order and sizes are fixed for cross-link binary compatibility —
// do not reorder or resize them.
type Packet struct {
	// ID identifies the sender/connection: a link-layer connection ID for
	// wireless links, a device number for serial links. 0 means broadcast.
	ID uint16

	// Size is the number of valid bytes in Buffer. Bytes at and beyond
	// Size are meaningless and must not be interpreted.
	Size uint16

	// Buffer is the fixed-capacity payload storage.
	Buffer [MaxMTU]byte
}

// New builds a packet addressed to id carrying payload. The second return
// value is false when the payload cannot be stored (nil, empty, or larger
// than MaxMTU); the returned packet is then the zero value.
func New(id uint16, payload []byte) (Packet, bool) {
	var p Packet
	p.ID = id
	if !p.SetPayload(payload) {
		return Packet{}, false
	}
	return p, true
}

// Valid reports whether the packet holds a usable payload: 0 < Size <= MaxMTU.
func (p *Packet) Valid() bool {
	return p.Size > 0 && p.Size <= MaxMTU
}

// SetPayload copies data into the packet and records its length.
// It returns false — leaving the packet unchanged — when data is nil,
// empty, or longer than MaxMTU.
func (p *Packet) SetPayload(data []byte) bool {
	if len(data) == 0 || len(data) > MaxMTU {
		return false
	}
	p.Size = uint16(len(data))
	copy(p.Buffer[:], data)
	return true
}

// Payload returns a view of the valid bytes. The slice aliases the packet's
// buffer; callers that retain it across mutations must copy. A corrupt size
// field is clamped to the buffer rather than allowed to panic.
func (p *Packet) Payload() []byte {
	n := int(p.Size)
	if n > MaxMTU {
		n = MaxMTU
	}
	return p.Buffer[:n]
}

// Clear zeroes the whole packet. Afterwards Valid reports false.
func (p *Packet) Clear() {
	p.ID = 0
	p.Size = 0
	p.Buffer = [MaxMTU]byte{}
}

// String renders the header fields for diagnostics, e.g.
// "Packet[id=1, size=128, valid=true]".
func (p *Packet) String() string {
	return fmt.Sprintf("Packet[id=%d, size=%d, valid=%t]", p.ID, p.Size, p.Valid())
}
