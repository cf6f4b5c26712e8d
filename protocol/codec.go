package protocol

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed header size on the wire: ID(2) + Size(2).
const HeaderSize = 4

// WireSize is the full encoded packet size: HeaderSize + MaxMTU bytes of
// buffer, contiguous with no padding. Byte-stream links (serial) always
// carry complete WireSize images.
const WireSize = HeaderSize + MaxMTU

// Encode serializes a packet into its fixed wire image. Integers are
// little-endian, matching the packed in-memory layout on the original
// little-endian devices this format interoperates with.
func Encode(p *Packet) []byte {
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint16(buf[0:2], p.ID)
	binary.LittleEndian.PutUint16(buf[2:4], p.Size)
	copy(buf[HeaderSize:], p.Buffer[:])
	return buf
}

// Decode deserializes a wire image into a packet. Message-oriented links may
// deliver images trimmed after the valid payload, so any length from
// HeaderSize+Size up to WireSize is accepted. The Size field itself must
// describe a valid packet.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}

	var p Packet
	p.ID = binary.LittleEndian.Uint16(data[0:2])
	p.Size = binary.LittleEndian.Uint16(data[2:4])

	if !p.Valid() {
		return Packet{}, fmt.Errorf("invalid size field: %d (want 1..%d)", p.Size, MaxMTU)
	}
	if len(data) < HeaderSize+int(p.Size) {
		return Packet{}, fmt.Errorf("truncated payload: %d bytes for size %d", len(data)-HeaderSize, p.Size)
	}

	copy(p.Buffer[:], data[HeaderSize:])
	return p, nil
}
