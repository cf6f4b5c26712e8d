package serial

import (
	"bytes"

	"github.com/PJ82RU/nets/protocol"
)

// Serial links carry packets as fixed-size frames: a two-byte preamble
// followed by the full wire image. The preamble lets the scanner resync
// after line noise or a partially observed frame.
const (
	magic0 = 0xA5
	magic1 = 0x5A

	frameSize = 2 + protocol.WireSize
)

var preamble = []byte{magic0, magic1}

// appendFrame appends the framed wire image of p to dst and returns the
// extended slice.
func appendFrame(dst []byte, p *protocol.Packet) []byte {
	dst = append(dst, magic0, magic1)
	return append(dst, protocol.Encode(p)...)
}

// frameScanner reassembles frames from an arbitrary byte stream. Input may
// arrive in any chunking; garbage between frames is skipped byte by byte
// until the next preamble.
type frameScanner struct {
	buf []byte
}

// feed consumes a chunk of stream bytes and returns every complete packet
// it finishes. Incomplete trailing data is buffered for the next call.
func (s *frameScanner) feed(data []byte) []protocol.Packet {
	s.buf = append(s.buf, data...)

	var out []protocol.Packet
	for {
		i := bytes.Index(s.buf, preamble)
		if i < 0 {
			// Nothing to sync on. Keep a trailing magic0 in case its
			// partner arrives in the next chunk.
			if n := len(s.buf); n > 0 && s.buf[n-1] == magic0 {
				s.buf = []byte{magic0}
			} else {
				s.buf = nil
			}
			return out
		}
		if i > 0 {
			s.buf = s.buf[i:]
		}
		if len(s.buf) < frameSize {
			return out
		}

		pkt, err := protocol.Decode(s.buf[2:frameSize])
		if err != nil {
			// Corrupt frame — drop this preamble byte and resync.
			s.buf = s.buf[1:]
			continue
		}
		out = append(out, pkt)
		s.buf = s.buf[frameSize:]
	}
}
