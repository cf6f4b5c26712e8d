package serial

import (
	"bytes"
	"testing"

	"github.com/PJ82RU/nets/protocol"
)

func framed(t *testing.T, id uint16, payload string) []byte {
	t.Helper()
	p, ok := protocol.New(id, []byte(payload))
	if !ok {
		t.Fatalf("packet construction failed for %q", payload)
	}
	return appendFrame(nil, &p)
}

func TestScannerSingleFrame(t *testing.T) {
	s := &frameScanner{}

	got := s.feed(framed(t, 1, "hello"))
	if len(got) != 1 {
		t.Fatalf("packets: got %d, want 1", len(got))
	}
	if got[0].ID != 1 || string(got[0].Payload()) != "hello" {
		t.Errorf("packet: %s payload %q", got[0].String(), got[0].Payload())
	}
}

// TestScannerSplitDelivery feeds one frame byte by byte — stream chunking
// must not matter.
func TestScannerSplitDelivery(t *testing.T) {
	s := &frameScanner{}
	frame := framed(t, 2, "split")

	var got []protocol.Packet
	for _, b := range frame {
		got = append(got, s.feed([]byte{b})...)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("packets: got %d", len(got))
	}
}

// TestScannerGarbagePrefix checks resync across line noise, including a
// stray magic byte inside the noise.
func TestScannerGarbagePrefix(t *testing.T) {
	s := &frameScanner{}

	noise := []byte{0x00, 0xFF, magic0, 0x13, 0x37}
	data := append(append([]byte{}, noise...), framed(t, 3, "clean")...)

	got := s.feed(data)
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("packets after noise: got %d", len(got))
	}
}

func TestScannerBackToBackFrames(t *testing.T) {
	s := &frameScanner{}

	data := append(framed(t, 4, "first"), framed(t, 5, "second")...)
	got := s.feed(data)
	if len(got) != 2 {
		t.Fatalf("packets: got %d, want 2", len(got))
	}
	if got[0].ID != 4 || got[1].ID != 5 {
		t.Errorf("order: got %d then %d", got[0].ID, got[1].ID)
	}
}

// TestScannerCorruptFrame plants an invalid size field after a valid
// preamble; the scanner must skip it and still find the following frame.
func TestScannerCorruptFrame(t *testing.T) {
	s := &frameScanner{}

	corrupt := make([]byte, frameSize)
	corrupt[0] = magic0
	corrupt[1] = magic1
	// size field = 0, invalid
	data := append(corrupt, framed(t, 6, "after")...)

	got := s.feed(data)
	if len(got) != 1 || got[0].ID != 6 {
		t.Fatalf("packets after corrupt frame: got %d", len(got))
	}
}

func TestAppendFrame(t *testing.T) {
	p, _ := protocol.New(9, []byte("abc"))
	frame := appendFrame(nil, &p)

	if len(frame) != frameSize {
		t.Fatalf("frame size: got %d, want %d", len(frame), frameSize)
	}
	if !bytes.Equal(frame[:2], preamble) {
		t.Errorf("preamble: got % x", frame[:2])
	}
	decoded, err := protocol.Decode(frame[2:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != 9 || string(decoded.Payload()) != "abc" {
		t.Errorf("decoded: %s payload %q", decoded.String(), decoded.Payload())
	}
}
