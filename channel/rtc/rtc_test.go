package rtc_test

import (
	"errors"
	"testing"

	"github.com/PJ82RU/nets/channel/rtc"
	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

// TestTransmitBeforeOpen verifies the open gate: until signaling completes,
// Transmit reports a transient invalid state so the engine keeps the packet
// queued instead of dropping it.
func TestTransmitBeforeOpen(t *testing.T) {
	a, err := rtc.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	pkt, _ := protocol.New(1, []byte("early"))
	err = a.Transmit(&pkt)
	if !errors.Is(err, transport.ErrInvalidState) {
		t.Errorf("transmit before open: got %v, want ErrInvalidState", err)
	}
	if !transport.Transient(err) {
		t.Error("pre-open outcome classified as fatal")
	}
}

// TestSignalingHandshake runs the SDP half of pairing two adapters in
// process; it stops short of waiting for ICE connectivity, which needs a
// real network path.
func TestSignalingHandshake(t *testing.T) {
	offerer, err := rtc.New(nil)
	if err != nil {
		t.Fatalf("New offerer: %v", err)
	}
	defer offerer.Close()

	answerer, err := rtc.New(nil)
	if err != nil {
		t.Fatalf("New answerer: %v", err)
	}
	defer answerer.Close()

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("offerer SetLocalDescription: %v", err)
	}
	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("answerer SetRemoteDescription: %v", err)
	}

	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := answerer.SetLocalDescription(answer); err != nil {
		t.Fatalf("answerer SetLocalDescription: %v", err)
	}
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("offerer SetRemoteDescription: %v", err)
	}

	select {
	case <-offerer.Ready():
		t.Error("channel open before any connectivity")
	default:
	}
}

func TestTransmitAfterClose(t *testing.T) {
	a, err := rtc.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Close()

	pkt, _ := protocol.New(1, []byte("late"))
	err = a.Transmit(&pkt)
	if !errors.Is(err, rtc.ErrClosed) {
		t.Errorf("transmit after close: got %v, want ErrClosed", err)
	}
	if transport.Transient(err) {
		t.Error("ErrClosed classified as transient")
	}
}
