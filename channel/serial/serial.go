// Package serial adapts a serial port to the transport engine. Packets
// travel as preamble-framed wire images over the byte stream; a background
// read pump reassembles inbound frames into packets for the engine's poll.
//
// Electrical-layer concerns (pin muxing, flow control wiring) are outside
// this package: it speaks to whatever device node the OS exposes.
package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	goserial "go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

// ErrClosed is the fatal outcome returned by Transmit once the port is
// closed or the read pump has died.
var ErrClosed = errors.New("serial: port closed")

// inboxDepth bounds how many reassembled packets wait for the engine.
// Beyond it the oldest traffic wins and new frames are dropped.
const inboxDepth = 32

// Config selects the port and line speed.
type Config struct {
	Port     string // device path, e.g. /dev/ttyUSB0 or COM3
	BaudRate int    // e.g. 115200
}

// Compile-time contract checks.
var (
	_ transport.Adapter = (*Adapter)(nil)
	_ transport.Poller  = (*Adapter)(nil)
)

// Adapter is a serial-port link. One engine owns it; Transmit is only ever
// called from that engine's dispatch goroutine.
type Adapter struct {
	port  goserial.Port
	inbox chan protocol.Packet
	log   *zap.Logger

	closed atomic.Bool

	// closeOnce guards port.Close: either Close or a dying read pump may
	// run it, and the descriptor must be released exactly once.
	closeOnce sync.Once
	closeErr  error

	// frame is the reused Transmit scratch buffer; single-caller by contract.
	frame []byte
}

// Open opens the configured port and starts the read pump. A nil logger
// disables diagnostics.
func Open(cfg Config, log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}

	port, err := goserial.Open(cfg.Port, &goserial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}

	a := &Adapter{
		port:  port,
		inbox: make(chan protocol.Packet, inboxDepth),
		log:   log,
		frame: make([]byte, 0, frameSize),
	}
	go a.readPump()

	log.Info("serial port opened", zap.String("port", cfg.Port), zap.Int("baud", cfg.BaudRate))
	return a, nil
}

// MTU reports the global maximum — framing already carries full images.
func (a *Adapter) MTU() int {
	return protocol.MaxMTU
}

// Transmit writes one complete frame to the port. Any write failure is
// fatal: a serial line that errors mid-frame has lost sync, and retrying
// the same bytes cannot fix that.
func (a *Adapter) Transmit(p *protocol.Packet) error {
	if a.closed.Load() {
		return ErrClosed
	}

	a.frame = appendFrame(a.frame[:0], p)
	n, err := a.port.Write(a.frame)
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	if n != len(a.frame) {
		return fmt.Errorf("serial short write: %d/%d bytes", n, len(a.frame))
	}
	return nil
}

// Poll returns one reassembled inbound packet, if any.
func (a *Adapter) Poll() (protocol.Packet, bool) {
	select {
	case p := <-a.inbox:
		return p, true
	default:
		return protocol.Packet{}, false
	}
}

// Close stops the adapter and closes the port, which also unblocks the
// read pump. Safe to call more than once, including after the pump has
// already torn the port down.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	a.closePort()
	return a.closeErr
}

func (a *Adapter) closePort() {
	a.closeOnce.Do(func() {
		a.closeErr = a.port.Close()
	})
}

// readPump reads the port until it fails, feeding the frame scanner and
// queueing complete packets for Poll.
func (a *Adapter) readPump() {
	scan := &frameScanner{}
	buf := make([]byte, 4096)

	for {
		n, err := a.port.Read(buf)
		if n > 0 {
			for _, pkt := range scan.feed(buf[:n]) {
				select {
				case a.inbox <- pkt:
				default:
					a.log.Warn("serial inbox full, frame dropped", zap.Uint16("id", pkt.ID))
				}
			}
		}
		if err != nil {
			if !a.closed.Swap(true) {
				a.log.Error("serial read failed, link down", zap.Error(err))
				a.closePort()
			}
			return
		}
	}
}
