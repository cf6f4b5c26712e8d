// Package wsbridge adapts a WebSocket connection to the transport engine.
// It is the debug-bridge link: a developer workstation connects over the
// network and exchanges the same fixed-format packets as any physical
// channel. Packets travel as binary messages carrying wire images.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

// ErrClosed is the fatal outcome returned by Transmit once the peer is gone.
var ErrClosed = errors.New("wsbridge: connection closed")

const (
	// inboxDepth bounds decoded inbound packets waiting for the engine.
	inboxDepth = 32

	// writeTimeout bounds one Transmit attempt. A write that cannot finish
	// within it leaves the connection unusable, like any other write failure.
	writeTimeout = 100 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Compile-time contract checks.
var (
	_ transport.Adapter = (*Adapter)(nil)
	_ transport.Poller  = (*Adapter)(nil)
)

// Adapter is a WebSocket link around one established connection.
type Adapter struct {
	conn  *websocket.Conn
	inbox chan protocol.Packet
	log   *zap.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	// closer releases listen-mode resources; nil in dial mode.
	closer func()
}

// Dial connects to a remote bridge endpoint (ws:// or wss:// URL) and
// returns the adapter once the connection is up.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Adapter, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newAdapter(conn, nil, log), nil
}

// Serve listens on addr and waits for exactly one peer to connect — the
// bridge is point-to-point, later connections are refused. It blocks until
// a peer arrives or ctx is cancelled.
func Serve(ctx context.Context, addr string, log *zap.Logger) (*Adapter, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	connCh := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case connCh <- conn:
		default:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
			conn.Close()
		}
	})

	go func() {
		_ = http.Serve(listener, mux)
	}()

	select {
	case conn := <-connCh:
		return newAdapter(conn, func() { listener.Close() }, log), nil
	case <-ctx.Done():
		listener.Close()
		return nil, ctx.Err()
	}
}

func newAdapter(conn *websocket.Conn, closer func(), log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Adapter{
		conn:   conn,
		inbox:  make(chan protocol.Packet, inboxDepth),
		log:    log,
		closer: closer,
	}
	go a.readPump()
	return a
}

// Addr returns the local endpoint of the underlying connection.
func (a *Adapter) Addr() net.Addr {
	return a.conn.LocalAddr()
}

// RemoteAddr returns the peer endpoint of the underlying connection.
func (a *Adapter) RemoteAddr() net.Addr {
	return a.conn.RemoteAddr()
}

// MTU reports the global maximum; WebSocket messages have no hard limit
// below it.
func (a *Adapter) MTU() int {
	return protocol.MaxMTU
}

// Transmit writes one binary message. Any write failure is fatal: a
// websocket connection is corrupt after a failed write — including a
// deadline expiry, after which every later write returns the same stored
// error — so the adapter goes straight to closed.
func (a *Adapter) Transmit(p *protocol.Packet) error {
	if a.closed.Load() {
		return ErrClosed
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	err := a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err == nil {
		err = a.conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(p))
	}
	if err != nil {
		a.markClosed()
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Poll returns one decoded inbound packet, if any.
func (a *Adapter) Poll() (protocol.Packet, bool) {
	select {
	case p := <-a.inbox:
		return p, true
	default:
		return protocol.Packet{}, false
	}
}

// Close tears down the connection. Safe to call more than once.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.closer != nil {
		a.closer()
	}
	return a.conn.Close()
}

func (a *Adapter) markClosed() {
	if !a.closed.Swap(true) {
		if a.closer != nil {
			a.closer()
		}
		a.conn.Close()
	}
}

// readPump decodes inbound binary messages until the connection dies.
func (a *Adapter) readPump() {
	for {
		kind, data, err := a.conn.ReadMessage()
		if err != nil {
			if !a.closed.Load() {
				a.log.Info("ws link closed", zap.Error(err))
			}
			a.markClosed()
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		pkt, err := protocol.Decode(data)
		if err != nil {
			a.log.Warn("undecodable ws message dropped", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		select {
		case a.inbox <- pkt:
		default:
			a.log.Warn("ws inbox full, packet dropped", zap.Uint16("id", pkt.ID))
		}
	}
}
