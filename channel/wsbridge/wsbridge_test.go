package wsbridge_test

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/PJ82RU/nets/channel/wsbridge"
	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

// bridgePair serves on a loopback port, dials it, and returns both ends.
func bridgePair(t *testing.T) (server, client *wsbridge.Adapter) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Bind the listener first so the URL is known before Serve blocks.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	serverCh := make(chan *wsbridge.Adapter, 1)
	errCh := make(chan error, 1)
	go func() {
		a, err := wsbridge.Serve(ctx, addr, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverCh <- a
	}()

	url := fmt.Sprintf("ws://%s/bridge", addr)
	var clientA *wsbridge.Adapter
	for {
		clientA, err = wsbridge.Dial(ctx, url, nil)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("dial never succeeded: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case serverA := <-serverCh:
		t.Cleanup(func() {
			serverA.Close()
			clientA.Close()
		})
		return serverA, clientA
	case err := <-errCh:
		t.Fatalf("serve: %v", err)
	case <-ctx.Done():
		t.Fatal("serve timed out")
	}
	return nil, nil
}

func awaitPoll(t *testing.T, a *wsbridge.Adapter) protocol.Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := a.Poll(); ok {
			return p
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no packet arrived")
	return protocol.Packet{}
}

func TestBridgeRoundTrip(t *testing.T) {
	server, client := bridgePair(t)

	out, _ := protocol.New(12, []byte("from client"))
	if err := client.Transmit(&out); err != nil {
		t.Fatalf("client transmit: %v", err)
	}

	got := awaitPoll(t, server)
	if got.ID != 12 || string(got.Payload()) != "from client" {
		t.Errorf("server got %s payload %q", got.String(), got.Payload())
	}

	back, _ := protocol.New(12, []byte("from server"))
	if err := server.Transmit(&back); err != nil {
		t.Fatalf("server transmit: %v", err)
	}
	if got := awaitPoll(t, client); string(got.Payload()) != "from server" {
		t.Errorf("client got payload %q", got.Payload())
	}
}

// TestBridgeWithEngines runs the full stack: two engines on the two bridge
// ends, reply function included.
func TestBridgeWithEngines(t *testing.T) {
	server, client := bridgePair(t)

	serverEngine := transport.New(server, transport.Options{SendInterval: time.Millisecond})
	clientEngine := transport.New(client, transport.Options{SendInterval: time.Millisecond})

	serverEngine.Bind(func(p protocol.Packet, reply transport.ReplyFunc) {
		echo, _ := protocol.New(p.ID, append([]byte("ack "), p.Payload()...))
		reply(echo)
	}, nil)

	replies := make(chan protocol.Packet, 1)
	clientEngine.Bind(func(p protocol.Packet, _ transport.ReplyFunc) {
		replies <- p
	}, nil)

	if !serverEngine.Start() || !clientEngine.Start() {
		t.Fatal("engine start failed")
	}
	defer serverEngine.Stop()
	defer clientEngine.Stop()

	req, _ := protocol.New(1, []byte("hello"))
	if err := clientEngine.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-replies:
		if string(got.Payload()) != "ack hello" {
			t.Errorf("reply payload: %q", got.Payload())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reply over the bridge")
	}
}

func TestTransmitAfterPeerGone(t *testing.T) {
	server, client := bridgePair(t)

	client.Close()

	// The server side notices the close asynchronously; keep transmitting
	// until the failure surfaces.
	out, _ := protocol.New(1, []byte("x"))
	deadline := time.Now().Add(2 * time.Second)
	var err error
	for time.Now().Before(deadline) {
		if err = server.Transmit(&out); err != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err == nil {
		t.Fatal("transmit kept succeeding after peer closed")
	}
	if transport.Transient(err) {
		t.Errorf("write failure classified transient: %v", err)
	}
	if err := server.Transmit(&out); !errors.Is(err, wsbridge.ErrClosed) {
		t.Errorf("transmit after failure: got %v, want ErrClosed", err)
	}
}

// TestStalledPeerWriteIsFatal covers the write-deadline path: the peer
// completes the handshake but never reads, so once the socket buffers fill
// a write times out. That connection can never carry the packet again, so
// the failure must not be classified transient (which would retry forever).
func TestStalledPeerWriteIsFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Answer the upgrade by hand, then go silent without ever reading.
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		sum := sha1.Sum([]byte(req.Header.Get("Sec-WebSocket-Key") + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
		fmt.Fprintf(conn, "HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\nConnection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n", base64.StdEncoding.EncodeToString(sum[:]))
		<-hold
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := wsbridge.Dial(ctx, fmt.Sprintf("ws://%s/bridge", ln.Addr()), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	out, _ := protocol.New(7, make([]byte, protocol.MaxMTU))
	var sendErr error
	for i := 0; i < 100000; i++ {
		if sendErr = client.Transmit(&out); sendErr != nil {
			break
		}
	}
	if sendErr == nil {
		t.Fatal("writes never failed against a stalled peer")
	}
	if transport.Transient(sendErr) {
		t.Errorf("stalled-write failure classified transient: %v", sendErr)
	}
	if err := client.Transmit(&out); !errors.Is(err, wsbridge.ErrClosed) {
		t.Errorf("transmit after stalled write: got %v, want ErrClosed", err)
	}
}

func TestServeRejectsSecondPeer(t *testing.T) {
	server, client := bridgePair(t)
	_ = server

	// A second dial to the same endpoint must be turned away: its
	// connection closes without ever carrying packets.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://%s/bridge", serverHostPort(client))
	second, err := wsbridge.Dial(ctx, url, nil)
	if err != nil {
		// Listener already released after the first peer — equally fine.
		return
	}
	defer second.Close()

	out, _ := protocol.New(1, []byte("x"))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := second.Transmit(&out); err != nil {
			return // rejected as expected
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("second peer was never rejected")
}

// serverHostPort recovers the bridge endpoint from the client connection.
func serverHostPort(client *wsbridge.Adapter) string {
	// The client's remote is the server's listen address.
	return client.RemoteAddr().String()
}
