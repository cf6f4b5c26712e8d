// Package transport implements the channel-agnostic dispatch engine: a
// bounded outbound queue, a rate-limited cooperative dispatch loop, a
// transient/fatal retry policy, and a lifecycle state machine. Physical
// links plug in behind the Adapter interface; one Engine instance owns
// exactly one link.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PJ82RU/nets/protocol"
)

// Defaults applied by New when the corresponding Options field is zero.
const (
	// DefaultSendInterval is the minimum gap between successful transmits.
	DefaultSendInterval = 20 * time.Millisecond

	// DefaultTickInterval is the cadence of the cooperative dispatch loop.
	// Each tick covers at most one send attempt and one inbound poll.
	DefaultTickInterval = time.Millisecond
)

// State is the engine lifecycle state.
type State int32

const (
	StateCreated State = iota // constructed, dispatch loop not started
	StateRunning              // dispatch loop active
	StateStopped              // terminal; construct a new engine to restart
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ReplyFunc sends a response packet over the same engine. It is handed to
// the receive handler so replies flow through the normal send queue.
type ReplyFunc func(p protocol.Packet) error

// Handler processes one inbound packet. It runs on the dispatch goroutine,
// so it must not block for long — one slow handler stalls the whole link.
type Handler func(p protocol.Packet, reply ReplyFunc)

// ErrorHandler is informed of packets dropped on fatal send outcomes.
// It also runs on the dispatch goroutine.
type ErrorHandler func(p protocol.Packet, err error)

// Options are construction-time engine settings. The zero value is usable:
// every field falls back to its documented default.
type Options struct {
	// SendInterval is the minimum time between successful transmits
	// (default DefaultSendInterval).
	SendInterval time.Duration

	// QueueCapacity bounds the outbound queue (default DefaultQueueCapacity).
	// Sends beyond it fail with ErrQueueFull rather than block.
	QueueCapacity int

	// TickInterval is the dispatch loop cadence (default DefaultTickInterval).
	TickInterval time.Duration

	// Logger receives engine diagnostics. Nil means no logging.
	Logger *zap.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.SendInterval <= 0 {
		out.SendInterval = DefaultSendInterval
	}
	if out.QueueCapacity <= 0 {
		out.QueueCapacity = DefaultQueueCapacity
	}
	if out.TickInterval <= 0 {
		out.TickInterval = DefaultTickInterval
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// Engine drives one physical link. All exported methods are safe to call
// from any goroutine; the dispatch loop itself runs on a single goroutine
// owned by the engine.
type Engine struct {
	adapter Adapter
	poller  Poller // nil when the adapter is event-driven
	opts    Options
	log     *zap.Logger

	queue   *Queue
	mailbox chan protocol.Packet // inbound hand-off for event-driven links

	mu       sync.Mutex
	state    State
	onPacket Handler
	onError  ErrorHandler
	cancel   context.CancelFunc

	done chan struct{} // closed when the dispatch loop exits

	// nextSend gates the send phase; touched only by the dispatch goroutine.
	nextSend time.Time

	stats counters
}

// New creates an engine for the given link. The adapter's optional Poller
// side is detected here; nothing runs until Start.
func New(adapter Adapter, opts Options) *Engine {
	o := opts.withDefaults()
	e := &Engine{
		adapter: adapter,
		opts:    o,
		log:     o.Logger,
		queue:   NewQueue(o.QueueCapacity),
		mailbox: make(chan protocol.Packet, o.QueueCapacity),
		done:    make(chan struct{}),
	}
	if p, ok := adapter.(Poller); ok {
		e.poller = p
	}
	return e
}

// Bind atomically replaces the receive and error handlers. It may be called
// in any lifecycle state and from any goroutine; handlers take effect from
// the next dispatch tick. A nil errHandler silences fatal-drop reports.
func (e *Engine) Bind(handler Handler, errHandler ErrorHandler) {
	e.mu.Lock()
	e.onPacket = handler
	e.onError = errHandler
	e.mu.Unlock()
}

// Start launches the dispatch loop. It is idempotent: calling it on a
// running engine returns true without side effects. A stopped engine cannot
// be restarted — Start then returns false.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning:
		return true
	case StateStopped:
		e.log.Warn("start rejected: engine already stopped")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.state = StateRunning
	go e.run(ctx)

	e.log.Info("dispatch loop started",
		zap.Duration("send_interval", e.opts.SendInterval),
		zap.Int("queue_capacity", e.opts.QueueCapacity))
	return true
}

// Stop halts the dispatch loop and drains the queue. It is idempotent and
// terminal: the engine cannot be started again. An in-flight Transmit runs
// to completion before the loop observes the stop.
func (e *Engine) Stop() {
	e.mu.Lock()
	prev := e.state
	e.state = StateStopped
	cancel := e.cancel
	e.mu.Unlock()

	if prev != StateRunning {
		return
	}

	cancel()
	<-e.done

	if n := e.queue.Clear(); n > 0 {
		e.log.Info("discarded pending packets on stop", zap.Int("count", n))
	}
	e.log.Info("dispatch loop stopped")
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Send enqueues a packet for transmission and returns immediately. A nil
// return means accepted, not transmitted: the packet is now eligible for
// dispatch. It fails with ErrInvalidArgument when the engine is not running
// or the packet is invalid, and with ErrQueueFull when the bounded queue is
// at capacity (the packet is dropped, never the queued ones).
func (e *Engine) Send(p protocol.Packet) error {
	e.mu.Lock()
	running := e.state == StateRunning
	e.mu.Unlock()

	if !running || !p.Valid() {
		return fmt.Errorf("send %s in state %s: %w", p.String(), e.State(), ErrInvalidArgument)
	}
	if !e.queue.Push(p, 0) {
		return fmt.Errorf("send %s: %w", p.String(), ErrQueueFull)
	}
	return nil
}

// Deliver hands an inbound packet to the engine from an external event
// context (link callbacks). It never blocks: when the inbound mailbox is
// full or the packet is invalid, the packet is discarded and false is
// returned. The bound handler runs later, on the dispatch goroutine.
func (e *Engine) Deliver(p protocol.Packet) bool {
	if !p.Valid() {
		return false
	}
	select {
	case e.mailbox <- p:
		return true
	default:
		e.log.Warn("inbound mailbox full, packet discarded", zap.Uint16("id", p.ID))
		return false
	}
}

// QueueLen returns the number of packets waiting for dispatch.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// ClearQueue discards all pending packets and returns how many were removed.
func (e *Engine) ClearQueue() int {
	return e.queue.Clear()
}

// Stats returns a snapshot of the engine's traffic counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// run is the cooperative dispatch loop: one send attempt and one inbound
// poll per tick, until the context is cancelled by Stop.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.processSendQueue(now)
			e.processInbound()
		}
	}
}

// processSendQueue performs the rate-limited send phase of one tick.
func (e *Engine) processSendQueue(now time.Time) {
	if now.Before(e.nextSend) {
		return
	}

	pkt, ok := e.queue.Pop(0)
	if !ok {
		return
	}

	if err := e.adapter.Transmit(&pkt); err != nil {
		e.handleSendError(pkt, err)
		return
	}

	e.nextSend = now.Add(e.opts.SendInterval)
	e.stats.sent.Add(1)
	e.stats.bytesSent.Add(uint64(pkt.Size))
	e.log.Debug("packet sent", zap.Uint16("id", pkt.ID), zap.Uint16("size", pkt.Size))
}

// handleSendError applies the recovery policy: transient outcomes go back
// into the queue for another attempt, fatal outcomes drop the packet and
// inform the bound error handler.
//
// Transient retries are unbounded — a persistently failing link keeps the
// packet cycling until Stop or a fatal outcome. Capping retries here would
// change delivery semantics for every channel.
func (e *Engine) handleSendError(pkt protocol.Packet, err error) {
	if Transient(err) {
		e.log.Warn("transient send failure, retrying", zap.Uint16("id", pkt.ID), zap.Error(err))
		e.stats.retried.Add(1)
		if !e.queue.Push(pkt, 0) {
			// Queue refilled while the attempt was in flight; the retry
			// loses to newer traffic.
			e.log.Warn("requeue failed, packet lost", zap.Uint16("id", pkt.ID))
			e.stats.dropped.Add(1)
		}
		return
	}

	e.log.Error("fatal send failure, packet dropped", zap.Uint16("id", pkt.ID), zap.Error(err))
	e.stats.dropped.Add(1)

	e.mu.Lock()
	errHandler := e.onError
	e.mu.Unlock()
	if errHandler != nil {
		errHandler(pkt, err)
	}
}

// processInbound performs the receive phase of one tick: first a packet
// delivered through the mailbox, otherwise one poll of the link.
func (e *Engine) processInbound() {
	var pkt protocol.Packet
	ok := false

	select {
	case pkt = <-e.mailbox:
		ok = true
	default:
		if e.poller != nil {
			pkt, ok = e.poller.Poll()
		}
	}
	if !ok {
		return
	}

	e.stats.received.Add(1)
	e.stats.bytesRecv.Add(uint64(pkt.Size))

	e.mu.Lock()
	handler := e.onPacket
	e.mu.Unlock()
	if handler == nil {
		e.log.Debug("inbound packet with no handler bound", zap.Uint16("id", pkt.ID))
		return
	}
	handler(pkt, e.Send)
}
