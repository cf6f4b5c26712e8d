package transport

import "sync/atomic"

// Stats is a point-in-time snapshot of engine traffic counters.
type Stats struct {
	Sent      uint64 // packets transmitted successfully
	Retried   uint64 // transient failures re-enqueued for another attempt
	Dropped   uint64 // packets dropped on fatal outcomes or lost on requeue
	Received  uint64 // inbound packets handed to the bound handler
	BytesSent uint64 // payload bytes transmitted successfully
	BytesRecv uint64 // payload bytes received
}

// counters is the live, atomically updated form. Only the dispatch
// goroutine writes most fields, but Stats() may be called from anywhere.
type counters struct {
	sent      atomic.Uint64
	retried   atomic.Uint64
	dropped   atomic.Uint64
	received  atomic.Uint64
	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		Retried:   c.retried.Load(),
		Dropped:   c.dropped.Load(),
		Received:  c.received.Load(),
		BytesSent: c.bytesSent.Load(),
		BytesRecv: c.bytesRecv.Load(),
	}
}
