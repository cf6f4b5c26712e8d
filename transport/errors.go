package transport

import "errors"

// Errors returned by Engine.Send. Callers check the exact cause with
// errors.Is() instead of comparing strings.
var (
	// ErrInvalidArgument means the engine is not running or the packet
	// fails its validity invariant. The packet was not accepted.
	ErrInvalidArgument = errors.New("transport: invalid argument")

	// ErrQueueFull means the send queue is at capacity. The packet was
	// dropped immediately (drop-newest backpressure); nothing blocks.
	ErrQueueFull = errors.New("transport: send queue full")
)

// Outcome sentinels adapters return (possibly wrapped) from Transmit to
// signal a recoverable failure. Any other error is treated as fatal: the
// packet is dropped and reported through the bound error handler.
var (
	// ErrNoResources: the link is temporarily out of buffers or memory.
	ErrNoResources = errors.New("transport: no resources")

	// ErrInvalidState: the link is in a temporarily unusable state
	// (not yet open, renegotiating).
	ErrInvalidState = errors.New("transport: invalid state")

	// ErrTimeout: the single transmission attempt timed out.
	ErrTimeout = errors.New("transport: timeout")
)

// Transient reports whether a Transmit failure should be retried by
// re-enqueueing the packet rather than dropping it.
func Transient(err error) bool {
	return errors.Is(err, ErrNoResources) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrTimeout)
}
