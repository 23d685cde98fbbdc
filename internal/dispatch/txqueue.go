package dispatch

import (
	"context"
	"time"

	"github.com/qbolapp/qbolapp/internal/link"
	"github.com/qbolapp/qbolapp/internal/util"
)

// TxQueue is the single FIFO of ready-to-send, already-encoded frames.
// Enqueue is non-blocking for producers of unreliable frames (dropped with
// a warning when full) and blocks reliable producers until space exists.
type TxQueue struct {
	ch chan []byte
}

// NewTxQueue creates a queue with the given bounded capacity.
func NewTxQueue(capacity int) *TxQueue {
	return &TxQueue{ch: make(chan []byte, capacity)}
}

// Enqueue places frame on the queue. Reliable frames block until space
// exists or ctx is cancelled; unreliable frames are dropped immediately
// (with a logged warning) if the queue is full.
func (q *TxQueue) Enqueue(ctx context.Context, frame []byte, reliable bool) error {
	if reliable {
		select {
		case q.ch <- frame:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case q.ch <- frame:
		return nil
	default:
		util.LogWarning("transmit queue full, dropping unreliable frame")
		return errQueueFull
	}
}

// Len reports the number of frames currently queued.
func (q *TxQueue) Len() int { return len(q.ch) }

// WaitDrained polls until the queue is empty or deadline elapses, returning
// true if it drained in time. Used during shutdown so an already-enqueued
// BROADCAST_OFFLINE has a chance to leave before the endpoint is closed.
func (q *TxQueue) WaitDrained(deadline time.Duration) bool {
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if q.Len() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return q.Len() == 0
}

// maxConsecutiveWriteErrors bounds how many back-to-back endpoint write
// failures the sender tolerates before treating the link as dead.
const maxConsecutiveWriteErrors = 10

// RunSender is the single-writer goroutine that drains the queue onto the
// link endpoint. A single bad write is logged and swallowed — the sender
// never terminates on one endpoint write error; onFatal is invoked once
// writes fail persistently, so the caller can trigger engine shutdown.
func RunSender(ctx context.Context, q *TxQueue, ep link.Endpoint, stats *util.Stats, onFatal func()) {
	consecutiveErrors := 0
	for {
		select {
		case frame := <-q.ch:
			if err := ep.Send(frame); err != nil {
				consecutiveErrors++
				util.LogError("endpoint write failed (%d consecutive): %v", consecutiveErrors, err)
				if consecutiveErrors >= maxConsecutiveWriteErrors {
					if onFatal != nil {
						onFatal()
					}
					return
				}
				continue
			}
			consecutiveErrors = 0
			stats.AddSent(len(frame))
		case <-ctx.Done():
			return
		}
	}
}
