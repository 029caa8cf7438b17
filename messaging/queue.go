package messaging

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrShutdown is returned for sends issued after the adapter's forced close.
var ErrShutdown = errors.New("adapter closed")

// SendAction is one deferred send. Actions run exactly once, either
// immediately or during the drain that follows the next open.
type SendAction func() error

// PendingQueue buffers send actions issued while the transport is not open
// and replays them in FIFO order once it is. The buffer is unbounded by
// design: the adapter always eventually reconnects, and queued traffic must
// survive until it does.
type PendingQueue struct {
	mu      sync.Mutex
	open    bool
	closed  bool
	pending []SendAction
	logger  *slog.Logger
}

// QueueOption configures the PendingQueue.
type QueueOption func(*PendingQueue)

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *PendingQueue) {
		q.logger = logger
	}
}

// NewPendingQueue creates a queue in the disconnected state.
func NewPendingQueue(options ...QueueOption) *PendingQueue {
	q := &PendingQueue{
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(q)
	}

	return q
}

// EnqueueOrSend executes the action immediately when the transport is open,
// otherwise appends it to the buffer. The returned error is always nil for
// buffered actions; their outcome surfaces when the drain runs them.
func (q *PendingQueue) EnqueueOrSend(action SendAction) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShutdown
	}
	if !q.open {
		q.pending = append(q.pending, action)
		depth := len(q.pending)
		q.mu.Unlock()
		q.logger.Debug("send buffered while disconnected", "depth", depth)
		return nil
	}
	q.mu.Unlock()

	return action()
}

// Open drains the buffer front-to-back and then marks the transport as
// open. Sends issued while the drain is running keep buffering and replay
// after the current batch, so buffered traffic is never overtaken by new
// traffic.
func (q *PendingQueue) Open() {
	q.mu.Lock()
	if q.open {
		q.mu.Unlock()
		return
	}

	for len(q.pending) > 0 {
		drained := q.pending
		q.pending = nil
		q.mu.Unlock()

		q.logger.Info("draining buffered sends", "count", len(drained))
		for _, action := range drained {
			if err := action(); err != nil {
				q.logger.Error("buffered send failed", "error", err)
			}
		}

		q.mu.Lock()
	}

	q.open = true
	q.mu.Unlock()
}

// Suspend marks the transport as not open; subsequent sends buffer.
func (q *PendingQueue) Suspend() {
	q.mu.Lock()
	q.open = false
	q.mu.Unlock()
}

// Shutdown closes the queue terminally; subsequent sends fail with
// ErrShutdown. Already-buffered actions are dropped: the adapter is being
// discarded and no connection will come back for them.
func (q *PendingQueue) Shutdown() {
	q.mu.Lock()
	q.open = false
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
}

// Len returns the number of buffered actions.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
