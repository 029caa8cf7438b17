package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wireflow/wireflow-go/contracts"
	"github.com/wireflow/wireflow-go/internal/jsoncodec"
)

// Sender transmits an encoded envelope over the transport.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// ReplyFunc receives the reply envelope matching a correlated request. It is
// invoked at most once.
type ReplyFunc func(reply *contracts.Envelope)

// Dispatcher owns the correlation table and the outbound send paths. Every
// envelope it emits goes through the PendingQueue, so traffic issued while
// disconnected buffers instead of failing.
type Dispatcher struct {
	sender Sender
	queue  *PendingQueue
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]ReplyFunc
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher sending through the given queue.
func NewDispatcher(sender Sender, queue *PendingQueue, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		queue:   queue,
		logger:  slog.Default(),
		pending: make(map[string]ReplyFunc),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// SendRequest submits an envelope with a fresh correlation identifier. When
// onReply is non-nil it is registered in the correlation table and fires
// exactly once when the matching reply arrives. Entries are never evicted:
// a reply that never arrives leaves its entry pending for the life of the
// adapter. The generated identifier is returned.
func (d *Dispatcher) SendRequest(ctx context.Context, header contracts.Header, body json.RawMessage, onReply ReplyFunc) (string, error) {
	env := contracts.NewEnvelope(header, body)

	if onReply != nil {
		d.mu.Lock()
		d.pending[env.ID] = onReply
		d.mu.Unlock()
	}

	if err := d.submit(ctx, env); err != nil {
		if onReply != nil {
			d.mu.Lock()
			delete(d.pending, env.ID)
			d.mu.Unlock()
		}
		return "", err
	}
	return env.ID, nil
}

// Send submits a fire-and-forget envelope with a fresh identifier.
func (d *Dispatcher) Send(ctx context.Context, header contracts.Header, body json.RawMessage) (string, error) {
	env := contracts.NewEnvelope(header, body)
	if err := d.submit(ctx, env); err != nil {
		return "", err
	}
	return env.ID, nil
}

// SendReply submits a reply envelope reusing the request identifier.
func (d *Dispatcher) SendReply(ctx context.Context, id string, body json.RawMessage) error {
	return d.submit(ctx, contracts.NewReply(id, body))
}

// SendError submits an error reply for the given request identifier.
func (d *Dispatcher) SendError(ctx context.Context, id string, body contracts.ErrorBody) error {
	env, err := contracts.NewErrorReply(id, body)
	if err != nil {
		return err
	}
	return d.submit(ctx, env)
}

// Resolve looks the envelope identifier up in the correlation table. On a
// match the stored callback fires once and the entry is removed; the return
// value reports whether a match existed.
func (d *Dispatcher) Resolve(env *contracts.Envelope) bool {
	d.mu.Lock()
	onReply, ok := d.pending[env.ID]
	if ok {
		delete(d.pending, env.ID)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}

	d.logger.Debug("resolved correlated reply", "correlationId", env.ID)
	onReply(env)
	return true
}

// PendingCount returns the number of outstanding correlated requests.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) submit(ctx context.Context, env *contracts.Envelope) error {
	payload, err := jsoncodec.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	return d.queue.EnqueueOrSend(func() error {
		return d.sender.Send(ctx, payload)
	})
}
