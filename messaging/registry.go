package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wireflow/wireflow-go/contracts"
)

// Handler processes one named inbound request and produces a Result.
type Handler interface {
	Handle(ctx context.Context, body json.RawMessage) contracts.Result
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, body json.RawMessage) contracts.Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, body json.RawMessage) contracts.Result {
	return f(ctx, body)
}

// Registry maps operation names to handlers. Handlers are registered at
// configuration time and persist for the adapter's lifetime.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to an operation name. The reserved health-check
// name is rejected; the router services it without touching the registry.
func (r *Registry) Register(operation string, handler Handler) error {
	if operation == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if operation == contracts.HealthCheckMessage {
		return fmt.Errorf("operation name %q is reserved", operation)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[operation]; exists {
		return fmt.Errorf("handler already registered for operation %q", operation)
	}
	r.handlers[operation] = handler
	return nil
}

// Lookup returns the handler for an operation name.
func (r *Registry) Lookup(operation string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[operation]
	return h, ok
}

// Operations returns the registered operation names.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	return ops
}
