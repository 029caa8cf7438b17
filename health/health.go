// Package health defines the liveness probe contract shared by the inbound
// healthz envelope path and the HTTP /healthz endpoint.
package health

import "context"

// Status is the probe outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Handler reports adapter liveness.
type Handler interface {
	Check(ctx context.Context) Status
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context) Status

// Check implements Handler.
func (f HandlerFunc) Check(ctx context.Context) Status {
	return f(ctx)
}

// Probe is the reply body of a health-check envelope.
type Probe struct {
	State Status `json:"state"`
}

// ConnectedChecker reports healthy while isOpen returns true. It is the
// default checker wired to the transport state.
func ConnectedChecker(isOpen func() bool) Handler {
	return HandlerFunc(func(ctx context.Context) Status {
		if isOpen() {
			return StatusHealthy
		}
		return StatusUnhealthy
	})
}
