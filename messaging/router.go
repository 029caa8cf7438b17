package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wireflow/wireflow-go/contracts"
	"github.com/wireflow/wireflow-go/health"
	"github.com/wireflow/wireflow-go/internal/jsoncodec"
)

// Router classifies every inbound envelope and dispatches it. Classification
// priority is fixed: correlated reply, health-check probe, then named
// request. Every reply the router produces goes back out through the
// dispatcher's queued send path, so replies issued while disconnected
// buffer instead of dropping.
type Router struct {
	dispatcher   *Dispatcher
	registry     *Registry
	health       health.Handler
	logger       *slog.Logger
	onErrorReply func(code string)
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithHealthHandler sets the handler invoked for healthz probes. Without
// one, probes answer unhealthy.
func WithHealthHandler(h health.Handler) RouterOption {
	return func(r *Router) {
		r.health = h
	}
}

// WithErrorReplyHook runs fn for every error reply the router emits, keyed
// by the error kind.
func WithErrorReplyHook(fn func(code string)) RouterOption {
	return func(r *Router) {
		r.onErrorReply = fn
	}
}

// NewRouter creates a router over the given dispatcher and registry.
func NewRouter(dispatcher *Dispatcher, registry *Registry, options ...RouterOption) *Router {
	r := &Router{
		dispatcher: dispatcher,
		registry:   registry,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Route processes one raw inbound payload. It never panics and never
// returns handler failures to the transport; failures become error replies
// to the sender.
func (r *Router) Route(ctx context.Context, payload []byte) {
	var env contracts.Envelope
	if err := jsoncodec.Unmarshal(payload, &env); err != nil {
		r.logger.Error("discarding undecodable envelope", "error", err)
		return
	}
	if env.ID == "" {
		r.logger.Error("discarding envelope", "error", contracts.ErrMissingID)
		return
	}

	switch {
	case env.IsReply():
		if !r.dispatcher.Resolve(&env) {
			r.sendError(ctx, env.ID, contracts.ErrorBody{
				Code:    contracts.ErrCodeInvalidPayload,
				Message: fmt.Sprintf("no pending request for id %s", env.ID),
			})
		}

	case env.Header.Message == contracts.HealthCheckMessage:
		r.routeHealthCheck(ctx, &env)

	default:
		r.routeRequest(ctx, &env)
	}
}

func (r *Router) routeHealthCheck(ctx context.Context, env *contracts.Envelope) {
	status := health.StatusUnhealthy
	if r.health != nil {
		status = r.health.Check(ctx)
	}

	body, err := jsoncodec.Marshal(health.Probe{State: status})
	if err != nil {
		r.logger.Error("failed to encode health probe", "error", err)
		return
	}
	if err := r.dispatcher.SendReply(ctx, env.ID, body); err != nil {
		r.logger.Error("failed to send health reply", "error", err)
	}
}

func (r *Router) routeRequest(ctx context.Context, env *contracts.Envelope) {
	handler, ok := r.registry.Lookup(env.Header.Message)
	if !ok {
		r.sendError(ctx, env.ID, contracts.ErrorBody{
			Code:    contracts.ErrCodeNotImplemented,
			Message: fmt.Sprintf("no handler for operation %q", env.Header.Message),
		})
		return
	}

	result := r.invoke(ctx, handler, env)
	if result.Failed() {
		r.sendError(ctx, env.ID, *result.Err())
		return
	}

	if err := r.dispatcher.SendReply(ctx, env.ID, result.Body()); err != nil {
		r.logger.Error("failed to send reply",
			"operation", env.Header.Message,
			"correlationId", env.ID,
			"error", err)
	}
}

// invoke runs the handler behind a recover boundary. A panic maps to an
// exception failure; it must never escape the router or crash the adapter.
func (r *Router) invoke(ctx context.Context, handler Handler, env *contracts.Envelope) (result contracts.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked",
				"operation", env.Header.Message,
				"correlationId", env.ID,
				"panic", rec)
			result = contracts.Failure(contracts.ErrCodeException, fmt.Sprint(rec), nil)
		}
	}()

	return handler.Handle(ctx, env.Body)
}

func (r *Router) sendError(ctx context.Context, id string, body contracts.ErrorBody) {
	if r.onErrorReply != nil {
		r.onErrorReply(body.Code)
	}
	r.logger.Warn("replying with error",
		"correlationId", id,
		"code", body.Code,
		"message", body.Message)

	if err := r.dispatcher.SendError(ctx, id, body); err != nil {
		r.logger.Error("failed to send error reply", "correlationId", id, "error", err)
	}
}
