package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wireflow/wireflow-go/contracts"
	"github.com/wireflow/wireflow-go/health"
	"github.com/wireflow/wireflow-go/internal/jsoncodec"
	"github.com/wireflow/wireflow-go/messaging"
)

// Request headers carrying the trigger routing fields.
const (
	HeaderRouteRef         = "X-Workflow-Route"
	HeaderConnectorName    = "X-Connector-Name"
	HeaderConnectorVersion = "X-Connector-Version"
	HeaderOperationName    = "X-Operation-Name"
)

// HealthPath is the reserved HTTP health-check path.
const HealthPath = "/healthz"

// RouteInfo identifies the workflow route of one trigger invocation.
type RouteInfo struct {
	Ref       string
	Connector string
	Version   string
	Operation string
}

// CompleteFunc finalizes one trigger invocation. output becomes the body of
// the outgoing trigger request. A non-nil onResponse makes the request
// correlated and receives the workflow reply; nil sends fire-and-forget.
// Calling it with both arguments nil aborts without triggering. Either way
// the surrounding HTTP exchange settles exactly once.
type CompleteFunc func(output json.RawMessage, onResponse func(*contracts.Envelope))

// TriggerHandler is the externally supplied handler invoked once the
// workflow metadata has been resolved. It must call complete to finish the
// HTTP request.
type TriggerHandler func(w http.ResponseWriter, r *http.Request, meta json.RawMessage, route RouteInfo, complete CompleteFunc)

// Requester issues envelopes over the adapter connection.
type Requester interface {
	SendRequest(ctx context.Context, header contracts.Header, body json.RawMessage, onReply messaging.ReplyFunc) (string, error)
	Send(ctx context.Context, header contracts.Header, body json.RawMessage) (string, error)
}

// Bridge serves the HTTP trigger surface.
type Bridge struct {
	requester Requester
	trigger   TriggerHandler
	health    health.Handler
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	triggers  prometheus.Counter
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithHealth sets the health handler backing the /healthz endpoint. Without
// one the endpoint reports unhealthy.
func WithHealth(h health.Handler) Option {
	return func(b *Bridge) {
		b.health = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithMetricsRegistry exposes the registry on /metrics and registers the
// bridge's trigger counter on it.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(b *Bridge) {
		b.gatherer = reg
		b.triggers = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wireflow",
			Subsystem: "bridge",
			Name:      "trigger_requests_total",
			Help:      "Trigger invocations accepted over HTTP.",
		})
		reg.MustRegister(b.triggers)
	}
}

// New creates a bridge over the given requester and trigger handler.
func New(requester Requester, trigger TriggerHandler, options ...Option) (*Bridge, error) {
	if requester == nil {
		return nil, fmt.Errorf("requester cannot be nil")
	}
	if trigger == nil {
		return nil, fmt.Errorf("trigger handler cannot be nil")
	}

	b := &Bridge{
		requester: requester,
		trigger:   trigger,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(b)
	}

	return b, nil
}

// Handler returns the HTTP handler serving the trigger surface.
func (b *Bridge) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(HealthPath, b.handleHealth)
	if b.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(b.gatherer, promhttp.HandlerOpts{}))
	}
	r.HandleFunc("/*", b.handleTrigger)

	return r
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.StatusUnhealthy
	if b.health != nil {
		status = b.health.Check(r.Context())
	}

	if status == health.StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// metaRequest is the body of a trigger_meta_request envelope.
type metaRequest struct {
	WorkflowRef string `json:"workflow_ref"`
	Connector   string `json:"connector"`
	Version     string `json:"version"`
	Operation   string `json:"operation"`
}

// exchangeWriter guards the ResponseWriter of one trigger exchange.
// Correlation entries never expire, so a reply can arrive after the caller
// has gone away and the HTTP handler has returned; once the exchange is
// released, writes are discarded instead of touching a finished response.
type exchangeWriter struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	released bool
	discard  http.Header
}

func (e *exchangeWriter) Header() http.Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		if e.discard == nil {
			e.discard = http.Header{}
		}
		return e.discard
	}
	return e.w.Header()
}

func (e *exchangeWriter) WriteHeader(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.w.WriteHeader(status)
}

func (e *exchangeWriter) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return len(p), nil
	}
	return e.w.Write(p)
}

// release cuts the underlying writer loose. Any write in flight finishes
// first; everything after is dropped.
func (e *exchangeWriter) release() {
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
}

func (e *exchangeWriter) alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.released
}

func (b *Bridge) handleTrigger(w http.ResponseWriter, r *http.Request) {
	route, err := routeFromHeaders(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.triggers != nil {
		b.triggers.Inc()
	}

	ctx := r.Context()
	ew := &exchangeWriter{w: w}
	defer ew.release()

	done := make(chan struct{})
	var settle sync.Once
	finish := func() {
		settle.Do(func() { close(done) })
	}

	complete := func(output json.RawMessage, onResponse func(*contracts.Envelope)) {
		if output == nil && onResponse == nil {
			// Abort: settle the exchange without triggering the workflow.
			finish()
			return
		}

		header := contracts.Header{
			Message:     contracts.TriggerRequestMessage,
			WorkflowRef: route.Ref,
		}

		if onResponse == nil {
			if _, err := b.requester.Send(ctx, header, output); err != nil {
				b.logger.Error("trigger send failed", "route", route.Ref, "error", err)
			}
			finish()
			return
		}

		_, err := b.requester.SendRequest(ctx, header, output, func(reply *contracts.Envelope) {
			onResponse(reply)
			finish()
		})
		if err != nil {
			b.logger.Error("trigger request failed", "route", route.Ref, "error", err)
			finish()
		}
	}

	metaBody, err := jsoncodec.Marshal(metaRequest{
		WorkflowRef: route.Ref,
		Connector:   route.Connector,
		Version:     route.Version,
		Operation:   route.Operation,
	})
	if err != nil {
		http.Error(w, "failed to encode metadata request", http.StatusInternalServerError)
		return
	}

	metaHeader := contracts.Header{
		Message:     contracts.TriggerMetaRequestMessage,
		WorkflowRef: route.Ref,
	}
	_, err = b.requester.SendRequest(ctx, metaHeader, metaBody, func(reply *contracts.Envelope) {
		if !ew.alive() {
			// The caller is gone; do not invoke the workflow for a
			// dead exchange.
			b.logger.Debug("metadata reply after exchange ended", "route", route.Ref)
			return
		}
		if reply.Header.Error {
			b.logger.Warn("metadata lookup failed", "route", route.Ref)
			ew.WriteHeader(http.StatusBadGateway)
			finish()
			return
		}

		// The trigger handler may block writing the HTTP response; run it
		// off the inbound timeline so other envelopes keep flowing.
		go b.trigger(ew, r, reply.Body, route, complete)
	})
	if err != nil {
		http.Error(w, "failed to send metadata request", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func routeFromHeaders(r *http.Request) (RouteInfo, error) {
	route := RouteInfo{
		Ref:       r.Header.Get(HeaderRouteRef),
		Connector: r.Header.Get(HeaderConnectorName),
		Version:   r.Header.Get(HeaderConnectorVersion),
		Operation: r.Header.Get(HeaderOperationName),
	}

	for header, value := range map[string]string{
		HeaderRouteRef:         route.Ref,
		HeaderConnectorName:    route.Connector,
		HeaderConnectorVersion: route.Version,
		HeaderOperationName:    route.Operation,
	} {
		if value == "" {
			return RouteInfo{}, fmt.Errorf("missing required header %s", header)
		}
	}

	return route, nil
}
