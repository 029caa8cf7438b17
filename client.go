// Package wireflow is the client-side messaging adapter: it exposes
// request/response and fire-and-forget operations over a single long-lived,
// auto-reconnecting connection to a remote broker.
package wireflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wireflow/wireflow-go/contracts"
	"github.com/wireflow/wireflow-go/health"
	"github.com/wireflow/wireflow-go/internal/jsoncodec"
	"github.com/wireflow/wireflow-go/internal/metrics"
	"github.com/wireflow/wireflow-go/messaging"
	"github.com/wireflow/wireflow-go/transport"
)

// Client composes the transport, outbound queue, correlation dispatcher and
// inbound router into one adapter instance. State is owned per instance:
// one adapter per connection, discarded on Close.
type Client struct {
	transport  *transport.Transport
	queue      *messaging.PendingQueue
	dispatcher *messaging.Dispatcher
	registry   *messaging.Registry
	router     *messaging.Router
	health     health.Handler
	metrics    *metrics.Adapter
	cfg        *clientConfig
}

// NewClient creates an adapter for the given broker URL. The connection is
// not dialed until Connect.
func NewClient(brokerURL string, options ...ClientOption) (*Client, error) {
	if brokerURL == "" {
		return nil, fmt.Errorf("broker URL cannot be empty")
	}

	cfg := newClientConfig()
	for _, opt := range options {
		opt(cfg)
	}

	c := &Client{
		cfg:      cfg,
		queue:    messaging.NewPendingQueue(messaging.WithQueueLogger(cfg.logger)),
		registry: messaging.NewRegistry(),
	}

	dialer := cfg.dialer
	if dialer == nil {
		dialer = transport.NewAMQPDialer(transport.AMQPConfig{
			URL:        brokerURL,
			Exchange:   cfg.exchange,
			RoutingKey: cfg.routingKey,
			Queue:      cfg.queueName,
		}, cfg.logger)
	}

	c.transport = transport.New(dialer, &clientListener{c: c},
		transport.WithBackoff(cfg.backoff),
		transport.WithConnectTimeout(cfg.connectTimeout),
		transport.WithLogger(cfg.logger),
	)

	c.dispatcher = messaging.NewDispatcher(c.transport, c.queue,
		messaging.WithDispatcherLogger(cfg.logger),
	)

	c.health = cfg.health
	if c.health == nil {
		c.health = health.ConnectedChecker(c.transport.IsOpen)
	}

	routerOpts := []messaging.RouterOption{
		messaging.WithRouterLogger(cfg.logger),
		messaging.WithHealthHandler(c.health),
	}
	if cfg.registerer != nil {
		c.metrics = metrics.New(cfg.registerer, c.queue.Len, c.dispatcher.PendingCount)
		routerOpts = append(routerOpts, messaging.WithErrorReplyHook(func(code string) {
			c.metrics.ErrorReplies.WithLabelValues(code).Inc()
		}))
	}
	c.router = messaging.NewRouter(c.dispatcher, c.registry, routerOpts...)

	return c, nil
}

// Connect starts the transport's connect loop. The adapter keeps redialing
// with the configured backoff until the broker accepts or Close is called.
func (c *Client) Connect() error {
	return c.transport.Start()
}

// RegisterHandler binds a handler to an operation name. Handlers are meant
// to be registered before Connect and persist for the adapter's lifetime.
func (c *Client) RegisterHandler(operation string, handler messaging.Handler) error {
	return c.registry.Register(operation, handler)
}

// RegisterHandlerFunc registers a function as a handler.
func (c *Client) RegisterHandlerFunc(operation string, handler messaging.HandlerFunc) error {
	return c.registry.Register(operation, handler)
}

// Send issues a fire-and-forget operation. While disconnected the send
// buffers and replays after the next open.
func (c *Client) Send(ctx context.Context, operation string, body json.RawMessage) error {
	_, err := c.dispatcher.Send(ctx, contracts.Header{Message: operation}, body)
	return err
}

// Request issues a correlated operation and blocks until the reply arrives
// or ctx is done. An error reply decodes into the returned error. A context
// cancellation abandons the wait but does not evict the correlation entry;
// a late reply resolves it silently.
func (c *Client) Request(ctx context.Context, operation string, body json.RawMessage) (*contracts.Envelope, error) {
	replyCh := make(chan *contracts.Envelope, 1)

	_, err := c.dispatcher.SendRequest(ctx, contracts.Header{Message: operation}, body, func(reply *contracts.Envelope) {
		replyCh <- reply
	})
	if err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		if reply.Header.Error {
			var body contracts.ErrorBody
			if err := jsoncodec.Unmarshal(reply.Body, &body); err != nil {
				return nil, fmt.Errorf("request failed with undecodable error body: %w", err)
			}
			return nil, &body
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatcher exposes the correlation dispatcher, e.g. for the HTTP trigger
// bridge.
func (c *Client) Dispatcher() *messaging.Dispatcher {
	return c.dispatcher
}

// Health returns the adapter's health handler.
func (c *Client) Health() health.Handler {
	return c.health
}

// State returns the transport state.
func (c *Client) State() transport.State {
	return c.transport.State()
}

// Refresh voluntarily reconnects: the current connection closes and the
// normal reconnect path takes over.
func (c *Client) Refresh() {
	c.transport.Refresh()
}

// Close terminates the adapter. Reconnection stops and all further sends
// fail.
func (c *Client) Close() error {
	return c.transport.Close()
}

// clientListener wires transport notifications into the queue and router.
// The transport serializes these calls.
type clientListener struct {
	c *Client
}

func (l *clientListener) OnConnecting(attempt int) {
	if m := l.c.metrics; m != nil {
		m.ConnectAttempts.Inc()
	}
}

func (l *clientListener) OnOpen() {
	if m := l.c.metrics; m != nil {
		m.Opens.Inc()
	}
	l.c.queue.Open()
}

func (l *clientListener) OnMessage(payload []byte) {
	l.c.router.Route(context.Background(), payload)
}

func (l *clientListener) OnClose(forced bool) {
	if forced {
		l.c.queue.Shutdown()
		return
	}
	l.c.queue.Suspend()
	if m := l.c.metrics; m != nil {
		m.SessionLosses.Inc()
	}
}

func (l *clientListener) OnError(err error) {
	// Transport errors are surfaced but do not drive reconnection;
	// close and timeout do.
	l.c.cfg.logger.Error("transport error", "error", err)
}
