package wireflow

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wireflow/wireflow-go/health"
	"github.com/wireflow/wireflow-go/transport"
)

type clientConfig struct {
	logger         *slog.Logger
	backoff        time.Duration
	connectTimeout time.Duration
	exchange       string
	routingKey     string
	queueName      string
	health         health.Handler
	registerer     prometheus.Registerer
	dialer         transport.Dialer
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		logger:         slog.Default(),
		backoff:        1000 * time.Millisecond,
		connectTimeout: 2000 * time.Millisecond,
		routingKey:     "wireflow.broker",
		queueName:      "wireflow.adapter",
	}
}

// ClientOption configures the Client.
type ClientOption func(*clientConfig)

// WithClientLogger sets the logger used across the adapter.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithReconnectBackoff sets the fixed delay between connect attempts.
func WithReconnectBackoff(d time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.backoff = d
	}
}

// WithConnectTimeout sets the per-attempt connect timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connectTimeout = d
	}
}

// WithBrokerAddressing sets the exchange and routing key for outbound
// envelopes and the name of the adapter inbox queue.
func WithBrokerAddressing(exchange, routingKey, queue string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.exchange = exchange
		cfg.routingKey = routingKey
		cfg.queueName = queue
	}
}

// WithHealthHandler sets the health handler answering healthz probes. The
// default reports healthy while the transport is open.
func WithHealthHandler(h health.Handler) ClientOption {
	return func(cfg *clientConfig) {
		cfg.health = h
	}
}

// WithMetrics registers the adapter collectors on the given registerer.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.registerer = reg
	}
}

// WithDialer overrides the AMQP dialer, mainly for tests.
func WithDialer(d transport.Dialer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dialer = d
	}
}
