package transport

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig names the broker-side resources of one adapter connection.
type AMQPConfig struct {
	URL string

	// Exchange and RoutingKey address outbound envelopes to the peer. An
	// empty exchange publishes straight to the queue named by RoutingKey.
	Exchange   string
	RoutingKey string

	// Queue is the adapter's inbox. It is declared exclusive and
	// auto-delete so each session gets a private inbox that dies with it.
	Queue string
}

// AMQPDialer opens AMQP sessions: one connection plus one channel per
// session, consuming the adapter inbox and publishing to the peer.
type AMQPDialer struct {
	cfg    AMQPConfig
	logger *slog.Logger
}

// NewAMQPDialer creates an AMQP-backed dialer.
func NewAMQPDialer(cfg AMQPConfig, logger *slog.Logger) *AMQPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPDialer{cfg: cfg, logger: logger}
}

// Dial implements Dialer.
func (d *AMQPDialer) Dial(onMessage func([]byte), onClosed func(error)) (Conn, error) {
	conn, err := amqp.Dial(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("broker dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open failed: %w", err)
	}

	q, err := ch.QueueDeclare(d.cfg.Queue, false, true, true, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("inbox declare failed: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("inbox consume failed: %w", err)
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		for delivery := range deliveries {
			onMessage(delivery.Body)
		}
		var cause error
		if amqpErr := <-closeCh; amqpErr != nil {
			cause = amqpErr
		}
		onClosed(cause)
	}()

	d.logger.Debug("amqp session established", "inbox", q.Name)

	return &amqpConn{
		conn:       conn,
		ch:         ch,
		exchange:   d.cfg.Exchange,
		routingKey: d.cfg.RoutingKey,
	}, nil
}

type amqpConn struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func (c *amqpConn) Send(ctx context.Context, payload []byte) error {
	return c.ch.PublishWithContext(ctx, c.exchange, c.routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

func (c *amqpConn) Close() error {
	return c.conn.Close()
}
