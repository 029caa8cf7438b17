package wireflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireflow/wireflow-go/contracts"
	"github.com/wireflow/wireflow-go/health"
	"github.com/wireflow/wireflow-go/internal/jsoncodec"
	"github.com/wireflow/wireflow-go/transport"
)

// scriptedConn decodes outbound envelopes and answers through respond.
type scriptedConn struct {
	mu        sync.Mutex
	sent      []*contracts.Envelope
	closeOnce sync.Once
	onMessage func([]byte)
	onClosed  func(error)
	respond   func(env *contracts.Envelope) *contracts.Envelope
}

func (c *scriptedConn) Send(ctx context.Context, payload []byte) error {
	var env contracts.Envelope
	if err := jsoncodec.Unmarshal(payload, &env); err != nil {
		return err
	}

	c.mu.Lock()
	c.sent = append(c.sent, &env)
	respond := c.respond
	c.mu.Unlock()

	if respond != nil {
		if reply := respond(&env); reply != nil {
			raw, err := jsoncodec.Marshal(reply)
			if err != nil {
				return err
			}
			go c.onMessage(raw)
		}
	}
	return nil
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { c.onClosed(nil) })
	return nil
}

func (c *scriptedConn) outbound() []*contracts.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*contracts.Envelope(nil), c.sent...)
}

func (c *scriptedConn) deliver(t *testing.T, env *contracts.Envelope) {
	t.Helper()
	raw, err := jsoncodec.Marshal(env)
	require.NoError(t, err)
	c.onMessage(raw)
}

type scriptedDialer struct {
	mu      sync.Mutex
	respond func(env *contracts.Envelope) *contracts.Envelope
	conns   []*scriptedConn
}

func (d *scriptedDialer) Dial(onMessage func([]byte), onClosed func(error)) (transport.Conn, error) {
	c := &scriptedConn{onMessage: onMessage, onClosed: onClosed, respond: d.respond}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *scriptedDialer) conn(t *testing.T) *scriptedConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.conns)
	return d.conns[len(d.conns)-1]
}

func newTestClient(t *testing.T, dialer *scriptedDialer, options ...ClientOption) *Client {
	t.Helper()
	options = append([]ClientOption{
		WithDialer(dialer),
		WithReconnectBackoff(5 * time.Millisecond),
		WithConnectTimeout(100 * time.Millisecond),
	}, options...)

	c, err := NewClient("amqp://localhost/", options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitOpen(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == transport.StateOpen
	}, 2*time.Second, 5*time.Millisecond)
}

// echoResponder answers "echo" requests with the request body.
func echoResponder(env *contracts.Envelope) *contracts.Envelope {
	if env.Header.Message != "echo" {
		return nil
	}
	return &contracts.Envelope{ID: env.ID, Body: env.Body}
}

func TestClientRequest(t *testing.T) {
	t.Run("round trip resolves the reply", func(t *testing.T) {
		dialer := &scriptedDialer{respond: echoResponder}
		c := newTestClient(t, dialer)
		require.NoError(t, c.Connect())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		reply, err := c.Request(ctx, "echo", json.RawMessage(`{"x":1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1}`, string(reply.Body))
	})

	t.Run("request issued before open buffers and still resolves", func(t *testing.T) {
		dialer := &scriptedDialer{respond: echoResponder}
		c := newTestClient(t, dialer)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		// Connect after the request is already buffered.
		resultCh := make(chan error, 1)
		go func() {
			_, err := c.Request(ctx, "echo", json.RawMessage(`{"x":2}`))
			resultCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, c.Connect())

		require.NoError(t, <-resultCh)
	})

	t.Run("error reply surfaces as an ErrorBody", func(t *testing.T) {
		dialer := &scriptedDialer{respond: func(env *contracts.Envelope) *contracts.Envelope {
			if env.Header.Message != "strict" {
				return nil
			}
			reply, _ := contracts.NewErrorReply(env.ID, contracts.ErrorBody{
				Code:    contracts.ErrCodeInvalidInput,
				Message: "field x is required",
			})
			return reply
		}}
		c := newTestClient(t, dialer)
		require.NoError(t, c.Connect())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, err := c.Request(ctx, "strict", nil)
		var body *contracts.ErrorBody
		require.ErrorAs(t, err, &body)
		assert.Equal(t, contracts.ErrCodeInvalidInput, body.Code)
	})

	t.Run("request after forced close fails", func(t *testing.T) {
		dialer := &scriptedDialer{}
		c := newTestClient(t, dialer)
		require.NoError(t, c.Connect())
		waitOpen(t, c)
		require.NoError(t, c.Close())

		assert.Eventually(t, func() bool {
			_, err := c.Request(context.Background(), "echo", nil)
			return err != nil
		}, 2*time.Second, 5*time.Millisecond)
	})
}

func TestClientSend(t *testing.T) {
	t.Run("send while disconnected replays once after open", func(t *testing.T) {
		dialer := &scriptedDialer{}
		c := newTestClient(t, dialer)

		require.NoError(t, c.Send(context.Background(), "notify", json.RawMessage(`{"n":1}`)))
		require.NoError(t, c.Connect())
		waitOpen(t, c)

		conn := dialer.conn(t)
		require.Eventually(t, func() bool {
			return len(conn.outbound()) == 1
		}, 2*time.Second, 5*time.Millisecond)

		sent := conn.outbound()
		assert.Equal(t, "notify", sent[0].Header.Message)
		assert.JSONEq(t, `{"n":1}`, string(sent[0].Body))
	})
}

func TestClientInboundRouting(t *testing.T) {
	t.Run("registered handler answers named requests", func(t *testing.T) {
		dialer := &scriptedDialer{}
		c := newTestClient(t, dialer)
		require.NoError(t, c.RegisterHandlerFunc("foo", func(ctx context.Context, body json.RawMessage) contracts.Result {
			return contracts.Success(json.RawMessage(`{"y":2}`))
		}))
		require.NoError(t, c.Connect())
		waitOpen(t, c)

		conn := dialer.conn(t)
		conn.deliver(t, &contracts.Envelope{
			ID:     "req-1",
			Header: contracts.Header{Message: "foo"},
			Body:   json.RawMessage(`{"x":1}`),
		})

		require.Eventually(t, func() bool {
			return len(conn.outbound()) == 1
		}, 2*time.Second, 5*time.Millisecond)

		reply := conn.outbound()[0]
		assert.Equal(t, "req-1", reply.ID)
		assert.Equal(t, contracts.Header{}, reply.Header)
		assert.JSONEq(t, `{"y":2}`, string(reply.Body))
	})

	t.Run("healthz answers healthy while connected", func(t *testing.T) {
		dialer := &scriptedDialer{}
		c := newTestClient(t, dialer)
		require.NoError(t, c.Connect())
		waitOpen(t, c)

		conn := dialer.conn(t)
		conn.deliver(t, &contracts.Envelope{
			ID:     "hc-1",
			Header: contracts.Header{Message: contracts.HealthCheckMessage},
		})

		require.Eventually(t, func() bool {
			return len(conn.outbound()) == 1
		}, 2*time.Second, 5*time.Millisecond)

		var probe health.Probe
		require.NoError(t, jsoncodec.Unmarshal(conn.outbound()[0].Body, &probe))
		assert.Equal(t, health.StatusHealthy, probe.State)
	})
}

func TestClientMetrics(t *testing.T) {
	t.Run("error replies are counted by kind", func(t *testing.T) {
		dialer := &scriptedDialer{}
		c := newTestClient(t, dialer, WithMetrics(prometheus.NewRegistry()))
		require.NoError(t, c.Connect())
		waitOpen(t, c)

		conn := dialer.conn(t)
		conn.deliver(t, &contracts.Envelope{ID: "ghost"})
		conn.deliver(t, &contracts.Envelope{
			ID:     "r1",
			Header: contracts.Header{Message: "unregistered"},
		})

		require.Eventually(t, func() bool {
			return len(conn.outbound()) == 2
		}, 2*time.Second, 5*time.Millisecond)

		assert.Equal(t, float64(1),
			testutil.ToFloat64(c.metrics.ErrorReplies.WithLabelValues(contracts.ErrCodeInvalidPayload)))
		assert.Equal(t, float64(1),
			testutil.ToFloat64(c.metrics.ErrorReplies.WithLabelValues(contracts.ErrCodeNotImplemented)))
	})
}

func TestClientConfiguration(t *testing.T) {
	t.Run("empty broker URL is rejected", func(t *testing.T) {
		_, err := NewClient("")
		assert.Error(t, err)
	})

	t.Run("reserved handler name is rejected", func(t *testing.T) {
		c := newTestClient(t, &scriptedDialer{})
		err := c.RegisterHandlerFunc(contracts.HealthCheckMessage, func(ctx context.Context, body json.RawMessage) contracts.Result {
			return contracts.Success(nil)
		})
		assert.Error(t, err)
	})

	t.Run("refresh keeps the adapter usable", func(t *testing.T) {
		dialer := &scriptedDialer{respond: echoResponder}
		c := newTestClient(t, dialer)
		require.NoError(t, c.Connect())
		waitOpen(t, c)

		c.Refresh()
		require.Eventually(t, func() bool {
			dialer.mu.Lock()
			defer dialer.mu.Unlock()
			return len(dialer.conns) == 2
		}, 2*time.Second, 5*time.Millisecond)
		waitOpen(t, c)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := c.Request(ctx, "echo", json.RawMessage(`{"x":3}`))
		assert.NoError(t, err)
	})
}
