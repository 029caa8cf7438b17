package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotConnected is returned by Send while no underlying connection
	// exists.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned after a forced close has terminated the
	// transport.
	ErrClosed = errors.New("transport closed")

	// ErrConnectTimeout marks a connect attempt that did not complete
	// within the configured timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	errShutdown = errors.New("shutting down")
)

// State is the lifecycle state of the transport.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Conn is one established session with the broker.
type Conn interface {
	// Send transmits one payload. It fails when the session has ended.
	Send(ctx context.Context, payload []byte) error

	// Close tears the session down.
	Close() error
}

// Dialer opens one Conn per connect attempt. onMessage delivers inbound
// payloads for the life of the session; onClosed fires when the session
// ends, carrying the terminating error if there was one.
type Dialer interface {
	Dial(onMessage func(payload []byte), onClosed func(err error)) (Conn, error)
}

// Listener receives transport lifecycle notifications.
type Listener interface {
	OnConnecting(attempt int)
	OnOpen()
	OnMessage(payload []byte)
	OnClose(forced bool)
	OnError(err error)
}

// Transport owns the reconnect loop around a Dialer.
type Transport struct {
	dialer         Dialer
	listener       Listener
	backoff        time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	forced  bool
	started bool
	done    chan struct{}

	// notifyMu serializes listener callbacks issued from the connect loop
	// and from the session receive goroutine.
	notifyMu sync.Mutex
}

// Option configures the Transport.
type Option func(*Transport)

// WithBackoff sets the fixed delay between connect attempts.
func WithBackoff(d time.Duration) Option {
	return func(t *Transport) {
		t.backoff = d
	}
}

// WithConnectTimeout sets the per-attempt connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.connectTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New creates a transport. The connect loop begins on Start.
func New(dialer Dialer, listener Listener, options ...Option) *Transport {
	t := &Transport{
		dialer:         dialer,
		listener:       listener,
		backoff:        1000 * time.Millisecond,
		connectTimeout: 2000 * time.Millisecond,
		logger:         slog.Default(),
		state:          StateConnecting,
		done:           make(chan struct{}),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Start launches the connect loop. Starting twice or after Close is an
// error.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.forced {
		return ErrClosed
	}
	if t.started {
		return errors.New("transport already started")
	}
	t.started = true

	go t.run()
	return nil
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsOpen reports whether an underlying connection is established.
func (t *Transport) IsOpen() bool {
	return t.State() == StateOpen
}

// Send transmits a payload over the current connection. It fails with
// ErrNotConnected when no connection exists and ErrClosed after a forced
// close; it never queues.
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	forced := t.forced
	t.mu.Unlock()

	if forced {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, payload)
}

// Close terminates the transport. Reconnection stops and a final close
// notification with the forced flag is raised. Close is idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.forced {
		t.mu.Unlock()
		return nil
	}
	t.forced = true
	t.state = StateClosing
	conn := t.conn
	started := t.started
	close(t.done)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if !started {
		// No loop to deliver the terminal notification.
		t.setState(StateClosed)
		t.notify(func(l Listener) { l.OnClose(true) })
	}
	return nil
}

// Refresh closes the current underlying connection without setting the
// forced flag, so the normal reconnect path takes over. It is a no-op while
// disconnected.
func (t *Transport) Refresh() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (t *Transport) run() {
	defer func() {
		t.setState(StateClosed)
		t.notify(func(l Listener) { l.OnClose(true) })
	}()

	attempt := 1
	announced := false
	for {
		select {
		case <-t.done:
			return
		default:
		}

		t.setState(StateConnecting)
		if !announced {
			t.notify(func(l Listener) { l.OnConnecting(attempt) })
		}
		announced = false

		conn, sessionClosed, err := t.dial()
		if err != nil {
			if errors.Is(err, errShutdown) {
				return
			}
			// A never-opened connection failing is not a loss of
			// service, so no close notification here.
			t.logger.Error("connect attempt failed",
				"attempt", attempt,
				"error", err)
			attempt++
			if !t.waitBackoff() {
				return
			}
			continue
		}

		t.mu.Lock()
		if t.forced {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.state = StateOpen
		t.mu.Unlock()

		t.logger.Info("connection open", "attempts", attempt)
		attempt = 1
		t.notify(func(l Listener) { l.OnOpen() })

		var closeErr error
		select {
		case closeErr = <-sessionClosed:
		case <-t.done:
			_ = conn.Close()
			return
		}

		t.mu.Lock()
		t.conn = nil
		forced := t.forced
		t.mu.Unlock()

		if closeErr != nil {
			t.notify(func(l Listener) { l.OnError(closeErr) })
		}
		if forced {
			return
		}

		t.setState(StateConnecting)
		t.notify(func(l Listener) { l.OnConnecting(attempt) })
		announced = true
		// The loss of an established session is reported once; the
		// fail/retry cycles that follow stay quiet until the next open.
		t.notify(func(l Listener) { l.OnClose(false) })
		t.logger.Warn("connection lost, reconnecting", "error", closeErr)

		if !t.waitBackoff() {
			return
		}
	}
}

// dial runs one connect attempt against the configured timeout. An attempt
// that outlives the timeout is aborted as soon as it completes.
func (t *Transport) dial() (Conn, <-chan error, error) {
	sessionClosed := make(chan error, 1)

	type dialResult struct {
		conn Conn
		err  error
	}
	res := make(chan dialResult, 1)

	go func() {
		conn, err := t.dialer.Dial(t.deliver, func(err error) {
			select {
			case sessionClosed <- err:
			default:
			}
		})
		res <- dialResult{conn: conn, err: err}
	}()

	timer := time.NewTimer(t.connectTimeout)
	defer timer.Stop()

	select {
	case r := <-res:
		return r.conn, sessionClosed, r.err

	case <-timer.C:
		go func() {
			if r := <-res; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, nil, ErrConnectTimeout

	case <-t.done:
		go func() {
			if r := <-res; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, nil, errShutdown
	}
}

func (t *Transport) waitBackoff() bool {
	select {
	case <-time.After(t.backoff):
		return true
	case <-t.done:
		return false
	}
}

func (t *Transport) deliver(payload []byte) {
	t.notify(func(l Listener) { l.OnMessage(payload) })
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateClosed {
		return
	}
	if t.forced && s != StateClosed {
		return
	}
	t.state = s
}

func (t *Transport) notify(fn func(Listener)) {
	if t.listener == nil {
		return
	}
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	fn(t.listener)
}
