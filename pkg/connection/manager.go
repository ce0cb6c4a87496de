package connection

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default transport parameters.
const (
	// DefaultPort is the Arcam control port.
	DefaultPort = "50000"

	// DefaultDialTimeout bounds a single dial attempt.
	DefaultDialTimeout = 5 * time.Second
)

// Connection errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes the raw transport. Tests substitute a pipe.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Config configures a Manager. The zero value of every field except
// Address is usable.
type Config struct {
	// Address is the receiver's host or host:port. A bare host gets
	// the default control port appended.
	Address string

	// DialTimeout bounds each dial attempt.
	DialTimeout time.Duration

	// Backoff tunes the reconnection schedule.
	Backoff BackoffConfig

	// Dial replaces net.Dialer, for tests.
	Dial DialFunc

	// DisableReconnect turns automatic reconnection off.
	DisableReconnect bool
}

// Manager owns the TCP connection to a receiver and its reconnection
// lifecycle. Each successfully established connection is identified by
// a fresh session ID and handed to the OnConnect callback; the caller
// runs its read loop on the conn and reports failures through
// ConnectionLost.
type Manager struct {
	mu sync.RWMutex

	addr        string
	dial        DialFunc
	dialTimeout time.Duration

	state     State
	conn      net.Conn
	sessionID string

	backoff       *Backoff
	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnect      func(sessionID string, conn net.Conn)
	onDisconnect   func(sessionID string, err error)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a connection manager for the given receiver.
func NewManager(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	dial := cfg.Dial
	if dial == nil {
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	return &Manager{
		addr:          normalizeAddress(cfg.Address),
		dial:          dial,
		dialTimeout:   timeout,
		state:         StateDisconnected,
		backoff:       NewBackoffWithConfig(cfg.Backoff),
		autoReconnect: !cfg.DisableReconnect,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}
}

// normalizeAddress appends the default control port to a bare host.
func normalizeAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, DefaultPort)
}

// Address returns the normalized receiver address.
func (m *Manager) Address() string {
	return m.addr
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// Conn returns the active connection and its session ID, or (nil, "")
// when disconnected.
func (m *Manager) Conn() (net.Conn, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected {
		return nil, ""
	}
	return m.conn, m.sessionID
}

// Connect dials the receiver. Returns ErrAlreadyConnected when a
// connection is active and ErrClosed after Close.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	conn, err := m.dial(dialCtx, m.addr)
	cancel()

	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyStateChange(StateConnecting, StateDisconnected)
		return err
	}

	m.adopt(conn, StateConnecting)
	return nil
}

// adopt installs a freshly dialed connection and fires callbacks.
func (m *Manager) adopt(conn net.Conn, oldState State) {
	sessionID := uuid.NewString()

	m.mu.Lock()
	m.conn = conn
	m.sessionID = sessionID
	m.state = StateConnected
	m.backoff.Reset()
	onConnect := m.onConnect
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnected)
	if onConnect != nil {
		onConnect(sessionID, conn)
	}
}

// ConnectionLost reports a failed connection, typically from the read
// loop. The conn is closed and, unless reconnection is disabled, the
// background loop starts dialing again.
func (m *Manager) ConnectionLost(err error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	sessionID := m.sessionID
	conn := m.conn
	m.conn = nil
	m.sessionID = ""

	autoReconnect := m.autoReconnect
	if autoReconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	onDisconnect := m.onDisconnect
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	m.notifyStateChange(StateConnected, newState)
	if onDisconnect != nil {
		onDisconnect(sessionID, err)
	}

	if autoReconnect {
		m.triggerReconnect()
	}
}

// Disconnect deliberately closes the connection. No reconnection is
// attempted; use ConnectionLost for involuntary drops.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	sessionID := m.sessionID
	conn := m.conn
	m.conn = nil
	m.sessionID = ""
	m.state = StateDisconnected
	onDisconnect := m.onDisconnect
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	m.notifyStateChange(StateConnected, StateDisconnected)
	if onDisconnect != nil {
		onDisconnect(sessionID, nil)
	}
}

// StartReconnectLoop starts the background reconnection loop.
// Must be called once before automatic reconnection will work.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close shuts down the manager and the active connection.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	conn := m.conn
	m.conn = nil
	m.sessionID = ""
	m.state = StateClosed
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	m.notifyStateChange(oldState, StateClosed)

	m.cancel()
	m.wg.Wait()
}

// triggerReconnect signals that reconnection should be attempted.
func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

// reconnectLoop runs in a goroutine and handles reconnection attempts.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect dials with backoff until connected or closed.
func (m *Manager) attemptReconnect() {
	for {
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()

		if state == StateClosed || state == StateConnected {
			return
		}

		delay := m.backoff.Next()
		attempts := m.backoff.Attempts()

		m.mu.RLock()
		onReconnecting := m.onReconnecting
		m.mu.RUnlock()
		if onReconnecting != nil {
			onReconnecting(attempts, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		if m.state == StateClosed || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(m.ctx, m.dialTimeout)
		conn, err := m.dial(dialCtx, m.addr)
		cancel()

		if err == nil {
			m.mu.RLock()
			oldState := m.state
			m.mu.RUnlock()
			m.adopt(conn, oldState)
			return
		}

		// Failed, continue with the next backoff step.
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnect sets a callback invoked with each established connection.
func (m *Manager) OnConnect(fn func(sessionID string, conn net.Conn)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = fn
}

// OnDisconnect sets a callback for connection loss. err is nil for a
// deliberate Disconnect.
func (m *Manager) OnDisconnect(fn func(sessionID string, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = fn
}

// OnReconnecting sets a callback for reconnection attempts.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// BackoffAttempts returns the current number of reconnection attempts.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

func (m *Manager) notifyStateChange(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}
