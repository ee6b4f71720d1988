// Package push maintains the live alarm channel to the AirBnG backend: one
// auto-reconnecting push connection per authenticated member, an explicit
// connection state machine, and a listener registry for inbound events.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/HaejunJang/airbng/pkg/token"
)

// Defaults for the reconnect policy.
const (
	DefaultReadyTimeout = 10 * time.Second
	DefaultBaseBackoff  = time.Second
	DefaultMaxBackoff   = 30 * time.Second
	DefaultMaxAttempts  = 5
	DefaultWakeDelay    = 2 * time.Second

	// wakeMinInterval coalesces foreground flaps: repeated WakeUp calls
	// inside this window schedule at most one reconnect.
	wakeMinInterval = 10 * time.Second
)

var errReadyTimeout = errors.New("push: timed out waiting for ready event")

// Config configures a Manager.
type Config struct {
	// URL is the backend's push endpoint.
	URL string

	// Tokens supplies the session credential. Connecting requires a live
	// credential; losing it tears the channel down on the next failure.
	Tokens *token.Store

	// Dialer opens transports. Nil means the websocket dialer.
	Dialer Dialer

	Logger *slog.Logger

	// ReadyTimeout is how long a dialed transport may wait for the server's
	// ready event before the attempt counts as failed.
	ReadyTimeout time.Duration

	// BaseBackoff and MaxBackoff shape the reconnect delay
	// min(BaseBackoff·2^attempt, MaxBackoff).
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// MaxAttempts is the reconnect budget before the channel goes to
	// StateFailed.
	MaxAttempts int

	// WakeDelay is the pause between a foreground wake and the connect it
	// triggers.
	WakeDelay time.Duration
}

// Manager supervises the push channel. All transitions are guarded by the
// current state tag plus a generation counter, so callbacks from superseded
// attempts are inert.
type Manager struct {
	cfg      Config
	dialer   Dialer
	logger   *slog.Logger
	registry *registry
	wake     *rate.Limiter

	mu           sync.Mutex
	state        State
	gen          uint64
	attempt      int
	conn         Conn
	cancelDial   context.CancelFunc
	readyTimer   *time.Timer
	backoffTimer *time.Timer
	wakeTimer    *time.Timer
	stateSubs    map[int]func(State)
	stateSubSeq  int
}

// NewManager builds a Manager in StateDisconnected. Nothing is dialed until
// Connect.
func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.WakeDelay <= 0 {
		cfg.WakeDelay = DefaultWakeDelay
	}

	return &Manager{
		cfg:       cfg,
		dialer:    cfg.Dialer,
		logger:    cfg.Logger,
		registry:  newRegistry(),
		wake:      rate.NewLimiter(rate.Every(wakeMinInterval), 1),
		state:     StateDisconnected,
		stateSubs: make(map[int]func(State)),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the channel. It is a no-op unless the manager is
// Disconnected or Failed, and a no-op without an authenticated member.
// Connecting from Failed resets the reconnect budget.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != StateDisconnected && m.state != StateFailed {
		m.mu.Unlock()
		return
	}
	if m.cfg.Tokens.SubjectID() == "" {
		m.mu.Unlock()
		m.logger.Debug("push connect skipped, no authenticated member")
		return
	}
	m.attempt = 0
	m.startAttemptLocked()
	m.mu.Unlock()

	m.notifyState(StateConnecting)
}

// Disconnect tears the channel down from any state: the transport is closed,
// every pending timer cancelled, the attempt counter reset and outstanding
// callbacks invalidated.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.clearTimersLocked()
	m.cancelDialLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.attempt = 0
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	m.mu.Unlock()

	if changed {
		m.notifyState(StateDisconnected)
	}
}

// WakeUp signals that the host surface re-entered the foreground. While
// Disconnected or Failed with an authenticated member present it schedules a
// fresh connect after a short delay, resetting the reconnect budget just like
// a manual Connect; repeated wakes are coalesced.
func (m *Manager) WakeUp() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.wakeableLocked() {
		return
	}
	if m.wakeTimer != nil || !m.wake.Allow() {
		return
	}

	g := m.gen
	m.wakeTimer = time.AfterFunc(m.cfg.WakeDelay, func() {
		m.mu.Lock()
		m.wakeTimer = nil
		if g != m.gen || !m.wakeableLocked() {
			m.mu.Unlock()
			return
		}
		m.attempt = 0
		m.startAttemptLocked()
		m.mu.Unlock()

		m.notifyState(StateConnecting)
	})
}

// wakeableLocked reports whether a foreground wake may dial. Caller holds
// m.mu.
func (m *Manager) wakeableLocked() bool {
	if m.state != StateDisconnected && m.state != StateFailed {
		return false
	}
	return m.cfg.Tokens.SubjectID() != ""
}

// Subscribe registers fn for events named event and returns the handle used
// to unsubscribe.
func (m *Manager) Subscribe(event string, fn func(Event)) *Subscription {
	return m.registry.add(event, fn)
}

// SubscribeAlarms registers fn for decoded alarm events. Payloads that fail
// to decode are logged and dropped.
func (m *Manager) SubscribeAlarms(fn func(Alarm)) *Subscription {
	return m.registry.add(EventAlarm, func(ev Event) {
		alarm, err := DecodeAlarm(ev)
		if err != nil {
			m.logger.Warn("dropping undecodable alarm payload", "error", err)
			return
		}
		fn(alarm)
	})
}

// Unsubscribe removes a subscription. It is idempotent.
func (m *Manager) Unsubscribe(sub *Subscription) {
	m.registry.remove(sub)
}

// OnStateChange registers an observer for state transitions and returns a
// function that removes it.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.mu.Lock()
	id := m.stateSubSeq
	m.stateSubSeq++
	m.stateSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.stateSubs, id)
		m.mu.Unlock()
	}
}

// startAttemptLocked begins a new connection attempt under a fresh
// generation. Caller holds m.mu.
func (m *Manager) startAttemptLocked() {
	m.clearTimersLocked()
	m.cancelDialLocked()

	m.gen++
	g := m.gen
	m.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel

	header := http.Header{}
	if cred, ok := m.cfg.Tokens.Get(); ok {
		header.Set("Authorization", "Bearer "+cred.Raw)
	}

	go m.dial(ctx, g, header)
}

func (m *Manager) dial(ctx context.Context, g uint64, header http.Header) {
	conn, err := m.dialer.Dial(ctx, m.cfg.URL, header)
	if err != nil {
		m.handleFailure(g, fmt.Errorf("dial: %w", err))
		return
	}

	m.mu.Lock()
	if g != m.gen || m.state != StateConnecting {
		// Superseded while dialing.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.readyTimer = time.AfterFunc(m.cfg.ReadyTimeout, func() {
		m.handleFailure(g, errReadyTimeout)
	})
	m.mu.Unlock()

	go m.readLoop(g, conn)
}

func (m *Manager) readLoop(g uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleFailure(g, err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			// A bad payload must not kill the connection.
			m.logger.Warn("dropping malformed push message", "error", err)
			continue
		}

		if env.Event == EventReady {
			m.handleReady(g)
			continue
		}

		m.mu.Lock()
		stale := g != m.gen
		m.mu.Unlock()
		if stale {
			return
		}

		m.registry.dispatch(Event{Name: env.Event, Data: env.Data})
	}
}

func (m *Manager) handleReady(g uint64) {
	m.mu.Lock()
	if g != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.clearTimersLocked()
	m.attempt = 0
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.Info("push channel connected")
	m.notifyState(StateConnected)
}

// handleFailure is the single funnel for transport errors, dial errors and
// ready timeouts. Stale generations are ignored outright.
func (m *Manager) handleFailure(g uint64, cause error) {
	m.mu.Lock()
	if g != m.gen || m.state == StateDisconnected || m.state == StateFailed {
		m.mu.Unlock()
		return
	}

	// Invalidate the failed attempt so its other callbacks (read loop
	// noticing the close, a late ready timer) cannot re-enter this path.
	m.gen++
	m.clearTimersLocked()
	m.cancelDialLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}

	if m.attempt >= m.cfg.MaxAttempts {
		m.state = StateFailed
		m.mu.Unlock()

		m.logger.Error("push channel failed, reconnect budget exhausted", "error", cause)
		m.notifyState(StateFailed)
		return
	}

	delay := m.backoffDelay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.state = StateReconnecting

	g2 := m.gen
	m.backoffTimer = time.AfterFunc(delay, func() { m.retry(g2) })
	m.mu.Unlock()

	m.logger.Warn("push channel error, scheduling reconnect",
		"error", cause, "attempt", attempt, "delay", delay)
	m.notifyState(StateReconnecting)
}

func (m *Manager) retry(g uint64) {
	m.mu.Lock()
	if g != m.gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	if m.cfg.Tokens.SubjectID() == "" {
		// Session went away while backing off; stand down cleanly.
		m.state = StateDisconnected
		m.attempt = 0
		m.mu.Unlock()
		m.notifyState(StateDisconnected)
		return
	}
	m.startAttemptLocked()
	m.mu.Unlock()

	m.notifyState(StateConnecting)
}

// backoffDelay returns min(BaseBackoff·2^attempt, MaxBackoff).
func (m *Manager) backoffDelay(attempt int) time.Duration {
	d := m.cfg.BaseBackoff << uint(attempt)
	if d > m.cfg.MaxBackoff || d <= 0 {
		d = m.cfg.MaxBackoff
	}
	return d
}

func (m *Manager) clearTimersLocked() {
	for _, t := range []*time.Timer{m.readyTimer, m.backoffTimer, m.wakeTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.readyTimer, m.backoffTimer, m.wakeTimer = nil, nil, nil
}

func (m *Manager) cancelDialLocked() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
}

func (m *Manager) notifyState(s State) {
	m.mu.Lock()
	subs := make([]func(State), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
