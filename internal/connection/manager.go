package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/realtime-sync/internal/event"
	"github.com/rickgao/realtime-sync/internal/protocol"
)

// Manager owns the single logical connection and its lifecycle.
//
// Public methods may be called from any goroutine. Every event is posted
// to the shared loop while the state lock is held, so subscribers observe
// events in the same order the state changed.
type Manager struct {
	cfg       ManagerConfig
	newSocket SocketFactory
	loop      *event.Loop
	logger    *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu             sync.Mutex
	state          State
	epoch          uint64 // Bumped by every attempt and by Disconnect; stale callbacks compare against it
	attempt        int    // Consecutive failed attempts
	abandoned      bool
	everConnected  bool
	sock           Socket
	dialCancel     context.CancelFunc
	reconnectTimer *time.Timer
	connDone       chan struct{} // Closed when the current connection ends
	missed         int

	// Stats
	lastErr        error
	lastConnected  time.Time
	connects       int64
	drops          int64
	heartbeatsSent int64

	stateFeed        *event.Feed[StateChange]
	connectedFeed    *event.Feed[Connected]
	disconnectedFeed *event.Feed[Disconnected]
	attemptFeed      *event.Feed[ReconnectAttempt]
	abandonedFeed    *event.Feed[ReconnectAbandoned]
	frameFeed        *event.Feed[Frame]
}

// NewManager creates a Connection Manager in StateDisconnected.
func NewManager(cfg ManagerConfig, newSocket SocketFactory, loop *event.Loop, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "connection")

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:              cfg,
		newSocket:        newSocket,
		loop:             loop,
		logger:           logger,
		baseCtx:          ctx,
		baseCancel:       cancel,
		state:            StateDisconnected,
		stateFeed:        event.NewFeed[StateChange]("state_change", logger),
		connectedFeed:    event.NewFeed[Connected]("connected", logger),
		disconnectedFeed: event.NewFeed[Disconnected]("disconnected", logger),
		attemptFeed:      event.NewFeed[ReconnectAttempt]("reconnect_attempt", logger),
		abandonedFeed:    event.NewFeed[ReconnectAbandoned]("reconnect_abandoned", logger),
		frameFeed:        event.NewFeed[Frame]("frame", logger),
	}
}

// Connect starts a connection attempt unless one is already in progress
// or established. From Reconnecting it skips the remaining backoff delay.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnecting, StateConnected:
		m.logger.Debug("connect ignored", "state", m.state)
		return
	case StateReconnecting:
		m.stopTimerLocked()
	default:
		// Manual connect from Disconnected/ManuallyClosed starts a fresh policy.
		m.attempt = 0
		m.abandoned = false
	}

	m.startAttemptLocked()
}

// Disconnect closes the connection and cancels every timer and in-flight
// attempt. No automatic reconnection happens until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()

	m.epoch++
	m.stopTimerLocked()
	m.stopConnLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	old := m.sock
	m.sock = nil
	wasConnected := m.state == StateConnected
	m.setStateLocked(StateManuallyClosed)
	if wasConnected {
		m.post(func() { m.disconnectedFeed.Emit(Disconnected{Manual: true}) })
	}
	m.mu.Unlock()

	if old != nil {
		old.Close(CloseNormal, "Manual disconnect")
	}

	m.logger.Info("disconnected manually")
}

// Close disconnects and releases the manager for good.
func (m *Manager) Close() {
	m.Disconnect()
	m.baseCancel()
}

// Send writes an encoded message on the open connection.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	if m.state != StateConnected || m.sock == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	sock, epoch := m.sock, m.epoch
	m.mu.Unlock()

	if err := sock.Send(data); err != nil {
		// A failed write leaves the channel unusable.
		m.handleSocketError(epoch, err)
		return err
	}
	return nil
}

// IsConnected reports whether the transport is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the manager.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		State:          m.state,
		Attempt:        m.attempt,
		Abandoned:      m.abandoned,
		Connects:       m.connects,
		Drops:          m.drops,
		MissedPongs:    m.missed,
		LastConnected:  m.lastConnected,
		HeartbeatsSent: m.heartbeatsSent,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// AckHeartbeat records a heartbeat reply from the server.
func (m *Manager) AckHeartbeat() {
	m.mu.Lock()
	m.missed = 0
	m.mu.Unlock()
}

// NetworkChanged reacts to the Network Status Monitor. Coming back online
// while waiting out a backoff delay retries immediately.
func (m *Manager) NetworkChanged(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !online || m.state != StateReconnecting {
		return
	}

	m.logger.Info("network online, retrying now", "attempt", m.attempt+1)
	m.stopTimerLocked()
	m.startAttemptLocked()
}

// OnStateChange subscribes to state transitions.
func (m *Manager) OnStateChange(fn func(StateChange)) func() {
	return m.stateFeed.Subscribe(fn)
}

// OnConnected subscribes to transport open events.
func (m *Manager) OnConnected(fn func(Connected)) func() {
	return m.connectedFeed.Subscribe(fn)
}

// OnDisconnected subscribes to connection loss, manual or not.
func (m *Manager) OnDisconnected(fn func(Disconnected)) func() {
	return m.disconnectedFeed.Subscribe(fn)
}

// OnReconnectAttempt subscribes to scheduled retries.
func (m *Manager) OnReconnectAttempt(fn func(ReconnectAttempt)) func() {
	return m.attemptFeed.Subscribe(fn)
}

// OnReconnectAbandoned subscribes to the terminal give-up signal.
func (m *Manager) OnReconnectAbandoned(fn func(ReconnectAbandoned)) func() {
	return m.abandonedFeed.Subscribe(fn)
}

// OnFrame subscribes to inbound frames.
func (m *Manager) OnFrame(fn func(Frame)) func() {
	return m.frameFeed.Subscribe(fn)
}

// startAttemptLocked issues a new connection attempt.
func (m *Manager) startAttemptLocked() {
	m.epoch++
	epoch := m.epoch

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.dialCancel = cancel

	m.setStateLocked(StateConnecting)

	sock := m.newSocket()
	go m.dial(ctx, cancel, epoch, sock)
}

// dial runs one attempt and applies its outcome unless it became stale.
func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, epoch uint64, sock Socket) {
	err := sock.Connect(ctx)
	cancel()

	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnecting {
		// Disconnect (or a newer attempt) happened while dialing.
		m.mu.Unlock()
		if err == nil {
			sock.Close(CloseNormal, "stale attempt")
		}
		m.logger.Debug("ignoring stale connection attempt", "error", err)
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.lastErr = err
		m.logger.Warn("connection attempt failed",
			"attempt", m.attempt+1,
			"error", err,
		)
		m.failLocked(err)
		m.mu.Unlock()
		return
	}

	now := time.Now()
	reconnect := m.everConnected

	m.sock = sock
	m.attempt = 0
	m.abandoned = false
	m.missed = 0
	m.everConnected = true
	m.connects++
	m.lastConnected = now

	m.setStateLocked(StateConnected)
	m.post(func() { m.connectedFeed.Emit(Connected{At: now, Reconnect: reconnect}) })

	done := make(chan struct{})
	m.connDone = done
	m.mu.Unlock()

	m.logger.Info("connected", "reconnect", reconnect)

	go m.pump(epoch, sock, done)
	go m.heartbeatLoop(epoch, sock, done)
}

// failLocked accounts for a failed attempt and either schedules a retry or gives up.
func (m *Manager) failLocked(err error) {
	m.attempt++

	if m.cfg.MaxAttempts > 0 && m.attempt >= m.cfg.MaxAttempts {
		m.setStateLocked(StateDisconnected)
		if !m.abandoned {
			m.abandoned = true
			ev := ReconnectAbandoned{Attempts: m.attempt, LastErr: err}
			m.post(func() { m.abandonedFeed.Emit(ev) })
			m.logger.Error("reconnect abandoned",
				"attempts", m.attempt,
				"error", err,
			)
		}
		return
	}

	m.scheduleLocked()
}

// scheduleLocked arms the single reconnect timer.
func (m *Manager) scheduleLocked() {
	delay := m.cfg.Backoff(m.attempt)
	epoch := m.epoch

	m.setStateLocked(StateReconnecting)
	m.stopTimerLocked()

	ev := ReconnectAttempt{Attempt: m.attempt + 1, Delay: delay}
	m.post(func() { m.attemptFeed.Emit(ev) })

	m.logger.Info("reconnect scheduled",
		"attempt", ev.Attempt,
		"delay", delay,
	)

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.fireReconnect(epoch)
	})
}

// fireReconnect runs when the backoff delay elapses.
func (m *Manager) fireReconnect(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch || m.state != StateReconnecting {
		return
	}
	m.reconnectTimer = nil
	m.startAttemptLocked()
}

// dropLocked handles the loss of an open connection and returns the
// socket the caller must close after unlocking.
func (m *Manager) dropLocked(err error) Socket {
	m.stopConnLocked()

	old := m.sock
	m.sock = nil
	m.drops++
	m.lastErr = err

	m.post(func() { m.disconnectedFeed.Emit(Disconnected{Err: err}) })
	m.scheduleLocked()

	return old
}

// pump forwards inbound frames to the loop until the connection ends.
func (m *Manager) pump(epoch uint64, sock Socket, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return

		case f := <-sock.Messages():
			m.post(func() { m.frameFeed.Emit(f) })

		case err := <-sock.Errors():
			// Deliver frames read before the failure first.
			m.drainFrames(sock)
			m.handleSocketError(epoch, err)
			return
		}
	}
}

func (m *Manager) drainFrames(sock Socket) {
	for {
		select {
		case f := <-sock.Messages():
			m.post(func() { m.frameFeed.Emit(f) })
		default:
			return
		}
	}
}

func (m *Manager) handleSocketError(epoch uint64, err error) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.logger.Warn("connection lost", "error", err)
	old := m.dropLocked(err)
	m.mu.Unlock()

	if old != nil {
		old.Close(CloseGoingAway, "connection lost")
	}
}

// heartbeatLoop sends a ping every HeartbeatInterval while connected.
func (m *Manager) heartbeatLoop(epoch uint64, sock Socket, done <-chan struct{}) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !m.beat(epoch, sock) {
				return
			}
		}
	}
}

// beat sends one ping, or force-closes a stale connection.
func (m *Manager) beat(epoch uint64, sock Socket) bool {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnected {
		m.mu.Unlock()
		return false
	}

	if m.cfg.MaxMissedHeartbeats > 0 && m.missed >= m.cfg.MaxMissedHeartbeats {
		m.logger.Warn("no heartbeat reply, connection stale",
			"missed", m.missed,
		)
		old := m.dropLocked(ErrHeartbeatTimeout)
		m.mu.Unlock()
		if old != nil {
			old.Close(CloseGoingAway, "heartbeat timeout")
		}
		return false
	}

	m.missed++
	m.heartbeatsSent++
	m.mu.Unlock()

	data, err := protocol.Ping(time.Now()).Encode()
	if err != nil {
		return true
	}
	if err := sock.Send(data); err != nil {
		m.logger.Debug("failed to send heartbeat", "error", err)
		m.handleSocketError(epoch, err)
		return false
	}
	return true
}

func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.post(func() { m.stateFeed.Emit(StateChange{From: from, To: to}) })
}

func (m *Manager) stopTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) stopConnLocked() {
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
}

func (m *Manager) post(fn func()) {
	if !m.loop.Post(fn) {
		m.logger.Debug("event loop closed, dropping event")
	}
}
