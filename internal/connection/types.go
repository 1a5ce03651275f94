package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout (no pong)")
)

// Close codes sent with the close frame.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

// State is the lifecycle state of the logical connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateManuallyClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateManuallyClosed:
		return "manually_closed"
	default:
		return "unknown"
	}
}

// Frame is one inbound transport message with its local receive time.
type Frame struct {
	Data       []byte    // Raw message bytes
	ReceivedAt time.Time // Local timestamp when the read returned
}

// SocketConfig configures a Transport Socket.
type SocketConfig struct {
	URL              string        // e.g. wss://realtime.example.com/ws
	Token            string        // Appended as ?token= when set
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Inbound frame channel buffer size
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	ReconnectBaseInterval time.Duration // Delay before the first retry
	ReconnectMaxInterval  time.Duration // Backoff ceiling
	MaxAttempts           int           // Consecutive failed attempts before giving up
	HeartbeatInterval     time.Duration // Ping period while connected
	MaxMissedHeartbeats   int           // Unanswered pings before a forced reconnect (0 = never)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBaseInterval: 1 * time.Second,
		ReconnectMaxInterval:  30 * time.Second,
		MaxAttempts:           10,
		HeartbeatInterval:     30 * time.Second,
	}
}

// Backoff returns the delay before the next attempt after the given number
// of consecutive failures: min(base * 2^failures, max).
func (c ManagerConfig) Backoff(failures int) time.Duration {
	base := c.ReconnectBaseInterval
	if base <= 0 {
		base = time.Second
	}
	ceiling := c.ReconnectMaxInterval
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}

	delay := base
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// StateChange is emitted on every state transition.
type StateChange struct {
	From State
	To   State
}

// Connected is emitted when the transport opens.
type Connected struct {
	At        time.Time
	Reconnect bool // True if a connection had been established before
}

// Disconnected is emitted when an open connection goes away.
type Disconnected struct {
	Err    error // Nil for a manual disconnect
	Manual bool
}

// ReconnectAttempt is emitted when a retry is scheduled.
type ReconnectAttempt struct {
	Attempt int           // 1-based number of the upcoming retry
	Delay   time.Duration // Wait before the retry is issued
}

// ReconnectAbandoned is emitted once when MaxAttempts is exhausted.
type ReconnectAbandoned struct {
	Attempts int
	LastErr  error
}

// Stats is a snapshot of the manager.
type Stats struct {
	State          State
	Attempt        int   // Consecutive failed attempts
	Abandoned      bool  // True after MaxAttempts was reached
	Connects       int64 // Successful opens
	Drops          int64 // Unexpected closes
	MissedPongs    int
	LastError      string
	LastConnected  time.Time
	HeartbeatsSent int64
}
