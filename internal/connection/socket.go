package connection

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the Transport Socket: one persistent bidirectional channel.
// A Socket is used for a single connection attempt; the manager creates a
// fresh one for every attempt.
type Socket interface {
	// Connect opens the channel. It returns once the channel is open or failed.
	Connect(ctx context.Context) error

	// Close closes the channel with the given close code and reason.
	Close(code int, reason string) error

	// Send writes one message.
	Send(data []byte) error

	// Messages returns inbound frames in the order they were read.
	Messages() <-chan Frame

	// Errors receives at most one error when the channel fails.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// SocketFactory creates the Socket for a new connection attempt.
type SocketFactory func() Socket

// WebSocketFactory returns a factory producing gorilla/websocket sockets.
func WebSocketFactory(cfg SocketConfig, logger *slog.Logger) SocketFactory {
	return func() Socket {
		return NewSocket(cfg, logger)
	}
}

// wsSocket implements Socket over gorilla/websocket.
type wsSocket struct {
	cfg    SocketConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan Frame
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewSocket creates a WebSocket-backed Socket.
func NewSocket(cfg SocketConfig, logger *slog.Logger) Socket {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultSocketConfig().BufferSize
	}

	return &wsSocket{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Frame, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the server and starts the read loop.
func (s *wsSocket) Connect(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	target, err := dialURL(s.cfg.URL, s.cfg.Token)
	if err != nil {
		return err
	}

	header := http.Header{}
	for k, v := range s.cfg.Header {
		header[k] = v
	}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.readLoop()

	s.logger.Debug("websocket connected", "url", s.cfg.URL)

	return nil
}

// Close sends a close frame and tears the connection down.
func (s *wsSocket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	s.mu.Unlock()

	close(s.done)

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	return conn.Close()
}

// Send writes raw bytes as a text frame.
func (s *wsSocket) Send(data []byte) error {
	s.mu.RLock()
	if !s.connected {
		s.mu.RUnlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel.
func (s *wsSocket) Messages() <-chan Frame {
	return s.messages
}

// Errors returns the error channel.
func (s *wsSocket) Errors() <-chan error {
	return s.errors
}

// IsConnected returns the current connection state.
func (s *wsSocket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readLoop reads frames until the connection fails or is closed.
// Frames are never dropped; a slow consumer applies backpressure.
func (s *wsSocket) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-s.done:
				// Errors after Close() are expected
				return
			default:
			}
			select {
			case s.errors <- err:
			default:
			}
			return
		}

		select {
		case s.messages <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-s.done:
			return
		}
	}
}

// dialURL appends the session token as a query parameter.
func dialURL(raw, token string) (string, error) {
	if token == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
