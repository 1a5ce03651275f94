package router

import (
	"log/slog"
	"sync"

	"github.com/rickgao/realtime-sync/internal/buffer"
	"github.com/rickgao/realtime-sync/internal/connection"
	"github.com/rickgao/realtime-sync/internal/event"
	"github.com/rickgao/realtime-sync/internal/protocol"
)

// Router dispatches inbound messages to typed subscribers and delivers
// outbound messages, buffering them while the connection is down.
//
// Inbound dispatch and the flush-on-connect run on the event loop the
// Connection Manager posts to, so handlers never run concurrently.
type Router struct {
	cfg    RouterConfig
	conn   Conn
	logger *slog.Logger

	subsMu sync.RWMutex
	subs   map[protocol.Type]*event.Feed[protocol.Message]
	global *event.Feed[protocol.Message]

	// sendMu orders direct sends against the flush. online only turns
	// true once everything buffered before it has been written.
	sendMu   sync.Mutex
	online   bool
	outbound *buffer.Growable[[]byte]

	detach []func()

	// Stats
	mu          sync.Mutex
	received    int64
	dispatched  int64
	parseErrors int64
	replies     int64
	sent        int64
	buffered    int64
	flushes     int64
}

// NewRouter creates a Message Router on top of conn. Call Start to attach it.
func NewRouter(cfg RouterConfig, conn Conn, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutboundBufferSize <= 0 {
		cfg.OutboundBufferSize = DefaultRouterConfig().OutboundBufferSize
	}
	logger = logger.With("component", "router")

	return &Router{
		cfg:      cfg,
		conn:     conn,
		logger:   logger,
		subs:     make(map[protocol.Type]*event.Feed[protocol.Message]),
		global:   event.NewFeed[protocol.Message]("message", logger),
		outbound: buffer.New[[]byte](cfg.OutboundBufferSize),
	}
}

// Start subscribes the router to connection events.
func (r *Router) Start() {
	r.detach = append(r.detach,
		r.conn.OnFrame(r.handleFrame),
		r.conn.OnConnected(func(connection.Connected) { r.flush() }),
		r.conn.OnDisconnected(func(connection.Disconnected) { r.goOffline() }),
	)

	if r.conn.IsConnected() {
		r.flush()
	}

	r.logger.Info("message router started")
}

// Stop detaches the router from the connection. Buffered messages are kept.
func (r *Router) Stop() {
	for _, fn := range r.detach {
		fn()
	}
	r.detach = nil
	r.goOffline()

	r.logger.Info("message router stopped", "pending", r.outbound.Len())
}

// Subscribe registers fn for messages of type t and returns a function
// that removes it. Handlers for a type run in registration order.
func (r *Router) Subscribe(t protocol.Type, fn Handler) func() {
	r.subsMu.Lock()
	feed, ok := r.subs[t]
	if !ok {
		feed = event.NewFeed[protocol.Message](string(t), r.logger)
		r.subs[t] = feed
	}
	r.subsMu.Unlock()

	return feed.Subscribe(fn)
}

// Unsubscribe removes every handler registered for type t.
func (r *Router) Unsubscribe(t protocol.Type) {
	r.subsMu.Lock()
	feed, ok := r.subs[t]
	delete(r.subs, t)
	r.subsMu.Unlock()

	if ok {
		feed.Reset()
	}
}

// OnMessage registers fn for every non-heartbeat inbound message. Global
// handlers run before typed handlers.
func (r *Router) OnMessage(fn Handler) func() {
	return r.global.Subscribe(fn)
}

// Send transmits a message now if the connection is up, otherwise buffers
// it for the next connect. An error is returned only when the payload
// cannot be encoded.
func (r *Router) Send(t protocol.Type, action string, payload any, targetID string) error {
	msg, err := protocol.NewMessage(t, action, payload, targetID)
	if err != nil {
		return err
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if r.online {
		err := r.conn.Send(data)
		if err == nil {
			r.mu.Lock()
			r.sent++
			r.mu.Unlock()
			return nil
		}
		r.logger.Debug("send failed, buffering", "type", t, "error", err)
		r.online = false
	}

	r.outbound.Push(data)

	r.mu.Lock()
	r.buffered++
	r.mu.Unlock()

	r.logger.Debug("message buffered", "type", t, "pending", r.outbound.Len())
	return nil
}

// ClearBuffer discards every buffered outbound message and returns how
// many were dropped.
func (r *Router) ClearBuffer() int {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	n := r.outbound.Clear()
	if n > 0 {
		r.logger.Info("outbound buffer cleared", "dropped", n)
	}
	return n
}

// Pending returns the number of buffered outbound messages.
func (r *Router) Pending() int {
	return r.outbound.Len()
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.subsMu.RLock()
	subs := 0
	for _, feed := range r.subs {
		subs += feed.Len()
	}
	r.subsMu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	return RouterStats{
		MessagesReceived:   r.received,
		MessagesDispatched: r.dispatched,
		ParseErrors:        r.parseErrors,
		HeartbeatReplies:   r.replies,
		MessagesSent:       r.sent,
		MessagesBuffered:   r.buffered,
		Flushes:            r.flushes,
		Pending:            r.outbound.Len(),
		Subscriptions:      subs,
	}
}

// flush drains the outbound buffer in FIFO order, then opens the router
// for direct sends. A failed write puts the unsent tail back in front.
func (r *Router) flush() {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	items := r.outbound.DrainTo(0)
	for i, data := range items {
		if err := r.conn.Send(data); err != nil {
			r.outbound.PushFront(items[i:]...)
			r.logger.Warn("outbound flush interrupted",
				"flushed", i,
				"pending", len(items)-i,
				"error", err,
			)
			return
		}
	}

	r.online = true

	r.mu.Lock()
	r.sent += int64(len(items))
	r.flushes++
	r.mu.Unlock()

	if len(items) > 0 {
		r.logger.Info("outbound buffer flushed", "count", len(items))
	}
}

func (r *Router) goOffline() {
	r.sendMu.Lock()
	r.online = false
	r.sendMu.Unlock()
}

// handleFrame decodes and dispatches one inbound frame.
func (r *Router) handleFrame(f connection.Frame) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	msg, err := protocol.Decode(f.Data)
	if err != nil {
		r.logger.Warn("failed to decode message", "error", err)
		r.mu.Lock()
		r.parseErrors++
		r.mu.Unlock()
		return
	}

	if msg.IsHeartbeatReply() {
		r.conn.AckHeartbeat()
		r.mu.Lock()
		r.replies++
		r.mu.Unlock()
		return
	}

	r.global.Emit(msg)

	r.subsMu.RLock()
	feed := r.subs[msg.Type]
	r.subsMu.RUnlock()

	if feed == nil || feed.Emit(msg) == 0 {
		r.logger.Debug("no subscribers for message", "type", msg.Type, "action", msg.Action)
		return
	}

	r.mu.Lock()
	r.dispatched++
	r.mu.Unlock()
}
