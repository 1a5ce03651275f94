package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/realtime-sync/internal/connection"
	"github.com/rickgao/realtime-sync/internal/event"
	"github.com/rickgao/realtime-sync/internal/mutation"
	"github.com/rickgao/realtime-sync/internal/netstatus"
	"github.com/rickgao/realtime-sync/internal/protocol"
	"github.com/rickgao/realtime-sync/internal/router"
	"github.com/rickgao/realtime-sync/internal/store"
)

// Errors
var (
	ErrNoSocket = errors.New("client: socket factory is required")
	ErrNoWriter = errors.New("client: remote writer is required")
	ErrClosed   = errors.New("client: closed")
)

// Options holds the collaborators and settings for New.
type Options struct {
	Socket    connection.SocketFactory // Required
	Writer    mutation.Writer          // Required; default writer for every entity type
	Store     store.Store              // Default: in-memory
	Network   netstatus.Monitor        // Default: always online
	Notifier  Notifier                 // Default: LogNotifier
	Manager   connection.ManagerConfig
	Router    router.RouterConfig
	Mutations mutation.Config

	NoticeDebounce time.Duration // Default: 2s
	Logger         *slog.Logger
}

// Status is a point-in-time view of the client.
type Status struct {
	Online     bool
	Connection connection.Stats
	Router     router.RouterStats
	Mutations  mutation.Stats
}

// Client is the realtime/offline-sync client.
type Client struct {
	logger   *slog.Logger
	loop     *event.Loop
	manager  *connection.Manager
	router   *router.Router
	queue    *mutation.Queue
	writers  *mutation.Writers
	network  netstatus.Monitor
	notifier Notifier
	notices  *debouncer

	// Owned resources started and released with the client.
	starters []func(context.Context) error
	closers  []func(context.Context) error

	mu      sync.Mutex
	started bool
	closed  bool
	unsubs  []func()
}

// New wires a client from its collaborators. Call Start before use.
func New(opts Options) (*Client, error) {
	if opts.Socket == nil {
		return nil, ErrNoSocket
	}
	if opts.Writer == nil {
		return nil, ErrNoWriter
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Network == nil {
		opts.Network = netstatus.NewManual(true, logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: logger}
	}
	if opts.NoticeDebounce <= 0 {
		opts.NoticeDebounce = 2 * time.Second
	}

	loop := event.NewLoop(logger)
	manager := connection.NewManager(opts.Manager, opts.Socket, loop, logger)
	writers := mutation.NewWriters(opts.Writer)

	c := &Client{
		logger:   logger.With("component", "client"),
		loop:     loop,
		manager:  manager,
		router:   router.NewRouter(opts.Router, manager, logger),
		queue:    mutation.NewQueue(opts.Mutations, opts.Store, writers, opts.Network, loop, logger),
		writers:  writers,
		network:  opts.Network,
		notifier: opts.Notifier,
	}
	c.notices = newDebouncer(opts.NoticeDebounce, c.notifier.Notify)
	return c, nil
}

// Start loads the persisted mutation queue and attaches every component.
// It does not open the connection; call Connect for that.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}

	c.loop.Start()
	c.router.Start()

	c.unsubs = append(c.unsubs,
		c.network.Subscribe(func(online bool) {
			c.loop.Post(func() { c.manager.NetworkChanged(online) })
		}),
		c.manager.OnReconnectAbandoned(func(ev connection.ReconnectAbandoned) {
			c.notifier.Notify(Notice{
				Kind:    NoticeReconnectAbandoned,
				Message: fmt.Sprintf("Connection lost after %d attempts. Reconnect to continue.", ev.Attempts),
				At:      time.Now(),
			})
		}),
		c.queue.OnAbandoned(func(ev mutation.Abandoned) {
			c.notices.add(ev.Operation.ID)
		}),
	)

	for _, start := range c.starters {
		if err := start(ctx); err != nil {
			return fmt.Errorf("start client: %w", err)
		}
	}

	if err := c.queue.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	c.started = true
	c.logger.Info("client started", "pending_mutations", c.queue.Len())
	return nil
}

// Connect opens the realtime connection. It is a no-op while connecting
// or connected.
func (c *Client) Connect() {
	c.manager.Connect()
}

// Disconnect closes the connection and stops automatic reconnection.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool {
	return c.manager.IsConnected()
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// Send transmits a message, or buffers it until the next connection.
func (c *Client) Send(t protocol.Type, action string, payload any, targetID string) error {
	return c.router.Send(t, action, payload, targetID)
}

// Subscribe registers fn for inbound messages of type t and returns a
// function that removes it.
func (c *Client) Subscribe(t protocol.Type, fn router.Handler) func() {
	return c.router.Subscribe(t, fn)
}

// Unsubscribe removes every handler for type t.
func (c *Client) Unsubscribe(t protocol.Type) {
	c.router.Unsubscribe(t)
}

// OnMessage registers fn for every inbound application message.
func (c *Client) OnMessage(fn router.Handler) func() {
	return c.router.OnMessage(fn)
}

// ClearOutbound discards buffered outbound messages and returns how many
// were dropped.
func (c *Client) ClearOutbound() int {
	return c.router.ClearBuffer()
}

// HandleWrites routes replayed operations of entityType and kind to w
// instead of the default writer. An empty kind matches every kind.
func (c *Client) HandleWrites(entityType string, kind mutation.Kind, w mutation.Writer) {
	c.writers.Handle(entityType, kind, w)
}

// EnqueueMutation persists a write intent and returns its operation ID.
func (c *Client) EnqueueMutation(ctx context.Context, kind mutation.Kind, entityType string, data any) (string, error) {
	return c.queue.Enqueue(ctx, kind, entityType, data)
}

// ManualSync replays pending mutations now. It fails with
// mutation.ErrOffline while the network is down.
func (c *Client) ManualSync(ctx context.Context) (mutation.ReplayResult, error) {
	return c.queue.ManualSync(ctx)
}

// ClearMutations discards every pending mutation without delivering it.
func (c *Client) ClearMutations(ctx context.Context) error {
	return c.queue.ClearAll(ctx)
}

// PendingMutations returns the queued operations in enqueue order.
func (c *Client) PendingMutations() []mutation.Operation {
	return c.queue.Snapshot()
}

// OnConnected subscribes to transport opens.
func (c *Client) OnConnected(fn func(connection.Connected)) func() {
	return c.manager.OnConnected(fn)
}

// OnDisconnected subscribes to connection loss and manual disconnects.
func (c *Client) OnDisconnected(fn func(connection.Disconnected)) func() {
	return c.manager.OnDisconnected(fn)
}

// OnStateChange subscribes to every connection state transition.
func (c *Client) OnStateChange(fn func(connection.StateChange)) func() {
	return c.manager.OnStateChange(fn)
}

// OnReconnectAttempt subscribes to scheduled reconnect attempts.
func (c *Client) OnReconnectAttempt(fn func(connection.ReconnectAttempt)) func() {
	return c.manager.OnReconnectAttempt(fn)
}

// OnReconnectAbandoned subscribes to the terminal reconnect failure.
func (c *Client) OnReconnectAbandoned(fn func(connection.ReconnectAbandoned)) func() {
	return c.manager.OnReconnectAbandoned(fn)
}

// OnMutationAbandoned subscribes to operations dropped at the retry ceiling.
func (c *Client) OnMutationAbandoned(fn func(mutation.Abandoned)) func() {
	return c.queue.OnAbandoned(fn)
}

// Status returns a snapshot of every component.
func (c *Client) Status() Status {
	return Status{
		Online:     c.network.Online(),
		Connection: c.manager.Stats(),
		Router:     c.router.Stats(),
		Mutations:  c.queue.Stats(),
	}
}

// Close disconnects, stops replay, flushes pending notices and releases
// owned resources. Buffered outbound messages are discarded with the client;
// pending mutations stay in the store.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	var errs []error

	c.manager.Close()
	if started {
		if err := c.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop mutation queue: %w", err))
		}
	}
	c.router.Stop()
	for _, fn := range unsubs {
		fn()
	}
	c.notices.stop()

	c.loop.Close()
	if started {
		select {
		case <-c.loop.Done():
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Info("client closed")
	return errors.Join(errs...)
}
