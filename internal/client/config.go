package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/realtime-sync/internal/api"
	"github.com/rickgao/realtime-sync/internal/config"
	"github.com/rickgao/realtime-sync/internal/connection"
	"github.com/rickgao/realtime-sync/internal/mutation"
	"github.com/rickgao/realtime-sync/internal/netstatus"
	"github.com/rickgao/realtime-sync/internal/router"
	"github.com/rickgao/realtime-sync/internal/store"
)

// NewFromConfig builds a client with the configured WebSocket transport,
// durable store, REST remote writer and network monitor. The store and the
// probe are owned by the client and released by Close.
func NewFromConfig(ctx context.Context, cfg *config.Config, notifier Notifier, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var (
		network netstatus.Monitor
		probe   *netstatus.Probe
	)
	if cfg.Network.ProbeAddress != "" {
		probe, err = netstatus.NewProbe(netstatus.ProbeConfig{
			Address:  cfg.Network.ProbeAddress,
			Interval: cfg.Network.ProbeInterval,
			Timeout:  cfg.Network.ProbeTimeout,
		}, nil, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		network = probe
	} else {
		network = netstatus.NewManual(true, logger)
	}

	remote := api.NewClient(cfg.API.BaseURL, cfg.API.Token,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger.With("component", "api")),
	)

	c, err := New(Options{
		Socket: connection.WebSocketFactory(connection.SocketConfig{
			URL:              cfg.Transport.URL,
			Token:            cfg.Transport.Token,
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			WriteTimeout:     cfg.Transport.WriteTimeout,
			BufferSize:       cfg.Transport.ReadBuffer,
		}, logger),
		Writer:   remote,
		Store:    st,
		Network:  network,
		Notifier: notifier,
		Manager: connection.ManagerConfig{
			ReconnectBaseInterval: cfg.Connection.ReconnectBaseInterval,
			ReconnectMaxInterval:  cfg.Connection.ReconnectMaxInterval,
			MaxAttempts:           cfg.Connection.MaxAttempts,
			HeartbeatInterval:     cfg.Connection.HeartbeatInterval,
			MaxMissedHeartbeats:   cfg.Connection.MaxMissedHeartbeats,
		},
		Router: router.RouterConfig{
			OutboundBufferSize: cfg.Transport.OutboundBuffer,
		},
		Mutations: mutation.Config{
			StorageKey:     cfg.Mutations.StorageKey,
			MaxRetries:     cfg.Mutations.MaxRetries,
			ReplayInterval: cfg.Mutations.ReplayInterval,
			WriteTimeout:   cfg.API.Timeout,
		},
		NoticeDebounce: cfg.Mutations.NoticeDebounce,
		Logger:         logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	if probe != nil {
		c.starters = append(c.starters, probe.Start)
		c.closers = append(c.closers, probe.Stop)
	}
	c.closers = append(c.closers, func(context.Context) error {
		if err := st.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
		return nil
	})

	return c, nil
}
