package netstatus

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// CheckFunc reports whether the network is reachable.
type CheckFunc func(ctx context.Context) error

// ProbeConfig holds probe configuration.
type ProbeConfig struct {
	Address  string        // host:port dialed by the default check
	Interval time.Duration // Probe interval (default: 10s)
	Timeout  time.Duration // Per-probe timeout (default: 3s)
}

// DefaultProbeConfig returns sensible defaults.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Interval: 10 * time.Second,
		Timeout:  3 * time.Second,
	}
}

// Probe periodically checks reachability. It starts out online so a
// client can connect before the first probe completes.
type Probe struct {
	*state

	cfg   ProbeConfig
	check CheckFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbe creates a probe. A nil check dials cfg.Address over TCP.
func NewProbe(cfg ProbeConfig, check CheckFunc, logger *slog.Logger) (*Probe, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeConfig().Timeout
	}
	if check == nil {
		if cfg.Address == "" {
			return nil, errors.New("netstatus: probe address is required")
		}
		check = dialCheck(cfg.Address)
	}

	return &Probe{
		state: newState(true, logger.With("component", "netstatus")),
		cfg:   cfg,
		check: check,
	}, nil
}

// Start begins the probe loop.
func (p *Probe) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("network probe started",
		"address", p.cfg.Address,
		"interval", p.cfg.Interval,
	)

	return nil
}

// Stop shuts the probe loop down.
func (p *Probe) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("network probe stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Probe) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Probe immediately on start.
	p.probeOnce()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce()
		}
	}
}

func (p *Probe) probeOnce() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	err := p.check(ctx)
	if p.ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Debug("network probe failed", "error", err)
	}
	p.set(err == nil)
}

func dialCheck(address string) CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
