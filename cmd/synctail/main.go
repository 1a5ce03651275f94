// synctail connects to the realtime endpoint and prints inbound messages to
// the console. Useful for checking a server and a config without the full
// agent.
//
// Usage: go run ./cmd/synctail --config configs/syncd.yaml [--type task_update] [--verbose]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/realtime-sync/internal/client"
	"github.com/rickgao/realtime-sync/internal/config"
	"github.com/rickgao/realtime-sync/internal/connection"
	"github.com/rickgao/realtime-sync/internal/logging"
	"github.com/rickgao/realtime-sync/internal/protocol"
)

func main() {
	configPath := flag.String("config", "configs/syncd.yaml", "path to config file")
	msgType := flag.String("type", "", "only print messages of this type")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Tailing never needs durable state.
	cfg.Store = config.StoreConfig{Driver: "memory"}
	cfg.Logging.Level = "debug"

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.NewFromConfig(ctx, cfg, client.LogNotifier{Logger: logger}, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	if err := c.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}

	show := func(m protocol.Message) { printMessage(m, *verbose) }
	if *msgType != "" {
		c.Subscribe(protocol.Type(*msgType), show)
	} else {
		c.OnMessage(show)
	}

	c.OnStateChange(func(ev connection.StateChange) {
		fmt.Printf("[STATE] %s -> %s\n", ev.From, ev.To)
	})
	c.OnReconnectAttempt(func(ev connection.ReconnectAttempt) {
		fmt.Printf("[RECONNECT] attempt %d in %s\n", ev.Attempt, ev.Delay)
	})

	c.Connect()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logStats(logger, c.Status())
			}
		}
	}()

	logger.Info("tailing started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	if err := c.Close(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func printMessage(m protocol.Message, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(m, "", "  ")
		fmt.Printf("[%s] %s\n", m.Type, data)
		return
	}

	target := ""
	if m.TargetID != "" {
		target = " -> " + m.TargetID
	}
	if summary, ok := protocol.Describe(m); ok {
		fmt.Printf("[%s] %s %s%s: %s\n",
			m.Type,
			m.Time().Format(time.TimeOnly),
			m.Action,
			target,
			summary,
		)
		return
	}
	fmt.Printf("[%s] %s %s%s (%d bytes)\n",
		m.Type,
		m.Time().Format(time.TimeOnly),
		m.Action,
		target,
		len(m.Payload),
	)
}

func logStats(logger *slog.Logger, st client.Status) {
	logger.Info("stats",
		"state", st.Connection.State,
		"connects", st.Connection.Connects,
		"drops", st.Connection.Drops,
		"heartbeats", st.Connection.HeartbeatsSent,
		"received", st.Router.MessagesReceived,
		"dispatched", st.Router.MessagesDispatched,
		"parse_errors", st.Router.ParseErrors,
		"heartbeat_replies", st.Router.HeartbeatReplies,
	)
}
