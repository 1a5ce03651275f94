package router

import (
	"github.com/rickgao/realtime-sync/internal/connection"
	"github.com/rickgao/realtime-sync/internal/protocol"
)

// Conn is the part of the Connection Manager the router depends on.
type Conn interface {
	Send(data []byte) error
	IsConnected() bool
	AckHeartbeat()
	OnConnected(fn func(connection.Connected)) func()
	OnDisconnected(fn func(connection.Disconnected)) func()
	OnFrame(fn func(connection.Frame)) func()
}

// Handler receives one inbound message.
type Handler func(protocol.Message)

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	OutboundBufferSize int // Initial outbound buffer capacity. Default: 256
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		OutboundBufferSize: 256,
	}
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived   int64
	MessagesDispatched int64
	ParseErrors        int64
	HeartbeatReplies   int64
	MessagesSent       int64
	MessagesBuffered   int64 // Total ever buffered
	Flushes            int64
	Pending            int // Currently waiting in the outbound buffer
	Subscriptions      int // Typed handlers across all types
}
