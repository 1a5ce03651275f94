package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout      = 10 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
	DefaultReadBuffer            = 1000
	DefaultOutboundBuffer        = 256
	DefaultReconnectBaseInterval = 1 * time.Second
	DefaultReconnectMaxInterval  = 30 * time.Second
	DefaultMaxAttempts           = 10
	DefaultHeartbeatInterval     = 30 * time.Second
	DefaultMaxRetries            = 3
	DefaultReplayInterval        = 30 * time.Second
	DefaultStorageKey            = "mutation_queue"
	DefaultNoticeDebounce        = 2 * time.Second
	DefaultStoreDriver           = "memory"
	DefaultStoreTable            = "sync_kv"
	DefaultRedisPrefix           = "realtime-sync:"
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 4
	DefaultMinConns              = 1
	DefaultAPITimeout            = 30 * time.Second
	DefaultProbeInterval         = 10 * time.Second
	DefaultProbeTimeout          = 3 * time.Second
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
	DefaultServerPort            = 8080
)

// ApplyDefaults fills in every optional field left at its zero value.
func (c *Config) ApplyDefaults() {
	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.ReadBuffer == 0 {
		c.Transport.ReadBuffer = DefaultReadBuffer
	}
	if c.Transport.OutboundBuffer == 0 {
		c.Transport.OutboundBuffer = DefaultOutboundBuffer
	}

	// Connection defaults
	if c.Connection.ReconnectBaseInterval == 0 {
		c.Connection.ReconnectBaseInterval = DefaultReconnectBaseInterval
	}
	if c.Connection.ReconnectMaxInterval == 0 {
		c.Connection.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}

	// Mutation defaults
	if c.Mutations.MaxRetries == 0 {
		c.Mutations.MaxRetries = DefaultMaxRetries
	}
	if c.Mutations.ReplayInterval == 0 {
		c.Mutations.ReplayInterval = DefaultReplayInterval
	}
	if c.Mutations.StorageKey == "" {
		c.Mutations.StorageKey = DefaultStorageKey
	}
	if c.Mutations.NoticeDebounce == 0 {
		c.Mutations.NoticeDebounce = DefaultNoticeDebounce
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Table == "" {
		c.Store.Table = DefaultStoreTable
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Store.Driver == "postgres" {
		applyDBDefaults(&c.Store.Postgres)
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Network defaults
	if c.Network.ProbeInterval == 0 {
		c.Network.ProbeInterval = DefaultProbeInterval
	}
	if c.Network.ProbeTimeout == 0 {
		c.Network.ProbeTimeout = DefaultProbeTimeout
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
