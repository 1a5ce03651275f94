package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Transport.URL == "" {
		return errors.New("transport.url is required")
	}
	u, err := url.Parse(c.Transport.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("transport.url must be a ws:// or wss:// URL, got %q", c.Transport.URL)
	}

	if c.Connection.ReconnectBaseInterval <= 0 {
		return errors.New("connection.reconnect_base_interval must be > 0")
	}
	if c.Connection.ReconnectMaxInterval < c.Connection.ReconnectBaseInterval {
		return errors.New("connection.reconnect_max_interval must be >= reconnect_base_interval")
	}
	if c.Connection.MaxAttempts < 1 {
		return errors.New("connection.max_attempts must be >= 1")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if c.Connection.MaxMissedHeartbeats < 0 {
		return errors.New("connection.max_missed_heartbeats must be >= 0")
	}

	if c.Mutations.MaxRetries < 1 {
		return errors.New("mutations.max_retries must be >= 1")
	}
	if c.Mutations.ReplayInterval <= 0 {
		return errors.New("mutations.replay_interval must be > 0")
	}
	if c.Mutations.StorageKey == "" {
		return errors.New("mutations.storage_key is required")
	}

	if err := c.Store.validate(); err != nil {
		return err
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}

	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "memory":
		return nil
	case "file":
		if s.File.Path == "" {
			return errors.New("store.file.path is required for the file driver")
		}
		return nil
	case "postgres":
		if s.Table == "" {
			return errors.New("store.table is required for the postgres driver")
		}
		return s.Postgres.validate("store.postgres")
	case "redis":
		if s.Redis.URL == "" {
			return errors.New("store.redis.url is required for the redis driver")
		}
		return nil
	default:
		return fmt.Errorf("store.driver must be one of memory, file, postgres, redis, got %q", s.Driver)
	}
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
