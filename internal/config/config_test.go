package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
transport:
  url: wss://realtime.example.com/ws
  token: abc
connection:
  max_attempts: 5
  heartbeat_interval: 15s
store:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: sync_db
    user: syncuser
    password: syncpass
api:
  base_url: https://api.example.com/v1
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.URL != "wss://realtime.example.com/ws" {
		t.Errorf("Transport.URL = %q, want %q", cfg.Transport.URL, "wss://realtime.example.com/ws")
	}
	if cfg.Connection.MaxAttempts != 5 {
		t.Errorf("Connection.MaxAttempts = %d, want 5", cfg.Connection.MaxAttempts)
	}
	if cfg.Connection.HeartbeatInterval != 15*time.Second {
		t.Errorf("Connection.HeartbeatInterval = %v, want 15s", cfg.Connection.HeartbeatInterval)
	}
	if cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store.Postgres.Host = %q, want %q", cfg.Store.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SYNC_TOKEN", "secret123")

	yaml := `
transport:
  url: ws://localhost:8080/ws
  token: ${TEST_SYNC_TOKEN}
api:
  base_url: http://localhost:8080/api
  token: ${TEST_SYNC_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.Token != "secret123" {
		t.Errorf("Transport.Token = %q, want %q", cfg.Transport.Token, "secret123")
	}
	if cfg.API.Token != "secret123" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "secret123")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeTempFile(t, "transport: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
transport:
  url: ws://localhost:8080/ws
api:
  base_url: http://localhost:8080/api
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Connection.ReconnectBaseInterval != DefaultReconnectBaseInterval {
		t.Errorf("ReconnectBaseInterval = %v, want default %v", cfg.Connection.ReconnectBaseInterval, DefaultReconnectBaseInterval)
	}
	if cfg.Connection.ReconnectMaxInterval != DefaultReconnectMaxInterval {
		t.Errorf("ReconnectMaxInterval = %v, want default %v", cfg.Connection.ReconnectMaxInterval, DefaultReconnectMaxInterval)
	}
	if cfg.Connection.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", cfg.Connection.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Connection.MaxMissedHeartbeats != 0 {
		t.Errorf("MaxMissedHeartbeats = %d, want 0", cfg.Connection.MaxMissedHeartbeats)
	}
	if cfg.Mutations.MaxRetries != DefaultMaxRetries {
		t.Errorf("Mutations.MaxRetries = %d, want default %d", cfg.Mutations.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Mutations.StorageKey != "mutation_queue" {
		t.Errorf("Mutations.StorageKey = %q, want %q", cfg.Mutations.StorageKey, "mutation_queue")
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Store.Postgres.Port != 0 {
		t.Errorf("Store.Postgres.Port = %d, want 0 for non-postgres driver", cfg.Store.Postgres.Port)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultServerPort)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config should validate: %v", err)
	}
}

func TestApplyDefaults_Postgres(t *testing.T) {
	cfg := Config{Store: StoreConfig{Driver: "postgres"}}
	cfg.ApplyDefaults()

	if cfg.Store.Postgres.Port != DefaultDBPort {
		t.Errorf("Port = %d, want %d", cfg.Store.Postgres.Port, DefaultDBPort)
	}
	if cfg.Store.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("MaxConns = %d, want %d", cfg.Store.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Store.Postgres.SSLMode != DefaultDBSSLMode {
		t.Errorf("SSLMode = %q, want %q", cfg.Store.Postgres.SSLMode, DefaultDBSSLMode)
	}
}

func validConfig() Config {
	cfg := Config{
		Transport: TransportConfig{URL: "wss://realtime.example.com/ws"},
		API:       APIConfig{BaseURL: "https://api.example.com"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing transport url",
			mutate:  func(c *Config) { c.Transport.URL = "" },
			wantErr: "transport.url is required",
		},
		{
			name:    "http transport url",
			mutate:  func(c *Config) { c.Transport.URL = "http://example.com" },
			wantErr: `transport.url must be a ws:// or wss:// URL, got "http://example.com"`,
		},
		{
			name:    "max below base interval",
			mutate:  func(c *Config) { c.Connection.ReconnectMaxInterval = time.Millisecond },
			wantErr: "connection.reconnect_max_interval must be >= reconnect_base_interval",
		},
		{
			name:    "negative max attempts",
			mutate:  func(c *Config) { c.Connection.MaxAttempts = -1 },
			wantErr: "connection.max_attempts must be >= 1",
		},
		{
			name:    "negative missed heartbeats",
			mutate:  func(c *Config) { c.Connection.MaxMissedHeartbeats = -1 },
			wantErr: "connection.max_missed_heartbeats must be >= 0",
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.Mutations.MaxRetries = -2 },
			wantErr: "mutations.max_retries must be >= 1",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "sqlite" },
			wantErr: `store.driver must be one of memory, file, postgres, redis, got "sqlite"`,
		},
		{
			name:    "file driver without path",
			mutate:  func(c *Config) { c.Store.Driver = "file" },
			wantErr: "store.file.path is required for the file driver",
		},
		{
			name:    "redis driver without url",
			mutate:  func(c *Config) { c.Store.Driver = "redis" },
			wantErr: "store.redis.url is required for the redis driver",
		},
		{
			name: "postgres missing password",
			mutate: func(c *Config) {
				c.Store.Driver = "postgres"
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 4}
			},
			wantErr: "store.postgres.password is required",
		},
		{
			name: "postgres min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Store.Driver = "postgres"
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "store.postgres.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "missing api base url",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: "api.base_url is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "server port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, `
transport:
  url: ws://localhost/ws
`)
	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("expected validation error for missing api.base_url")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
