package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/realtime-sync/internal/config"
	"github.com/rickgao/realtime-sync/internal/database"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable key/value store. Set must not return before the
// value is durable for the backend in question.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil

	case "file":
		return NewFile(cfg.File.Path)

	case "postgres":
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s, err := NewPostgres(ctx, pool, cfg.Table)
		if err != nil {
			pool.Close()
			return nil, err
		}
		s.ownsPool = true
		return s, nil

	case "redis":
		rdb, err := ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s := NewRedis(rdb, cfg.Redis.Prefix)
		s.ownsClient = true
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
