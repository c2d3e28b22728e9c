// Package progress provides the persistent backends for onboarding
// status: in-memory, SQLite, PostgreSQL and Redis. Every backend stores
// one JSON status document per student and implements
// [onboarding.Store]. Writes are whole-document replacements, so
// concurrent writers for the same student resolve last-writer-wins.
package progress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/n1dhiparate/admit-assist/internal/config"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

// Store is an onboarding store that holds a connection to release.
type Store interface {
	onboarding.Store
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return NewSQLiteStore(cfg.Path)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case config.DriverRedis:
		return NewRedisStore(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
