package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrClosed        = errors.New("store closed")
)

// Store is a flat persisted key-value store.
// There is no transaction across keys; readers validate what they load.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open returns the store for driver: memory, sqlite or postgres
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
