package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrShareNotFound  = errors.New("share not found")
	ErrDuplicateID    = errors.New("share id already exists")
	ErrInvalidPayload = errors.New("share must carry exactly one text or file payload")
)

// Supported values for the database driver setting.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ShareStore is the persistence contract for shares. Every state change is a
// single atomic statement, so implementations need no in-process locking.
type ShareStore interface {
	// Create inserts a new share. It never overwrites: an existing id yields
	// ErrDuplicateID.
	Create(ctx context.Context, share *Share) error

	// RetrieveAndIncrement bumps the view counter of a share that has not
	// expired at now and returns the updated row. Missing or expired shares
	// yield ErrShareNotFound and are left untouched.
	RetrieveAndIncrement(ctx context.Context, id string, now time.Time) (*Share, error)

	// DeleteByID removes a share. Deleting a missing id is not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired removes every share whose expiration is at or before now
	// and returns how many rows were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// FindActiveByHash returns the id of a live share with the given content
	// hash, or "" when there is none.
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (string, error)

	Stats(ctx context.Context) (*Stats, error)
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store selected by driver.
func Open(ctx context.Context, driver, dsn string) (ShareStore, error) {
	switch driver {
	case DriverPostgres, "":
		db, err := New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewRepository(db), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
