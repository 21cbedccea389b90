package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all PostgreSQL migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_shares",
		SQL: `
			CREATE TABLE IF NOT EXISTS shares (
				id           VARCHAR(16)  PRIMARY KEY,
				is_file      BOOLEAN      NOT NULL,
				content      TEXT,
				filename     VARCHAR(255),
				mimetype     VARCHAR(255),
				file_data    BYTEA,
				content_hash VARCHAR(64)  NOT NULL,
				created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				expires_at   TIMESTAMPTZ,
				views        INTEGER      NOT NULL DEFAULT 0,
				max_views    INTEGER,
				CONSTRAINT shares_payload_check CHECK (
					(is_file AND content IS NULL AND filename IS NOT NULL) OR
					(NOT is_file AND content IS NOT NULL AND filename IS NULL)
				)
			);
			CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares(expires_at) WHERE expires_at IS NOT NULL;
			CREATE INDEX IF NOT EXISTS idx_shares_content_hash ON shares(content_hash);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database", "driver", DriverPostgres)
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := db.applyMigration(ctx, m.Version, m.SQL); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs one migration and records it in the same transaction.
// A migration already recorded is skipped.
func (db *DB) applyMigration(ctx context.Context, version, stmt string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration status for %s: %w", version, err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}

	slog.Info("applied migration", "version", version)
	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
