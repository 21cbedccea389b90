package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteMigrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_shares",
		SQL: `
			CREATE TABLE IF NOT EXISTS shares (
				id           TEXT    PRIMARY KEY,
				is_file      INTEGER NOT NULL,
				content      TEXT,
				filename     TEXT,
				mimetype     TEXT,
				file_data    BLOB,
				content_hash TEXT    NOT NULL,
				created_at   INTEGER NOT NULL,
				expires_at   INTEGER,
				views        INTEGER NOT NULL DEFAULT 0,
				max_views    INTEGER,
				CHECK (
					(is_file = 1 AND content IS NULL AND filename IS NOT NULL) OR
					(is_file = 0 AND content IS NOT NULL AND filename IS NULL)
				)
			);
			CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares(expires_at);
			CREATE INDEX IF NOT EXISTS idx_shares_content_hash ON shares(content_hash);
		`,
	},
}

// SQLiteStore is a ShareStore backed by a single SQLite file. Timestamps are
// stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at path. A plain file path gets a
// busy timeout and WAL journaling; a "file:" DSN is used as given.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	slog.Info("connected to database", "driver", DriverSQLite, "path", path)
	return &SQLiteStore{db: db}, nil
}

// RunMigrations applies all pending migrations in order.
func (s *SQLiteStore) RunMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range sqliteMigrations {
		if err := s.applyMigration(ctx, m.Version, m.SQL); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, version, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration status for %s: %w", version, err)
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}

	slog.Info("applied migration", "version", version)
	return nil
}

// Create inserts a new share record.
func (s *SQLiteStore) Create(ctx context.Context, share *Share) error {
	rec, err := toRow(share)
	if err != nil {
		return err
	}

	var fileData any
	if rec.isFile {
		fileData = rec.fileData
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.id,
		rec.isFile,
		nullString(rec.content),
		nullString(rec.filename),
		nullString(rec.mimetype),
		fileData,
		rec.contentHash,
		rec.createdAt.UnixNano(),
		nullTime(rec.expiresAt),
		rec.views,
		nullInt(rec.maxViews),
	)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	if n == 0 {
		return ErrDuplicateID
	}
	return nil
}

// RetrieveAndIncrement atomically increments the view counter of a live share.
func (s *SQLiteStore) RetrieveAndIncrement(ctx context.Context, id string, now time.Time) (*Share, error) {
	share, err := scanSQLiteShare(s.db.QueryRowContext(ctx, `
		UPDATE shares SET views = views + 1
		WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)
		RETURNING `+shareColumns,
		id, now.UnixNano(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to retrieve share: %w", err)
	}
	return share, nil
}

// DeleteByID removes a share record by ID.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM shares WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

// DeleteExpired removes all shares whose expiration time has passed.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM shares WHERE expires_at IS NOT NULL AND expires_at <= ?", now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired shares: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired shares: %w", err)
	}
	return n, nil
}

// FindActiveByHash finds a live share with a matching content hash.
func (s *SQLiteStore) FindActiveByHash(ctx context.Context, hash string, now time.Time) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM shares
		WHERE content_hash = ? AND (expires_at IS NULL OR expires_at > ?)
		LIMIT 1
	`, hash, now.UnixNano()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query by hash: %w", err)
	}
	return id, nil
}

// Stats returns aggregate share statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_file = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_file = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(views), 0),
			COALESCE(SUM(length(file_data)), 0)
		FROM shares
	`).Scan(
		&stats.TotalShares,
		&stats.TotalFiles,
		&stats.TotalTexts,
		&stats.TotalViews,
		&stats.StorageBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteShare(r *sql.Row) (*Share, error) {
	var (
		rec       row
		content   sql.NullString
		filename  sql.NullString
		mimetype  sql.NullString
		createdAt int64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
	)
	if err := r.Scan(
		&rec.id,
		&rec.isFile,
		&content,
		&filename,
		&mimetype,
		&rec.fileData,
		&rec.contentHash,
		&createdAt,
		&expiresAt,
		&rec.views,
		&maxViews,
	); err != nil {
		return nil, err
	}

	if content.Valid {
		rec.content = &content.String
	}
	if filename.Valid {
		rec.filename = &filename.String
	}
	if mimetype.Valid {
		rec.mimetype = &mimetype.String
	}
	rec.createdAt = time.Unix(0, createdAt).UTC()
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		rec.expiresAt = &t
	}
	if maxViews.Valid {
		n := int(maxViews.Int64)
		rec.maxViews = &n
	}
	return rec.toShare(), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
