package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const shareColumns = `id, is_file, content, filename, mimetype, file_data,
	content_hash, created_at, expires_at, views, max_views`

// Repository is the PostgreSQL ShareStore.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new share record.
func (r *Repository) Create(ctx context.Context, share *Share) error {
	rec, err := toRow(share)
	if err != nil {
		return err
	}

	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.id,
		rec.isFile,
		rec.content,
		rec.filename,
		rec.mimetype,
		rec.fileData,
		rec.contentHash,
		rec.createdAt,
		rec.expiresAt,
		rec.views,
		rec.maxViews,
	)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateID
	}
	return nil
}

// RetrieveAndIncrement atomically increments the view counter of a live share.
func (r *Repository) RetrieveAndIncrement(ctx context.Context, id string, now time.Time) (*Share, error) {
	share, err := scanShare(r.db.Pool.QueryRow(ctx, `
		UPDATE shares SET views = views + 1
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING `+shareColumns,
		id, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to retrieve share: %w", err)
	}
	return share, nil
}

// DeleteByID removes a share record by ID.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, "DELETE FROM shares WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

// DeleteExpired removes all shares whose expiration time has passed.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		"DELETE FROM shares WHERE expires_at IS NOT NULL AND expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired shares: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindActiveByHash finds a live share with a matching content hash.
func (r *Repository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (string, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id FROM shares
		WHERE content_hash = $1 AND (expires_at IS NULL OR expires_at > $2)
		LIMIT 1
	`, hash, now).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query by hash: %w", err)
	}
	return id, nil
}

// Stats returns aggregate share statistics.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_file),
			COUNT(*) FILTER (WHERE NOT is_file),
			COALESCE(SUM(views), 0),
			COALESCE(SUM(octet_length(file_data)), 0)
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

func (r *Repository) RunMigrations(ctx context.Context) error {
	return r.db.RunMigrations(ctx)
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

func scanShare(r pgx.Row) (*Share, error) {
	var rec row
	if err := r.Scan(
		&rec.id,
		&rec.isFile,
		&rec.content,
		&rec.filename,
		&rec.mimetype,
		&rec.fileData,
		&rec.contentHash,
		&rec.createdAt,
		&rec.expiresAt,
		&rec.views,
		&rec.maxViews,
	); err != nil {
		return nil, err
	}
	return rec.toShare(), nil
}
