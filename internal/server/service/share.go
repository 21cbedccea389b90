package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"snapshare/internal/server/config"
	"snapshare/internal/server/database"
	"snapshare/internal/server/metrics"

	"github.com/gabriel-vasile/mimetype"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/blake2b"
)

const (
	// idBytes random bytes are hex-encoded into the share id.
	idBytes = 4
	// maxIDAttempts bounds the retries on an id collision.
	maxIDAttempts = 5

	// maxExpirationHours keeps expires_at inside the range both stores can
	// hold (SQLite keeps UnixNano, which ends in 2262).
	maxExpirationHours = 10 * 365 * 24
	// maxViewsLimit matches the INTEGER max_views column.
	maxViewsLimit = math.MaxInt32
	// maxFilenameBytes is the longest stored filename, in bytes.
	maxFilenameBytes = 255

	statsCacheKey = "stats"
)

// Sentinel errors for the service layer.
var (
	ErrValidation      = errors.New("invalid share request")
	ErrNoPayload       = fmt.Errorf("%w: text or file content is required", ErrValidation)
	ErrPayloadTooLarge = fmt.Errorf("%w: content exceeds maximum allowed size", ErrValidation)
	ErrNotFound        = errors.New("share not found")
	ErrMaxViewsReached = fmt.Errorf("%w: view limit reached", ErrNotFound)
	ErrStorage         = errors.New("storage failure")
)

// CreateRequest describes a new share.
type CreateRequest struct {
	Payload database.Payload
	// ExpirationHours of 0 means the share never expires by time.
	ExpirationHours int
	// MaxViews of 0 means there is no view limit.
	MaxViews int
}

// CreateResult is returned after a successful create.
type CreateResult struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// SharedContent is the servable projection of a share. Exactly one of the
// text or file field groups is set, according to IsFile.
type SharedContent struct {
	ID        string
	IsFile    bool
	Content   string
	Filename  string
	MimeType  string
	Data      []byte
	Views     int
	ExpiresAt *time.Time
}

// ShareService contains the share lifecycle and retrieval policy.
type ShareService struct {
	store      database.ShareStore
	cfg        *config.Config
	metrics    *metrics.Metrics
	statsCache *cache.Cache

	now   func() time.Time
	newID func() (string, error)
}

// NewShareService creates a new share service. m may be nil.
func NewShareService(store database.ShareStore, cfg *config.Config, m *metrics.Metrics) *ShareService {
	s := &ShareService{
		store:   store,
		cfg:     cfg,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() (string, error) { return generateID(idBytes) },
	}
	if cfg.StatsCacheTTL > 0 {
		s.statsCache = cache.New(cfg.StatsCacheTTL, 2*cfg.StatsCacheTTL)
	}
	return s
}

// Create validates the request and stores a new share under a fresh id.
// Nothing is written when validation fails.
func (s *ShareService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	payload, err := s.normalizePayload(req.Payload)
	if err != nil {
		return nil, err
	}
	if req.ExpirationHours < 0 || req.ExpirationHours > maxExpirationHours {
		return nil, fmt.Errorf("%w: expiration hours must be between 0 and %d", ErrValidation, maxExpirationHours)
	}
	if req.MaxViews < 0 || req.MaxViews > maxViewsLimit {
		return nil, fmt.Errorf("%w: max views must be between 0 and %d", ErrValidation, maxViewsLimit)
	}

	now := s.now()
	share := &database.Share{
		Payload:     payload,
		ContentHash: contentHash(payload),
		CreatedAt:   now,
	}
	if req.ExpirationHours > 0 {
		expiresAt := now.Add(time.Duration(req.ExpirationHours) * time.Hour)
		share.ExpiresAt = &expiresAt
	}
	if req.MaxViews > 0 {
		maxViews := req.MaxViews
		share.MaxViews = &maxViews
	}

	// Duplicate content is logged, never blocked.
	if existing, err := s.store.FindActiveByHash(ctx, share.ContentHash, now); err != nil {
		slog.Warn("duplicate check failed", "error", err)
	} else if existing != "" {
		slog.Info("duplicate content detected", "existing_share", existing, "hash", share.ContentHash)
	}

	if err := s.insertWithFreshID(ctx, share); err != nil {
		return nil, err
	}

	s.metrics.ShareCreated(share.IsFile())
	slog.Info("share created",
		"id", share.ID,
		"is_file", share.IsFile(),
		"size", len(payload.Bytes()),
		"expires_at", share.ExpiresAt,
		"max_views", req.MaxViews,
	)

	return &CreateResult{
		ID:        share.ID,
		URL:       fmt.Sprintf("%s/v/%s", s.cfg.BaseURL, share.ID),
		ExpiresAt: share.ExpiresAt,
	}, nil
}

func (s *ShareService) insertWithFreshID(ctx context.Context, share *database.Share) error {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return fmt.Errorf("failed to generate share id: %w", err)
		}
		share.ID = id

		err = s.store.Create(ctx, share)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrDuplicateID) {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		slog.Warn("share id collision, retrying", "id", id, "attempt", attempt)
	}
	return fmt.Errorf("%w: no free share id after %d attempts", ErrStorage, maxIDAttempts)
}

// Retrieve counts a view and returns the share if it may be served.
//
// The view is counted before the limit is checked so the counter stays exact;
// the view that pushes the counter past MaxViews deletes the share instead of
// serving it. Both denial reasons match ErrNotFound.
func (s *ShareService) Retrieve(ctx context.Context, id string) (*SharedContent, error) {
	if !validID(id) {
		s.metrics.Retrieval(metrics.OutcomeNotFound)
		return nil, ErrNotFound
	}

	share, err := s.store.RetrieveAndIncrement(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, database.ErrShareNotFound) {
			s.metrics.Retrieval(metrics.OutcomeNotFound)
			return nil, ErrNotFound
		}
		s.metrics.Retrieval(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if share.ViewLimitExceeded() {
		// The increment already happened; purge even if the caller has gone.
		if err := s.store.DeleteByID(context.WithoutCancel(ctx), id); err != nil {
			slog.Error("failed to delete share past its view limit", "id", id, "error", err)
		} else {
			slog.Info("share reached view limit", "id", id, "views", share.Views, "max_views", *share.MaxViews)
		}
		s.metrics.Retrieval(metrics.OutcomeMaxViews)
		return nil, ErrMaxViewsReached
	}

	s.metrics.Retrieval(metrics.OutcomeServed)
	return project(share), nil
}

// Stats returns aggregate share statistics, cached for StatsCacheTTL.
func (s *ShareService) Stats(ctx context.Context) (*database.Stats, error) {
	if s.statsCache != nil {
		if cached, ok := s.statsCache.Get(statsCacheKey); ok {
			stats := *cached.(*database.Stats)
			return &stats, nil
		}
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if s.statsCache != nil {
		cached := *stats
		s.statsCache.SetDefault(statsCacheKey, &cached)
	}
	return stats, nil
}

// Ready reports whether the backing store is reachable.
func (s *ShareService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ShareService) normalizePayload(p database.Payload) (database.Payload, error) {
	switch p := p.(type) {
	case database.TextPayload:
		if p.Content == "" {
			return nil, ErrNoPayload
		}
		if int64(len(p.Content)) > s.cfg.MaxFileSize {
			return nil, ErrPayloadTooLarge
		}
		return p, nil
	case database.FilePayload:
		if int64(len(p.Data)) > s.cfg.MaxFileSize {
			return nil, ErrPayloadTooLarge
		}
		p.Filename = sanitizeFilename(p.Filename)
		if p.MimeType == "" || p.MimeType == "application/octet-stream" {
			p.MimeType = mimetype.Detect(p.Data).String()
		}
		if p.Data == nil {
			p.Data = []byte{}
		}
		return p, nil
	default:
		return nil, ErrNoPayload
	}
}

func project(share *database.Share) *SharedContent {
	out := &SharedContent{
		ID:        share.ID,
		Views:     share.Views,
		ExpiresAt: share.ExpiresAt,
	}
	switch p := share.Payload.(type) {
	case database.TextPayload:
		out.Content = p.Content
	case database.FilePayload:
		out.IsFile = true
		out.Filename = p.Filename
		out.MimeType = p.MimeType
		out.Data = p.Data
	}
	return out
}

// --- Helpers ---

// generateID returns n bytes of crypto/rand output, hex-encoded.
func generateID(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// validID reports whether id has the shape generateID produces.
func validID(id string) bool {
	if len(id) != idBytes*2 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func contentHash(p database.Payload) string {
	sum := blake2b.Sum256(p.Bytes())
	return hex.EncodeToString(sum[:])
}

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes before filepath.Base, which is
	// platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > maxFilenameBytes {
		ext := filepath.Ext(name)
		if len(ext) >= maxFilenameBytes/2 {
			// Drop extensions that would crowd out the stem.
			ext = ""
		}
		name = truncateUTF8(name, maxFilenameBytes-len(ext)) + ext
	}
	name = strings.ToValidUTF8(name, "")

	if name == "" || name == "." || name == "/" {
		name = "upload.bin"
	}

	return name
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
