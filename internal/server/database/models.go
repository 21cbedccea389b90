package database

import "time"

// Payload is the content carried by a share. It is either a TextPayload or
// a FilePayload; no other implementations exist.
type Payload interface {
	isPayload()
	// Bytes returns the raw payload bytes used for hashing and size checks.
	Bytes() []byte
}

// TextPayload is a plain text share.
type TextPayload struct {
	Content string
}

// FilePayload is a binary file share.
type FilePayload struct {
	Filename string
	MimeType string
	Data     []byte
}

func (TextPayload) isPayload() {}
func (FilePayload) isPayload() {}

func (p TextPayload) Bytes() []byte { return []byte(p.Content) }
func (p FilePayload) Bytes() []byte { return p.Data }

// Share represents a stored share in the database.
type Share struct {
	ID          string
	Payload     Payload
	ContentHash string
	CreatedAt   time.Time
	ExpiresAt   *time.Time // nil when the share never expires by time
	Views       int
	MaxViews    *int // nil when there is no view limit
}

// IsFile reports whether the share carries a file payload.
func (s *Share) IsFile() bool {
	_, ok := s.Payload.(FilePayload)
	return ok
}

// ViewLimitExceeded reports whether the view counter has gone past MaxViews.
func (s *Share) ViewLimitExceeded() bool {
	return s.MaxViews != nil && s.Views > *s.MaxViews
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalShares  int64
	TotalFiles   int64
	TotalTexts   int64
	TotalViews   int64
	StorageBytes int64
}

// row is the flattened column layout shared by both SQL backends.
type row struct {
	id          string
	isFile      bool
	content     *string
	filename    *string
	mimetype    *string
	fileData    []byte
	contentHash string
	createdAt   time.Time
	expiresAt   *time.Time
	views       int
	maxViews    *int
}

func toRow(s *Share) (row, error) {
	r := row{
		id:          s.ID,
		contentHash: s.ContentHash,
		createdAt:   s.CreatedAt,
		expiresAt:   s.ExpiresAt,
		views:       s.Views,
		maxViews:    s.MaxViews,
	}
	switch p := s.Payload.(type) {
	case TextPayload:
		r.content = &p.Content
	case FilePayload:
		r.isFile = true
		r.filename = &p.Filename
		r.mimetype = &p.MimeType
		r.fileData = p.Data
		if r.fileData == nil {
			r.fileData = []byte{}
		}
	default:
		return row{}, ErrInvalidPayload
	}
	return r, nil
}

func (r row) toShare() *Share {
	s := &Share{
		ID:          r.id,
		ContentHash: r.contentHash,
		CreatedAt:   r.createdAt,
		ExpiresAt:   r.expiresAt,
		Views:       r.views,
		MaxViews:    r.maxViews,
	}
	if r.isFile {
		if r.fileData == nil {
			r.fileData = []byte{}
		}
		s.Payload = FilePayload{
			Filename: deref(r.filename),
			MimeType: deref(r.mimetype),
			Data:     r.fileData,
		}
	} else {
		s.Payload = TextPayload{Content: deref(r.content)}
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
