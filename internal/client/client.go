package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is matched by errors for shares that do not exist, have
// expired, or have used up their views.
var ErrNotFound = errors.New("share not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// ShareOptions are the optional limits of a new share. Zero means unlimited.
type ShareOptions struct {
	ExpirationHours int
	MaxViews        int
}

type CreateResponse struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Share is a retrieved share. Content is set for text shares; Filename,
// MimeType and Data for file shares.
type Share struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Content   string     `json:"content"`
	Filename  string     `json:"filename"`
	MimeType  string     `json:"mimetype"`
	Data      []byte     `json:"data"`
	Views     int        `json:"views"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Share) IsFile() bool { return s.Type == "file" }

type Stats struct {
	TotalShares      int64  `json:"total_shares"`
	TotalFiles       int64  `json:"total_files"`
	TotalTexts       int64  `json:"total_texts"`
	TotalViews       int64  `json:"total_views"`
	StorageUsedBytes int64  `json:"storage_used_bytes"`
	StorageUsedHuman string `json:"storage_used_human"`
}

// Client talks to a snapshare server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL. A nil httpClient uses a
// client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateText shares a piece of text.
func (c *Client) CreateText(ctx context.Context, text string, opts ShareOptions) (*CreateResponse, error) {
	body, err := json.Marshal(map[string]any{
		"text":            text,
		"expirationHours": opts.ExpirationHours,
		"maxViews":        opts.MaxViews,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/share", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out CreateResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateFile shares the contents of r under filename.
func (c *Client) CreateFile(ctx context.Context, filename string, r io.Reader, opts ShareOptions) (*CreateResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if opts.ExpirationHours > 0 {
		if err := w.WriteField("expirationHours", strconv.Itoa(opts.ExpirationHours)); err != nil {
			return nil, err
		}
	}
	if opts.MaxViews > 0 {
		if err := w.WriteField("maxViews", strconv.Itoa(opts.MaxViews)); err != nil {
			return nil, err
		}
	}

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/share", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out CreateResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get retrieves a share. Every successful call counts as a view.
func (c *Client) Get(ctx context.Context, id string) (*Share, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/share/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out Share
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return nil, err
	}

	var out Stats
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns nil when the server answers its liveness check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &body) == nil {
			switch {
			case body.Error != "":
				msg = body.Error
			case body.Message != "":
				msg = body.Message
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
