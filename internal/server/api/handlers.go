package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"snapshare/internal/server/config"
	"snapshare/internal/server/database"
	"snapshare/internal/server/service"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the share API.
type Handler struct {
	svc *service.ShareService
	cfg *config.Config
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.ShareService, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

type createShareBody struct {
	Text            string `json:"text"`
	ExpirationHours int    `json:"expirationHours"`
	MaxViews        int    `json:"maxViews"`
}

// HandleCreate handles POST /api/share.
// Accepts either a multipart form with a "text" or "file" field, or a JSON
// body with a "text" field. "expirationHours" and "maxViews" are optional.
func (h *Handler) HandleCreate(c echo.Context) error {
	var (
		req service.CreateRequest
		err error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req, err = h.parseMultipart(c)
	} else {
		req, err = parseJSON(c)
	}
	if err != nil {
		return mapServiceError(c, err)
	}

	result, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) parseMultipart(c echo.Context) (service.CreateRequest, error) {
	var req service.CreateRequest

	hours, err := formInt(c, "expirationHours")
	if err != nil {
		return req, err
	}
	maxViews, err := formInt(c, "maxViews")
	if err != nil {
		return req, err
	}
	req.ExpirationHours = hours
	req.MaxViews = maxViews

	fileHeader, err := c.FormFile("file")
	switch {
	case err == nil:
		// Reject before reading the body into memory.
		if fileHeader.Size > h.cfg.MaxFileSize {
			return req, service.ErrPayloadTooLarge
		}
		src, err := fileHeader.Open()
		if err != nil {
			return req, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, h.cfg.MaxFileSize+1))
		if err != nil {
			return req, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		req.Payload = database.FilePayload{
			Filename: fileHeader.Filename,
			MimeType: fileHeader.Header.Get(echo.HeaderContentType),
			Data:     data,
		}
	case errors.Is(err, http.ErrMissingFile):
		if text := c.FormValue("text"); text != "" {
			req.Payload = database.TextPayload{Content: text}
		}
	default:
		return req, fmt.Errorf("%w: malformed multipart form", service.ErrValidation)
	}

	return req, nil
}

func parseJSON(c echo.Context) (service.CreateRequest, error) {
	var body createShareBody
	if err := c.Bind(&body); err != nil {
		return service.CreateRequest{}, fmt.Errorf("%w: malformed request body", service.ErrValidation)
	}

	req := service.CreateRequest{
		ExpirationHours: body.ExpirationHours,
		MaxViews:        body.MaxViews,
	}
	if body.Text != "" {
		req.Payload = database.TextPayload{Content: body.Text}
	}
	return req, nil
}

// HandleGet handles GET /api/share/:id.
// File data is base64-encoded in the JSON envelope.
func (h *Handler) HandleGet(c echo.Context) error {
	share, err := h.svc.Retrieve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	resp := echo.Map{
		"id":         share.ID,
		"views":      share.Views,
		"expires_at": share.ExpiresAt,
	}
	if share.IsFile {
		resp["type"] = "file"
		resp["filename"] = share.Filename
		resp["mimetype"] = share.MimeType
		resp["data"] = base64.StdEncoding.EncodeToString(share.Data)
	} else {
		resp["type"] = "text"
		resp["content"] = share.Content
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleRaw handles GET /api/share/:id/raw and GET /v/:id.
// Serves text as text/plain and files as attachments.
func (h *Handler) HandleRaw(c echo.Context) error {
	share, err := h.svc.Retrieve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	if !share.IsFile {
		return c.String(http.StatusOK, share.Content)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": share.Filename}))
	return c.Blob(http.StatusOK, share.MimeType, share.Data)
}

// HandleHealth handles GET /health.
// Liveness only; the store is not consulted.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// HandleReady handles GET /ready.
// Reports whether the store is reachable.
func (h *Handler) HandleReady(c echo.Context) error {
	if err := h.svc.Ready(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":   "unavailable",
			"database": fmt.Sprintf("error: %v", err),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":   "ready",
		"database": "connected",
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate share statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_shares":       stats.TotalShares,
		"total_files":        stats.TotalFiles,
		"total_texts":        stats.TotalTexts,
		"total_views":        stats.TotalViews,
		"storage_used_bytes": stats.StorageBytes,
		"storage_used_human": humanize.IBytes(uint64(stats.StorageBytes)),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
// Every denial reason maps to the same not-found body.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrPayloadTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "content exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "share not found"})
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

func formInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.FormValue(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", service.ErrValidation, name)
	}
	return n, nil
}
