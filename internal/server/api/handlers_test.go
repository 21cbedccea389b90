package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"snapshare/internal/server/config"
	"snapshare/internal/server/database"
	"snapshare/internal/server/metrics"
	"snapshare/internal/server/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	ctx := context.Background()

	store, err := database.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RunMigrations(ctx))

	cfg := &config.Config{
		BaseURL:     "http://share.test",
		MaxFileSize: 1024,
	}
	m := metrics.New()
	svc := service.NewShareService(store, cfg, m)
	return SetupRouter(NewHandler(svc, cfg), cfg, m)
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, e *echo.Echo, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/share", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return do(e, req)
}

func postMultipart(t *testing.T, e *echo.Echo, fields map[string]string, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/share", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return do(e, req)
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	return do(e, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createText(t *testing.T, e *echo.Echo, body map[string]any) string {
	t.Helper()
	rec := postJSON(t, e, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

// Tests

func TestHealthAndReady(t *testing.T) {
	e := newTestServer(t)

	rec := get(e, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = get(e, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])
}

func TestHandleCreate(t *testing.T) {
	t.Run("json text share", func(t *testing.T) {
		e := newTestServer(t)
		rec := postJSON(t, e, map[string]any{"text": "hello", "expirationHours": 2})
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decode(t, rec)
		id := body["id"].(string)
		assert.Len(t, id, 8)
		assert.Equal(t, "http://share.test/v/"+id, body["url"])
		assert.NotNil(t, body["expires_at"])
	})

	t.Run("multipart text share without expiry", func(t *testing.T) {
		e := newTestServer(t)
		rec := postMultipart(t, e, map[string]string{"text": "from a form"}, "", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Nil(t, decode(t, rec)["expires_at"])
	})

	t.Run("missing payload", func(t *testing.T) {
		e := newTestServer(t)
		rec := postJSON(t, e, map[string]any{"expirationHours": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = postMultipart(t, e, map[string]string{"maxViews": "2"}, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed fields", func(t *testing.T) {
		e := newTestServer(t)
		rec := postMultipart(t, e, map[string]string{"text": "x", "expirationHours": "soon"}, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader("{not json"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		assert.Equal(t, http.StatusBadRequest, do(e, req).Code)

		rec = postJSON(t, e, map[string]any{"text": "x", "maxViews": -1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = postJSON(t, e, map[string]any{"text": "x", "expirationHours": 3000000})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = postMultipart(t, e, map[string]string{"text": "x", "maxViews": "4294967296"}, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("very long filename is shortened", func(t *testing.T) {
		e := newTestServer(t)
		rec := postMultipart(t, e, nil, "a."+strings.Repeat("x", 300), []byte("data"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		body := decode(t, get(e, "/api/share/"+decode(t, rec)["id"].(string)))
		assert.Len(t, body["filename"], 255)
	})

	t.Run("oversized payloads", func(t *testing.T) {
		e := newTestServer(t)
		big := strings.Repeat("a", 1025)

		rec := postJSON(t, e, map[string]any{"text": big})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

		rec = postMultipart(t, e, nil, "big.bin", []byte(big))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

		stats := decode(t, get(e, "/api/stats"))
		assert.Equal(t, float64(0), stats["total_shares"])
	})
}

func TestHandleGet(t *testing.T) {
	t.Run("text share counts views", func(t *testing.T) {
		e := newTestServer(t)
		id := createText(t, e, map[string]any{"text": "hello"})

		rec := get(e, "/api/share/"+id)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "text", body["type"])
		assert.Equal(t, "hello", body["content"])
		assert.Equal(t, float64(1), body["views"])
		assert.NotContains(t, body, "data")

		body = decode(t, get(e, "/api/share/"+id))
		assert.Equal(t, float64(2), body["views"])
	})

	t.Run("file share is base64 encoded", func(t *testing.T) {
		e := newTestServer(t)
		data := []byte{0x00, 0x01, 0xfe, 0xff}
		rec := postMultipart(t, e, nil, "dir/blob.bin", data)
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode(t, rec)["id"].(string)

		body := decode(t, get(e, "/api/share/"+id))
		assert.Equal(t, "file", body["type"])
		assert.Equal(t, "blob.bin", body["filename"])
		assert.NotEmpty(t, body["mimetype"])
		assert.Equal(t, base64.StdEncoding.EncodeToString(data), body["data"])
		assert.NotContains(t, body, "content")
	})

	t.Run("view limit", func(t *testing.T) {
		e := newTestServer(t)
		id := createText(t, e, map[string]any{"text": "twice", "maxViews": 2})

		assert.Equal(t, http.StatusOK, get(e, "/api/share/"+id).Code)
		assert.Equal(t, http.StatusOK, get(e, "/api/share/"+id).Code)

		for i := 0; i < 2; i++ {
			rec := get(e, "/api/share/"+id)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "share not found", decode(t, rec)["error"])
		}
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		e := newTestServer(t)
		for _, id := range []string{"deadbeef", "nope", "DEADBEEF", "deadbeef00"} {
			rec := get(e, "/api/share/"+id)
			assert.Equal(t, http.StatusNotFound, rec.Code, id)
			assert.Equal(t, "share not found", decode(t, rec)["error"])
		}
	})
}

func TestHandleRaw(t *testing.T) {
	e := newTestServer(t)

	id := createText(t, e, map[string]any{"text": "plain words"})
	rec := get(e, "/api/share/"+id+"/raw")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plain words", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/plain"))

	data := []byte("%PDF-1.4 not really")
	rec = postMultipart(t, e, nil, "report.pdf", data)
	require.Equal(t, http.StatusCreated, rec.Code)
	fileID := decode(t, rec)["id"].(string)

	rec = get(e, "/v/"+fileID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename=report.pdf`)

	// Raw retrievals count views like JSON ones.
	body := decode(t, get(e, "/api/share/"+fileID))
	assert.Equal(t, float64(2), body["views"])
}

func TestHandleStats(t *testing.T) {
	e := newTestServer(t)
	id := createText(t, e, map[string]any{"text": "one"})
	createText(t, e, map[string]any{"text": "two"})
	rec := postMultipart(t, e, nil, "f.bin", []byte("12345"))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Equal(t, http.StatusOK, get(e, "/api/share/"+id).Code)

	rec = get(e, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["total_shares"])
	assert.Equal(t, float64(1), body["total_files"])
	assert.Equal(t, float64(2), body["total_texts"])
	assert.Equal(t, float64(1), body["total_views"])
	assert.Equal(t, float64(5), body["storage_used_bytes"])
	assert.Equal(t, "5 B", body["storage_used_human"])
}

func TestMiddleware(t *testing.T) {
	e := newTestServer(t)

	rec := get(e, "/health")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	get(e, "/api/share/deadbeef")

	rec = get(e, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `snapshare_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, out, `snapshare_retrievals_total{outcome="not_found"} 1`)
}
