package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("records share creation by kind", func(t *testing.T) {
		m := New()
		m.ShareCreated(true)
		m.ShareCreated(false)
		m.ShareCreated(false)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.sharesCreated.WithLabelValues("file")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.sharesCreated.WithLabelValues("text")))
	})

	t.Run("records retrieval outcomes", func(t *testing.T) {
		m := New()
		m.Retrieval(OutcomeServed)
		m.Retrieval(OutcomeMaxViews)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievals.WithLabelValues(OutcomeServed)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievals.WithLabelValues(OutcomeMaxViews)))
	})

	t.Run("records reaper runs", func(t *testing.T) {
		m := New()
		m.ReaperRun(3, nil)
		m.ReaperRun(0, nil)
		m.ReaperRun(5, errors.New("store unreachable"))

		assert.Equal(t, 2.0, testutil.ToFloat64(m.reaperRuns.WithLabelValues(resultSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.reaperRuns.WithLabelValues(resultFailure)))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.reaperDeleted))
	})

	t.Run("nil metrics is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ShareCreated(true)
			m.Retrieval(OutcomeServed)
			m.ReaperRun(1, nil)
			m.HTTPRequest("GET", "/health", 200, time.Millisecond)
		})
	})

	t.Run("handler exposes registry", func(t *testing.T) {
		m := New()
		m.HTTPRequest("GET", "/health", 200, 5*time.Millisecond)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.True(t, strings.Contains(body, `snapshare_http_requests_total{method="GET",route="/health",status="200"} 1`))
		assert.True(t, strings.Contains(body, "snapshare_http_request_duration_seconds"))
	})
}
