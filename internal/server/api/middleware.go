package api

import (
	"log/slog"
	"time"

	"snapshare/internal/server/metrics"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an echo middleware that logs requests using slog
// and records them in m. m may be nil.
func RequestLogger(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			elapsed := time.Since(start)

			m.HTTPRequest(req.Method, routeLabel(c), res.Status, elapsed)

			slog.Info("request",
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", elapsed.Milliseconds(),
				"ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}

// routeLabel keeps metric cardinality bounded by using the route pattern.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
