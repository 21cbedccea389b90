package api

import (
	"fmt"

	"snapshare/internal/server/config"
	"snapshare/internal/server/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// formOverhead leaves room for multipart boundaries and the other form fields.
const formOverhead = 1 << 20

// SetupRouter creates and configures the echo router with all routes and middleware.
// m may be nil, in which case /metrics is not served.
func SetupRouter(handler *Handler, cfg *config.Config, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestLogger(m))

	// Health & readiness
	e.GET("/health", handler.HandleHealth)
	e.GET("/ready", handler.HandleReady)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	// Create (body capped slightly above the payload limit)
	bodyLimit := fmt.Sprintf("%dKB", (cfg.MaxFileSize+formOverhead)/1024)
	e.POST("/api/share", handler.HandleCreate, middleware.BodyLimit(bodyLimit))

	// Retrieve
	e.GET("/api/share/:id", handler.HandleGet)
	e.GET("/api/share/:id/raw", handler.HandleRaw)
	e.GET("/v/:id", handler.HandleRaw)

	// Stats
	e.GET("/api/stats", handler.HandleStats)

	return e
}
