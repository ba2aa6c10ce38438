package api

import (
	"drive/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on the upload endpoint only; its cleanup goroutine
	// stops with the server.
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.Server.RegisterOnShutdown(uploadLimiter.Stop)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleServerStats)
	e.GET("/api/stats/:userID", handler.HandleUserStats)

	// Users
	e.POST("/api/users", handler.HandleCreateUser)

	// Upload (rate-limited)
	e.POST("/api/upload/:userID", handler.HandleUpload, uploadLimiter.Middleware())

	// Download
	e.GET("/d/:id", handler.HandleDownload)

	// Files
	e.GET("/api/files/:userID", handler.HandleListFiles)
	e.DELETE("/api/files/:id", handler.HandleDelete)
	e.PATCH("/api/files/:id/visibility", handler.HandleVisibility)

	return e
}
