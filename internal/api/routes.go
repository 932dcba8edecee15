// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store        storage.Store
	LockTTL      time.Duration
	FeedInterval time.Duration
	Version      string
	Logger       zerolog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Build    BuildHandler
	Session  SessionHandler
	Lock     LockHandler
	TimeFeed TimeFeedHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version),
		Build:    NewBuildHandler(deps.Store),
		Session:  NewSessionHandler(deps.Store, deps.Logger),
		Lock:     NewLockHandler(deps.Store, deps.LockTTL, deps.Logger),
		TimeFeed: NewTimeFeedHandler(deps.FeedInterval, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Build catalog routes
	buildGroup := e.Group("/api/builds")
	buildGroup.GET("", handlers.Build.HandleListBuilds)
	buildGroup.GET("/validate/:buildNumber", handlers.Build.HandleValidateBuild)

	// Session submission routes
	sessionGroup := e.Group("/api/sessions")
	sessionGroup.POST("", handlers.Session.HandleSubmitSession)
	sessionGroup.GET("/stats", handlers.Session.HandleSessionStats)

	// Session lock routes
	lockGroup := e.Group("/api/session-locks")
	lockGroup.POST("/acquire", handlers.Lock.HandleAcquireLock)
	lockGroup.POST("/release", handlers.Lock.HandleReleaseLock)

	// Server time feed
	e.GET("/api/timer", handlers.TimeFeed.HandleTimeStream)
	e.GET("/api/ws/timer", handlers.TimeFeed.HandleTimeSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
}
