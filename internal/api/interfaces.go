// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// BuildHandler handles build catalog operations
type BuildHandler interface {
	HandleValidateBuild(c echo.Context) error
	HandleListBuilds(c echo.Context) error
}

// SessionHandler handles completed session submissions and statistics
type SessionHandler interface {
	HandleSubmitSession(c echo.Context) error
	HandleSessionStats(c echo.Context) error
}

// LockHandler handles per-operator session locks
type LockHandler interface {
	HandleAcquireLock(c echo.Context) error
	HandleReleaseLock(c echo.Context) error
}

// TimeFeedHandler streams authoritative server time to clients
type TimeFeedHandler interface {
	HandleTimeStream(c echo.Context) error
	HandleTimeSocket(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
