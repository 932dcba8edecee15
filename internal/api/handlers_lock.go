// handlers_lock.go - Session lock handlers
//
// A lock is advisory: it keeps the same login id from running two
// concurrent sessions on different terminals. Locks expire after a TTL
// so a crashed client cannot wedge an operator out forever.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/storage"
)

// LockHandlerImpl implements the LockHandler interface
type LockHandlerImpl struct {
	store  storage.Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLockHandler creates a new lock handler
func NewLockHandler(store storage.Store, ttl time.Duration, logger zerolog.Logger) LockHandler {
	return &LockHandlerImpl{store: store, ttl: ttl, logger: logger}
}

type lockRequest struct {
	LoginID string `json:"loginId"`
	// TTLMinutes overrides the server-configured lock lifetime when
	// positive.
	TTLMinutes int `json:"ttlMinutes,omitempty"`
}

// HandleAcquireLock takes the lock for a login id, returning 409 when
// another terminal already holds it
func (h *LockHandlerImpl) HandleAcquireLock(c echo.Context) error {
	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid lock payload", err)
	}
	if req.LoginID == "" {
		return NewValidationError("loginId")
	}

	ttl := h.ttl
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	granted, err := h.store.AcquireLock(c.Request().Context(), req.LoginID, ttl)
	if err != nil {
		return NewInternalError("failed to acquire lock", err)
	}
	if !granted {
		return NewConflictError("an active session already exists for this login id")
	}

	h.logger.Debug().Str("loginId", req.LoginID).Dur("ttl", ttl).Msg("lock acquired")
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"granted":   true,
		"expiresAt": time.Now().UTC().Add(ttl),
	})
}

// HandleReleaseLock frees the lock for a login id. Releasing a lock
// that is not held succeeds.
func (h *LockHandlerImpl) HandleReleaseLock(c echo.Context) error {
	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid lock payload", err)
	}
	if req.LoginID == "" {
		return NewValidationError("loginId")
	}

	if err := h.store.ReleaseLock(c.Request().Context(), req.LoginID); err != nil {
		return NewInternalError("failed to release lock", err)
	}

	h.logger.Debug().Str("loginId", req.LoginID).Msg("lock released")
	return c.JSON(http.StatusOK, map[string]bool{"released": true})
}
