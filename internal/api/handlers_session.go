// handlers_session.go - Session submission and statistics handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/models"
	"github.com/prodline/tracker/internal/storage"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store storage.Store, logger zerolog.Logger) SessionHandler {
	return &SessionHandlerImpl{store: store, logger: logger}
}

// HandleSubmitSession archives a finalized session
func (h *SessionHandlerImpl) HandleSubmitSession(c echo.Context) error {
	var sub models.SessionSubmission
	if err := c.Bind(&sub); err != nil {
		return NewBadRequestError("invalid session payload", err)
	}

	if sub.LoginID == "" {
		return NewValidationError("loginId")
	}
	if sub.BuildNumber == "" {
		return NewValidationError("buildNumber")
	}
	if sub.EndTime.Before(sub.StartTime) {
		return NewValidationError("endTime")
	}
	switch sub.SubmissionType {
	case models.SubmissionManual, models.SubmissionAuto:
	default:
		return NewValidationError("submissionType")
	}

	id, err := h.store.SaveSession(c.Request().Context(), &sub)
	if err != nil {
		return NewInternalError("failed to save session", err)
	}

	h.logger.Info().
		Str("sessionId", id).
		Str("loginId", sub.LoginID).
		Str("buildNumber", sub.BuildNumber).
		Str("submissionType", string(sub.SubmissionType)).
		Float64("totalActiveTimeSec", sub.TotalActiveTimeSec).
		Msg("session submitted")

	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// HandleSessionStats aggregates submitted sessions for one build
func (h *SessionHandlerImpl) HandleSessionStats(c echo.Context) error {
	buildNumber := c.QueryParam("buildNumber")
	if buildNumber == "" {
		return NewValidationError("buildNumber")
	}

	stats, err := h.store.BuildStats(c.Request().Context(), buildNumber)
	if err != nil {
		return NewInternalError("failed to aggregate sessions", err)
	}
	return c.JSON(http.StatusOK, stats)
}
