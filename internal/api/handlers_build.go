// handlers_build.go - Build catalog handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/prodline/tracker/internal/models"
	"github.com/prodline/tracker/internal/storage"
)

// BuildHandlerImpl implements the BuildHandler interface
type BuildHandlerImpl struct {
	store storage.Store
}

// NewBuildHandler creates a new build handler
func NewBuildHandler(store storage.Store) BuildHandler {
	return &BuildHandlerImpl{store: store}
}

// HandleValidateBuild looks up a build number and returns its
// parameters, or 404 when the build is unknown. Clients call this
// during login.
func (h *BuildHandlerImpl) HandleValidateBuild(c echo.Context) error {
	buildNumber := c.Param("buildNumber")
	if buildNumber == "" {
		return NewValidationError("buildNumber")
	}

	build, err := h.store.GetBuild(c.Request().Context(), buildNumber)
	if err != nil {
		if errors.Is(err, models.ErrBuildNotFound) {
			return NewNotFoundError("build", buildNumber)
		}
		return NewInternalError("failed to look up build", err)
	}

	return c.JSON(http.StatusOK, build)
}

// HandleListBuilds returns the full build catalog
func (h *BuildHandlerImpl) HandleListBuilds(c echo.Context) error {
	builds, err := h.store.ListBuilds(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list builds", err)
	}
	if builds == nil {
		builds = []models.Build{}
	}
	return c.JSON(http.StatusOK, builds)
}
