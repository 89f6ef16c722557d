package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/holy-jesus/holynotifier/internal/errors"
)

const adminTokenHeader = "X-Admin-Token"

// requireAdminToken guards the admin group with a constant-time token check.
func (s *Server) requireAdminToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		supplied := c.Request().Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.config.AdminToken)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
		}
		return next(c)
	}
}

func (s *Server) handleWatch(c echo.Context) error {
	login := c.Param("login")

	if err := s.admin.Watch(c.Request().Context(), login); err != nil {
		return s.answerAdminError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnwatch(c echo.Context) error {
	channelID := c.Param("channelID")

	if err := s.admin.Unwatch(c.Request().Context(), channelID); err != nil {
		return s.answerAdminError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecheck(c echo.Context) error {
	changed, err := s.admin.Recheck(c.Request().Context())
	if err != nil {
		return s.answerAdminError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"changed": changed,
	})
}

func (s *Server) answerAdminError(c echo.Context, err error) error {
	slog.Error("Admin operation failed", "path", c.Request().URL.Path, "error", err)

	status := http.StatusInternalServerError
	if errors.IsType(err, errors.TypeMalformed) {
		status = http.StatusBadRequest
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
