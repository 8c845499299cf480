package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
	"github.com/labstack/echo/v4"
)

var log = logger.For("http")

// httpError maps a service error onto the HTTP status of its kind. Unknown errors are
// logged and reported as a bare 500.
func httpError(c echo.Context, err error) error {
	var se *services.Error
	if errors.As(err, &se) {
		return echo.NewHTTPError(statusFor(se.Kind), se.Message)
	}
	log.WithError(err).WithFields(map[string]interface{}{
		"method": c.Request().Method,
		"route":  c.Path(),
	}).Error("request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

func statusFor(kind error) int {
	switch {
	case errors.Is(kind, services.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(kind, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, services.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// getUserIDFromContext returns the ID in the JWT claims set by the auth middleware, or 0.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}

func currentUserID(c echo.Context) (uint, error) {
	id := getUserIDFromContext(c)
	if id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}

// bindAndValidate binds the request body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	return c.Validate(req)
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}
