package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks one backing store.
type Pinger func(ctx context.Context) error

// HealthCheck reports "healthy" when every check passes and 503 with the failing
// component names otherwise.
func HealthCheck(checks map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				log.WithError(err).WithField("component", name).Warn("health check failed")
				components[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "up"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		return c.JSON(status, echo.Map{
			"status":     state,
			"service":    "socialgraph-api",
			"components": components,
		})
	}
}
