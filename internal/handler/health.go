package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/go-taskapi/internal/middleware"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/labstack/echo/v4"
)

// HealthHandler serves the endpoint load balancers and uptime monitors use to
// verify the service and its dependencies.
type HealthHandler struct {
	Handler
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	return &HealthHandler{
		Handler: NewHandler(s),
	}
}

// CheckHealth returns the overall status, a UTC timestamp, the environment
// and one entry per dependency check.
//
// The database check acquires a connection from the shared handle, so it
// waits its turn like any request does. A failed database check answers
// 503. Redis only backs the task cache, so a failed Redis check is reported
// without failing the endpoint.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()
	obs := h.server.Config.Observability
	timeout := obs.HealthChecks.Timeout

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      make(map[string]interface{}),
	}

	checks := response["checks"].(map[string]interface{})
	isHealthy := true

	// ---------------- Database connectivity check ----------------------------
	if obs.ChecksEnabled("database") {
		dbStart := time.Now()

		if err := h.pingDatabase(c.Request().Context(), timeout); err != nil {
			checks["database"] = unhealthy(dbStart, err)
			isHealthy = false

			logger.Error().
				Err(err).
				Dur("response_time", time.Since(dbStart)).
				Msg("database health check failed")

			h.recordHealthEvent(map[string]interface{}{
				"check_type":       "database",
				"error_type":       "database_unhealthy",
				"response_time_ms": time.Since(dbStart).Milliseconds(),
				"error_message":    err.Error(),
			})
		} else {
			checks["database"] = healthy(dbStart)

			logger.Info().
				Dur("response_time", time.Since(dbStart)).
				Msg("database health check passed")
		}
	}

	// ---------------- Redis connectivity check -------------------------------
	if obs.ChecksEnabled("redis") && h.server.Redis != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		redisStart := time.Now()

		if err := h.server.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = unhealthy(redisStart, err)

			logger.Error().
				Err(err).
				Dur("response_time", time.Since(redisStart)).
				Msg("redis health check failed")

			h.recordHealthEvent(map[string]interface{}{
				"check_type":       "redis",
				"error_type":       "redis_unhealthy",
				"response_time_ms": time.Since(redisStart).Milliseconds(),
				"error_message":    err.Error(),
			})
		} else {
			checks["redis"] = healthy(redisStart)

			logger.Info().
				Dur("response_time", time.Since(redisStart)).
				Msg("redis health check passed")
		}
	}

	// ---------------- Overall status + response ------------------------------
	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		h.recordHealthEvent(map[string]interface{}{
			"check_type":        "overall",
			"error_type":        "overall_unhealthy",
			"total_duration_ms": time.Since(start).Milliseconds(),
		})

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	logger.Info().
		Dur("total_duration", time.Since(start)).
		Msg("health check passed")

	if err := c.JSON(http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("failed to write JSON response")

		h.recordHealthEvent(map[string]interface{}{
			"check_type":    "response",
			"error_type":    "json_response_error",
			"error_message": err.Error(),
		})

		return fmt.Errorf("failed to write JSON response: %w", err)
	}

	return nil
}

func (h *HealthHandler) pingDatabase(ctx context.Context, timeout time.Duration) error {
	if h.server.DB == nil || h.server.DB.Handle == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ref, err := h.server.DB.Handle.Acquire(ctx)
	if err != nil {
		return err
	}
	defer ref.Release()

	return ref.Ping(ctx)
}

// recordHealthEvent sends a HealthCheckError custom event when New Relic is
// enabled.
func (h *HealthHandler) recordHealthEvent(attrs map[string]interface{}) {
	app := h.server.LoggerService.GetApplication()
	if app == nil {
		return
	}

	attrs["operation"] = "health_check"
	app.RecordCustomEvent("HealthCheckError", attrs)
}

func healthy(start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":        "healthy",
		"response_time": time.Since(start).String(),
	}
}

func unhealthy(start time.Time, err error) map[string]interface{} {
	return map[string]interface{}{
		"status":        "unhealthy",
		"response_time": time.Since(start).String(),
		"error":         err.Error(),
	}
}
