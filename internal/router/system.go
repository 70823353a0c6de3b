package router

import (
	"github.com/deppfellow/go-taskapi/internal/handler"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers the endpoints that are not part of the API:
//
//  1. health
//  2. docs UI and the static files it loads
//  3. Prometheus metrics
func registerSystemRoutes(r *echo.Echo, s *server.Server, h *handler.Handlers) {
	r.GET("/status", h.Health.CheckHealth)

	r.Static("/static", handler.StaticDir)

	r.GET("/docs", h.OpenAPI.ServeOpenAPIUI)

	if s.Metrics != nil {
		r.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
}
