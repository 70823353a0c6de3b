// Package router initializes the HTTP router (using Echo).
//
// It registers the middlewares and the system routes on Echo, and assembles
// the request pipeline that serves the API: a concurrency limit, the layer
// injecting the database handle, and the pipeline router mapping paths to
// handlers.
package router

import (
	"fmt"

	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/handler"
	"github.com/deppfellow/go-taskapi/internal/metrics"
	"github.com/deppfellow/go-taskapi/internal/middleware"
	"github.com/deppfellow/go-taskapi/internal/pipeline"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/labstack/echo/v4"
)

// NewRouter builds the Echo instance. A route configuration error (duplicate
// or malformed pattern) is returned and is fatal at startup.
func NewRouter(s *server.Server, h *handler.Handlers, mws *middleware.Middlewares) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = mws.Global.GlobalErrorHandler

	// Order matters: request id and the New Relic transaction exist before
	// the logger is built, and Recover sits inside the logger so a panic is
	// logged as a 500.
	e.Use(
		middleware.RequestID(),
		mws.Tracing.NewRelicMiddleware(),
		mws.Tracing.EnhanceTracing(),
		mws.ContextEnhancer.EnhanceContext(),
		mws.Global.RequestLogger(),
		mws.Global.Recover(),
		mws.Global.Secure(),
		mws.Global.CORS(),
		mws.RateLimit.Limit(),
	)

	registerSystemRoutes(e, s, h)

	api, err := NewPipeline(s, h)
	if err != nil {
		return nil, err
	}

	// Everything the system routes do not claim goes through the pipeline,
	// which answers 404 and 405 itself.
	e.Any("/*", pipeline.EchoHandler(api))

	return e, nil
}

// NewPipeline assembles the API service:
//
//	ConcurrencyLimitLayer -> AddExtensionLayer(*database.Handle) -> Router
//
// Every routed request therefore carries exactly one handle extension.
func NewPipeline(s *server.Server, h *handler.Handlers) (pipeline.Service, error) {
	if s.DB == nil || s.DB.Handle == nil {
		return nil, fmt.Errorf("database handle not initialized")
	}

	var collector metrics.Collector = metrics.Noop()
	if s.Metrics != nil {
		collector = s.Metrics
	}

	r := pipeline.NewRouter(pipeline.WithObserver(collector.ObserveRequest))
	if err := registerTaskRoutes(r, h); err != nil {
		return nil, fmt.Errorf("failed to register task routes: %w", err)
	}

	stack := pipeline.NewStack(
		pipeline.ConcurrencyLimitLayer(s.Config.Server.MaxInFlight, collector.AddInFlight),
		pipeline.AddExtensionLayer[*database.Handle](s.DB.Handle),
	)

	return stack.Service(r), nil
}
