package handler

import (
	"context"
	"time"

	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/pipeline"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/deppfellow/go-taskapi/internal/validation"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

// Handler is the base handler type that holds shared application dependencies.
type Handler struct {
	server *server.Server
}

func NewHandler(s *server.Server) Handler {
	return Handler{server: s}
}

// --- Generic typed handler plumbing -----------------------------------------

// Payload constrains request payloads to pointers of struct types that
// validate themselves. The pointer form lets Handle allocate a fresh payload
// for every request.
type Payload[T any] interface {
	*T
	validation.Validatable
}

// HandlerFunc is a typed endpoint: it receives a bound and validated payload
// plus the connection acquired for this request, and returns the response
// body or an error.
type HandlerFunc[Req validation.Validatable, Res any] func(ctx context.Context, conn database.Conn, req Req) (Res, error)

// HandlerFuncNoContent is a typed endpoint without response body.
type HandlerFuncNoContent[Req validation.Validatable] func(ctx context.Context, conn database.Conn, req Req) error

// ResponseHandler turns a successful result into a pipeline response and
// describes it for logs and traces.
type ResponseHandler interface {
	Respond(result any) *pipeline.Response

	// GetOperation names the handler kind in logs.
	GetOperation() string

	AddAttributes(txn *newrelic.Transaction, result any)
}

// JSONResponseHandler writes the result as JSON with a fixed status.
type JSONResponseHandler struct {
	status int
}

func (h JSONResponseHandler) Respond(result any) *pipeline.Response {
	return pipeline.JSON(h.status, result)
}

func (h JSONResponseHandler) GetOperation() string {
	return "handler"
}

func (h JSONResponseHandler) AddAttributes(txn *newrelic.Transaction, result any) {
	// http.status_code is set by the tracing middleware.
}

// NoContentResponseHandler writes a status without body.
type NoContentResponseHandler struct {
	status int
}

func (h NoContentResponseHandler) Respond(any) *pipeline.Response {
	return pipeline.NoContent(h.status)
}

func (h NoContentResponseHandler) GetOperation() string {
	return "handler_no_content"
}

func (h NoContentResponseHandler) AddAttributes(txn *newrelic.Transaction, result any) {}

// handleRequest is the shared execution path of every typed endpoint:
//
//   - a fresh payload is bound and validated
//   - the request's database handle is taken from the extensions and one
//     connection reference is acquired for the rest of the request
//   - the endpoint runs, with durations logged and reported to New Relic
//
// The reference is released on every return path.
func handleRequest[T any, Req Payload[T]](
	ctx context.Context,
	req *pipeline.Request,
	handler func(ctx context.Context, conn database.Conn, req Req) (any, error),
	responseHandler ResponseHandler,
) (*pipeline.Response, error) {
	start := time.Now()
	route := req.Route()

	txn := newrelic.FromContext(ctx)
	if txn != nil {
		txn.AddAttribute("handler.name", route)
		responseHandler.AddAttributes(txn, nil)
	}

	// request_id, method, path and trace ids come from the ContextEnhancer
	logger := zerolog.Ctx(ctx).With().
		Str("operation", responseHandler.GetOperation()).
		Str("route", route).
		Logger()

	logger.Info().Msg("handling request")

	// ---------------- Validation phase ---------------------------------------
	validationStart := time.Now()

	payload := Req(new(T))
	if err := validation.BindAndValidate(req, payload); err != nil {
		validationDuration := time.Since(validationStart)

		logger.Error().
			Err(err).
			Dur("validation_duration", validationDuration).
			Msg("request validation failed")

		if txn != nil {
			txn.NoticeError(nrpkgerrors.Wrap(err))
			txn.AddAttribute("validation.status", "failed")
			txn.AddAttribute("validation.duration_ms", validationDuration.Milliseconds())
		}

		return nil, err
	}

	validationDuration := time.Since(validationStart)
	if txn != nil {
		txn.AddAttribute("validation.status", "success")
		txn.AddAttribute("validation.duration_ms", validationDuration.Milliseconds())
	}

	logger.Debug().
		Dur("validation_duration", validationDuration).
		Msg("request validation successful")

	// ---------------- Connection phase ---------------------------------------
	handle, err := pipeline.Extract[*database.Handle](req)
	if err != nil {
		logger.Error().Err(err).Msg("database handle missing from request")
		return nil, err
	}

	acquireStart := time.Now()
	ref, err := handle.Acquire(ctx)
	if err != nil {
		logger.Warn().
			Err(err).
			Dur("acquire_duration", time.Since(acquireStart)).
			Msg("could not acquire database connection")
		return nil, err
	}
	defer ref.Release()

	acquireDuration := time.Since(acquireStart)
	if txn != nil {
		txn.AddAttribute("db.acquire_ms", acquireDuration.Milliseconds())
	}

	// ---------------- Handler execution phase --------------------------------
	handlerStart := time.Now()
	result, err := handler(ctx, ref, payload)
	handlerDuration := time.Since(handlerStart)

	if err != nil {
		totalDuration := time.Since(start)

		logger.Error().
			Err(err).
			Dur("handler_duration", handlerDuration).
			Dur("total_duration", totalDuration).
			Msg("handler execution failed")

		if txn != nil {
			txn.NoticeError(nrpkgerrors.Wrap(err))
			txn.AddAttribute("handler.status", "error")
			txn.AddAttribute("handler.duration_ms", handlerDuration.Milliseconds())
			txn.AddAttribute("total.duration_ms", totalDuration.Milliseconds())
		}
		return nil, err
	}

	totalDuration := time.Since(start)

	if txn != nil {
		txn.AddAttribute("handler.status", "success")
		txn.AddAttribute("handler.duration_ms", handlerDuration.Milliseconds())
		txn.AddAttribute("total.duration_ms", totalDuration.Milliseconds())
		responseHandler.AddAttributes(txn, result)
	}

	logger.Info().
		Dur("acquire_duration", acquireDuration).
		Dur("handler_duration", handlerDuration).
		Dur("validation_duration", validationDuration).
		Dur("total_duration", totalDuration).
		Msg("request completed successfully")

	return responseHandler.Respond(result), nil
}

// Handle wraps a typed endpoint into a pipeline service with binding,
// validation, connection management, logging and tracing.
//
//	router.Register(http.MethodPost, "/entities", handler.Handle[model.CreateTaskPayload](h, fn, http.StatusCreated))
func Handle[T any, Req Payload[T], Res any](
	h Handler,
	handler HandlerFunc[Req, Res],
	status int,
) pipeline.Service {
	return pipeline.ServiceFunc(func(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
		return handleRequest[T, Req](ctx, req, func(ctx context.Context, conn database.Conn, payload Req) (any, error) {
			return handler(ctx, conn, payload)
		}, JSONResponseHandler{status: status})
	})
}

// HandleNoContent is Handle for endpoints without response body, e.g. DELETE
// answering 204.
func HandleNoContent[T any, Req Payload[T]](
	h Handler,
	handler HandlerFuncNoContent[Req],
	status int,
) pipeline.Service {
	return pipeline.ServiceFunc(func(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
		return handleRequest[T, Req](ctx, req, func(ctx context.Context, conn database.Conn, payload Req) (any, error) {
			return nil, handler(ctx, conn, payload)
		}, NoContentResponseHandler{status: status})
	})
}
