package handler

import (
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/deppfellow/go-taskapi/internal/service"
)

// Handlers groups all HTTP handlers so router setup receives a single value.
type Handlers struct {
	Health  *HealthHandler  // GET /status
	OpenAPI *OpenAPIHandler // GET /docs
	Tasks   *TaskHandler    // /entities
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(s),
		OpenAPI: NewOpenAPIHandler(s),
		Tasks:   NewTaskHandler(s, services.Tasks),
	}
}
