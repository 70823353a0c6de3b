package model

import (
	"github.com/google/uuid"
)

// Task is a row of the tasks table and the resource returned by the API.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Done        bool      `json:"done"`
}

// ----------------------------------------------------------------------------

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ListTasksQuery is GET /entities.
type ListTasksQuery struct {
	Limit  *int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset *int `query:"offset" validate:"omitempty,min=0"`
}

func (q *ListTasksQuery) Validate() error {
	return validate.Struct(q)
}

// Page returns limit and offset with defaults applied.
func (q *ListTasksQuery) Page() (limit, offset int) {
	limit, offset = DefaultListLimit, 0
	if q.Limit != nil {
		limit = *q.Limit
	}
	if q.Offset != nil {
		offset = *q.Offset
	}
	return limit, offset
}

// ----------------------------------------------------------------------------

// CreateTaskPayload is POST /entities.
type CreateTaskPayload struct {
	Title       string  `json:"title" validate:"required,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Done        bool    `json:"done"`
}

func (p *CreateTaskPayload) Validate() error {
	return validate.Struct(p)
}

// ----------------------------------------------------------------------------

// TaskIDParam is the `:id` of GET and DELETE /entities/:id.
type TaskIDParam struct {
	ID string `param:"id" json:"-" validate:"required,uuid"`
}

func (p *TaskIDParam) Validate() error {
	return validate.Struct(p)
}

// TaskID returns the parsed id. Only valid after Validate succeeded.
func (p *TaskIDParam) TaskID() uuid.UUID {
	return uuid.MustParse(p.ID)
}

// ----------------------------------------------------------------------------

// UpdateTaskPayload is PATCH /entities/:id. Title is required; a missing
// description or done leaves the stored value unchanged.
type UpdateTaskPayload struct {
	ID          string  `param:"id" json:"-" validate:"required,uuid"`
	Title       *string `json:"title" validate:"required,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Done        *bool   `json:"done"`
}

func (p *UpdateTaskPayload) Validate() error {
	return validate.Struct(p)
}

// TaskID returns the parsed id. Only valid after Validate succeeded.
func (p *UpdateTaskPayload) TaskID() uuid.UUID {
	return uuid.MustParse(p.ID)
}
