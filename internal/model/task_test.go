package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestCreateTaskPayloadValidate(t *testing.T) {
	assert.NoError(t, (&CreateTaskPayload{Title: "write docs"}).Validate())
	assert.NoError(t, (&CreateTaskPayload{Title: strings.Repeat("é", 255)}).Validate(), "length counts characters")

	assert.Error(t, (&CreateTaskPayload{}).Validate())
	assert.Error(t, (&CreateTaskPayload{Title: strings.Repeat("a", 256)}).Validate())
	assert.Error(t, (&CreateTaskPayload{Title: "x", Description: ptr(strings.Repeat("a", 2001))}).Validate())
}

func TestUpdateTaskPayloadValidate(t *testing.T) {
	id := "7d9f3c1e-2b4a-4c8e-9f0a-1b2c3d4e5f60"

	assert.NoError(t, (&UpdateTaskPayload{ID: id, Title: ptr("t")}).Validate())
	assert.Error(t, (&UpdateTaskPayload{ID: id}).Validate(), "title is required")
	assert.Error(t, (&UpdateTaskPayload{ID: id, Title: ptr("")}).Validate())
	assert.Error(t, (&UpdateTaskPayload{ID: "nope", Title: ptr("t")}).Validate())
}

func TestListTasksQuery(t *testing.T) {
	q := &ListTasksQuery{}
	assert.NoError(t, q.Validate())
	limit, offset := q.Page()
	assert.Equal(t, DefaultListLimit, limit)
	assert.Equal(t, 0, offset)

	assert.Error(t, (&ListTasksQuery{Limit: ptr(0)}).Validate())
	assert.Error(t, (&ListTasksQuery{Limit: ptr(MaxListLimit + 1)}).Validate())
	assert.Error(t, (&ListTasksQuery{Offset: ptr(-1)}).Validate())

	q = &ListTasksQuery{Limit: ptr(10), Offset: ptr(20)}
	assert.NoError(t, q.Validate())
	limit, offset = q.Page()
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)
}
