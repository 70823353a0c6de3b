package errs

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST", NewBadRequestError("x", false, nil, nil, nil).Code)

	code := "TASK_GONE"
	notFound := NewNotFoundError("gone", true, &code)
	assert.Equal(t, http.StatusNotFound, notFound.Status)
	assert.Equal(t, "TASK_GONE", notFound.Code)

	notAllowed := NewMethodNotAllowedError([]string{"GET", "DELETE"})
	assert.Equal(t, "METHOD_NOT_ALLOWED", notAllowed.Code)
	assert.Equal(t, "Method Not Allowed, allowed: GET, DELETE", notAllowed.Message)

	assert.Equal(t, "TOO_MANY_REQUESTS", NewTooManyRequestsError("slow down").Code)
	assert.Equal(t, "RESOURCE_UNAVAILABLE", NewInternalServerErrorWithCode("RESOURCE_UNAVAILABLE").Code)
	assert.Equal(t, "Validation failed: nope", ValidationError(errors.New("nope")).Message)
}

func TestHTTPErrorWithMessageCopies(t *testing.T) {
	orig := NewInternalServerError()
	changed := orig.WithMessage("other")

	assert.Equal(t, "Internal Server Error", orig.Message)
	assert.Equal(t, "other", changed.Message)
	assert.True(t, errors.Is(changed, &HTTPError{}))
}

func TestConfigurationErrorUnwraps(t *testing.T) {
	cause := errors.New("missing DATABASE_URL")
	err := NewConfigurationError("invalid configuration", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "configuration error: invalid configuration: missing DATABASE_URL", err.Error())
	assert.Equal(t, "configuration error: bare", NewConfigurationError("bare", nil).Error())
}
