package pipeline

import (
	"github.com/labstack/echo/v4"
)

// EchoHandler mounts svc on Echo. Every request gets a fresh Request and
// therefore fresh Extensions. Errors returned by the pipeline itself (for
// instance readiness cancelled because the client went away) go to Echo's
// HTTPErrorHandler.
func EchoHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := NewRequest(c.Request())

		res, err := Oneshot(c.Request().Context(), svc, req)
		if err != nil {
			return err
		}

		return WriteResponse(c, res)
	}
}

// WriteResponse writes res with Echo: JSON when there is a body, headers only otherwise.
func WriteResponse(c echo.Context, res *Response) error {
	header := c.Response().Header()
	for key, values := range res.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}

	if res.Body == nil {
		return c.NoContent(res.Status)
	}
	return c.JSON(res.Status, res.Body)
}
