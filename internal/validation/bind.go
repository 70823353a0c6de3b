package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/deppfellow/go-taskapi/internal/pipeline"
	"github.com/go-viper/mapstructure/v2"
)

const (
	// ParamTag names path parameters on payload fields: `param:"id"`.
	ParamTag = "param"
	// QueryTag names query string values on payload fields: `query:"limit"`.
	QueryTag = "query"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// BindAndValidate binds request data into payload and validates it.
//
// Sources, in order:
//  1. JSON body (fields by `json` tag), when the request has one
//  2. path parameters captured by the router (`param` tag)
//  3. query string (`query` tag)
//
// payload must be a pointer to a struct. Any failure is an *errs.HTTPError
// with status 400, carrying field errors when validation failed.
func BindAndValidate(req *pipeline.Request, payload Validatable) error {
	if err := bindBody(req.HTTP, payload); err != nil {
		return err
	}

	if params := req.Params(); len(params) > 0 {
		input := make(map[string]any, len(params))
		for k, v := range params {
			input[k] = v
		}
		if err := decode(ParamTag, input, payload); err != nil {
			return errs.NewBadRequestError("Invalid path parameters", false, nil, nil, nil)
		}
	}

	if query := req.HTTP.URL.Query(); len(query) > 0 {
		input := make(map[string]any, len(query))
		for k, v := range query {
			// repeated keys: the first value wins
			input[k] = v[0]
		}
		if err := decode(QueryTag, input, payload); err != nil {
			return errs.NewBadRequestError("Invalid query parameters", false, nil, nil, nil)
		}
	}

	return validateStruct(payload)
}

func bindBody(r *http.Request, payload any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return errs.NewBadRequestError("Could not read request body", false, nil, nil, nil)
	}
	if len(body) > MaxBodyBytes {
		return errs.NewBadRequestError("Request body too large", true, nil, nil, nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return errs.NewBadRequestError("Invalid request body", true, nil, []errs.FieldError{
				{Field: typeErr.Field, Error: "must be a " + typeErr.Type.String()},
			}, nil)
		}
		return errs.NewBadRequestError("Invalid JSON body", true, nil, nil, nil)
	}

	return nil
}

func decode(tag string, input map[string]any, payload any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:              tag,
		IgnoreUntaggedFields: true,
		WeaklyTypedInput:     true,
		Result:               payload,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
