// Package model holds the persisted entities and the request payloads of
// the API.
package model

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())
