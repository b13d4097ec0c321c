// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// ErrorBody is the validation error payload.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// Fields maps each failing field to the tags it failed.
// It returns nil when err is not a validation error.
func Fields(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := map[string][]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
	}
	for name, tags := range fields {
		fields[name] = lo.Uniq(tags)
	}
	return fields
}

// ErrorResponse converts err into a payload with message as the error text.
func ErrorResponse(err error, message string) ErrorBody {
	fields := Fields(err)
	if fields == nil {
		fields = map[string][]string{}
	}
	return ErrorBody{Error: message, Fields: fields}
}
