// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package validation checks request payloads with struct tags.
package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// usernamePattern allows letters, digits and @/./+/-/_.
var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a validator with the "username" tag registered.
// Field names in errors follow the json tag.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate validates a struct.
func (d *Validator) Validate(i any) error {
	return d.v.Struct(i)
}
