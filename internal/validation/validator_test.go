// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonziita68/restaurante-gyz/internal/validation"
)

type signup struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=15"`
	Internal string `json:"-"`
}

func TestValidate_Valid(t *testing.T) {
	v := validation.New()

	err := v.Validate(signup{Username: "ana.perez+1", Email: "ana@example.com"})

	assert.NoError(t, err)
}

func TestValidate_UsernameCharset(t *testing.T) {
	v := validation.New()

	err := v.Validate(signup{Username: "ana perez", Email: "ana@example.com"})

	require.Error(t, err)
	assert.Equal(t, map[string][]string{"username": {"username"}}, validation.Fields(err))
}

func TestFields_UsesJSONNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(signup{Email: "not-an-email", Phone: "1234567890123456"})

	fields := validation.Fields(err)
	assert.Equal(t, []string{"required"}, fields["username"])
	assert.Equal(t, []string{"email"}, fields["email"])
	assert.Equal(t, []string{"max"}, fields["phone"])
}

func TestFields_NonValidationError(t *testing.T) {
	assert.Nil(t, validation.Fields(errors.New("boom")))
}

func TestErrorResponse(t *testing.T) {
	v := validation.New()
	err := v.Validate(signup{Username: "ana", Email: "x"})

	body := validation.ErrorResponse(err, "Por favor, corrige los errores en el formulario.")

	assert.Equal(t, "Por favor, corrige los errores en el formulario.", body.Error)
	assert.Equal(t, []string{"email"}, body.Fields["email"])

	empty := validation.ErrorResponse(errors.New("boom"), "x")
	assert.NotNil(t, empty.Fields)
	assert.Empty(t, empty.Fields)
}
