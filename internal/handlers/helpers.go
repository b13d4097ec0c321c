// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	authsvc "github.com/gonziita68/restaurante-gyz/internal/services/auth"
	"github.com/gonziita68/restaurante-gyz/internal/validation"
)

// bindAndValidate decodes the body into req and runs the struct validator.
// It writes the error response itself and reports whether the caller may go on.
func bindAndValidate(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, fail(c, http.StatusBadRequest, "bad_request")
	}
	if err := c.Validate(req); err != nil {
		if fields := validation.Fields(err); fields != nil {
			return false, failFields(c, http.StatusBadRequest, "validation_failed", fields)
		}
		return false, internalError(c, err)
	}
	return true, nil
}

// passwordMessages localises every violation of a password policy.
func passwordMessages(ctx context.Context, perr *authsvc.PasswordValidationError) []string {
	return lo.Map(perr.Violations, func(v authsvc.Violation, _ int) string {
		return i18n.TData(ctx, "password_"+v.Code, v.Params)
	})
}

// passwordFailure writes the response for errors returned by password changes.
// It returns false when err is not a password problem.
func passwordFailure(c echo.Context, err error, field string) (bool, error) {
	var perr *authsvc.PasswordValidationError
	switch {
	case errors.As(err, &perr):
		return true, failFields(c, http.StatusBadRequest, "validation_failed", map[string][]string{
			field: passwordMessages(c.Request().Context(), perr),
		})
	case errors.Is(err, authsvc.ErrPasswordMismatch):
		return true, failFields(c, http.StatusBadRequest, "password_mismatch", map[string][]string{
			"password_confirm": {i18n.T(c.Request().Context(), "password_mismatch")},
		})
	}
	return false, nil
}
