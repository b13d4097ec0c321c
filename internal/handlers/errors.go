// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gonziita68/restaurante-gyz/internal/i18n"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// MessageBody is the JSON shape of a successful response without payload.
type MessageBody struct {
	Message string `json:"message"`
}

// statusMessages maps HTTP statuses to translation keys.
var statusMessages = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not_found",
	http.StatusInternalServerError: "internal_error",
}

// ErrorHandler renders errors that escape handlers as localised JSON.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed", "error", err, "path", c.Path())
	}

	ctx := c.Request().Context()
	message := http.StatusText(code)
	if id, ok := statusMessages[code]; ok {
		message = i18n.TDefault(ctx, id, message, nil)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorBody{Error: message})
	}
	if err != nil {
		slog.ErrorContext(ctx, "error_response_failed", "error", err)
	}
}

func fail(c echo.Context, code int, messageID string) error {
	return c.JSON(code, ErrorBody{Error: i18n.T(c.Request().Context(), messageID)})
}

func failFields(c echo.Context, code int, messageID string, fields map[string][]string) error {
	return c.JSON(code, ErrorBody{Error: i18n.T(c.Request().Context(), messageID), Fields: fields})
}

func internalError(c echo.Context, err error) error {
	slog.ErrorContext(c.Request().Context(), "handler_failed", "error", err, "path", c.Path())
	return fail(c, http.StatusInternalServerError, "internal_error")
}

func message(c echo.Context, code int, messageID string, data map[string]any) error {
	return c.JSON(code, MessageBody{Message: localize(c, messageID, data)})
}

func localize(c echo.Context, messageID string, data map[string]any) string {
	return i18n.TData(c.Request().Context(), messageID, data)
}
