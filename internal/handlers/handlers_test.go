// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/gonziita68/restaurante-gyz/internal/handlers"
	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	"github.com/gonziita68/restaurante-gyz/internal/testutil"
)

func init() {
	_ = i18n.Init()
}

func TestNew(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	h := handlers.New(repo)

	assert.NotNil(t, h)
}

func TestHealth(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	h := handlers.New(repo)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_DatabaseDown(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	require.NoError(t, db.Close())
	h := handlers.New(repo)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		lang   language.Tag
		err    error
		code   int
		expect string
	}{
		{"not found spanish", language.Spanish, echo.ErrNotFound, http.StatusNotFound, "No encontramos lo que buscas."},
		{"unauthorized english", language.English, echo.ErrUnauthorized, http.StatusUnauthorized, "You must be logged in to continue."},
		{"plain error", language.Spanish, errors.New("boom"), http.StatusInternalServerError, "Ocurrió un error inesperado. Inténtalo de nuevo más tarde."},
		{"untranslated status", language.English, echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "Method Not Allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req = req.WithContext(i18n.WithLocale(req.Context(), tt.lang))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handlers.ErrorHandler(tt.err, c)

			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.expect+`"}`, rec.Body.String())
		})
	}
}

func TestErrorHandler_Head(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/x", nil), rec)

	handlers.ErrorHandler(echo.ErrNotFound, c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}
