// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/models"
)

const registerBody = `{
	"username": "ana",
	"email": "ana@example.com",
	"first_name": "Ana",
	"password": "mesa-para-cuatro-2024",
	"password_confirm": "mesa-para-cuatro-2024"
}`

func testConfig(mode string) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 8080, BaseURL: "http://localhost:8080", MaxBodySize: 1},
		Database: config.DatabaseConfig{DSN: ":memory:"},
		SMTP:     config.SMTPConfig{From: "no-reply@gyz.example.com"},
		Brand:    config.BrandConfig{SiteName: "Restaurante GYZ"},
		Queue: config.QueueConfig{
			Mode:        mode,
			Backend:     config.BackendMemory,
			Size:        10,
			Workers:     1,
			MaxAttempts: 1,
		},
		Throttle: config.ThrottleConfig{Backend: config.BackendMemory, Cooldown: time.Minute},
		Token:    config.TokenConfig{Secret: "test-secret"},
		Session:  config.SessionConfig{CookieName: "_test_session", MaxAge: 3600, HashKey: testHashKey},
	}
}

func newTestApp(t *testing.T, mode string) *App {
	t.Helper()
	app, err := NewApp(testConfig(mode))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func serve(app *App, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_SyncMode(t *testing.T) {
	app := newTestApp(t, config.QueueModeSync)

	assert.Nil(t, app.Broker)
	assert.Nil(t, app.Worker)
	assert.NotNil(t, app.Auth)
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t, config.QueueModeSync)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/auth/me", http.StatusUnauthorized},
		{http.MethodPost, "/auth/password", http.StatusUnauthorized},
		{http.MethodGet, "/auth/activate/bad/link", http.StatusBadRequest},
		{http.MethodGet, "/auth/password-reset/bad/link", http.StatusBadRequest},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/health/", http.StatusMovedPermanently},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(app, tt.method, tt.path, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRegister_SyncModeLogsEmail(t *testing.T) {
	app := newTestApp(t, config.QueueModeSync)

	rec := serve(app, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	n, err := app.Repo.CountEmailLogs(context.Background(), "ana@example.com", models.PurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	metrics := serve(app, http.MethodGet, "/metrics", "")
	assert.Contains(t, metrics.Body.String(), `gyz_email_enqueue_total{mode="inline"} 1`)
}

func TestRegister_QueueModeWorker(t *testing.T) {
	app := newTestApp(t, config.QueueModeQueue)
	require.NotNil(t, app.Worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	rec := serve(app, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Eventually(t, func() bool {
		n, err := app.Repo.CountEmailLogs(context.Background(), "ana@example.com", models.PurposeVerification)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewApp_InvalidQueueBackend(t *testing.T) {
	cfg := testConfig(config.QueueModeQueue)
	cfg.Queue.Backend = "kafka"

	_, err := NewApp(cfg)
	assert.Error(t, err)
}
