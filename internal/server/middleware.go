// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gonziita68/restaurante-gyz/internal/auth"
	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/repository"
	"github.com/gonziita68/restaurante-gyz/internal/services/session"
)

// UserLoader loads the user a session points at.
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

func setupMiddleware(e *echo.Echo, cfg *config.Config, sessions *session.Manager, users UserLoader) {
	e.Pre(middleware.RemoveTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(i18nMiddleware())
	e.Use(AuthMiddleware(sessions, users))
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// AuthMiddleware loads the session user into the request context. Sessions
// of deleted or deactivated users, or from before a password change, are
// treated as anonymous and their cookie is cleared.
func AuthMiddleware(sessions *session.Manager, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			data, err := sessions.Parse(req)
			if err != nil || data == nil {
				return next(c)
			}

			user, err := users.GetUserByID(req.Context(), data.UserID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if user == nil || !data.Valid(user) {
				c.SetCookie(sessions.Clear())
				return next(c)
			}

			c.SetRequest(req.WithContext(auth.WithUser(req.Context(), user, data)))
			return next(c)
		}
	}
}

// RequireAuth rejects requests without an authenticated user.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !auth.IsAuthenticated(c.Request().Context()) {
				return echo.ErrUnauthorized
			}
			return next(c)
		}
	}
}
