// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/gonziita68/restaurante-gyz/internal/auth"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	authsvc "github.com/gonziita68/restaurante-gyz/internal/services/auth"
	"github.com/gonziita68/restaurante-gyz/internal/services/session"
	"github.com/gonziita68/restaurante-gyz/internal/services/token"
	"github.com/gonziita68/restaurante-gyz/internal/validation"
)

// AuthHandlers contains handlers for the account flows.
type AuthHandlers struct {
	svc      *authsvc.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *authsvc.Service, sess *session.Manager) *AuthHandlers {
	return &AuthHandlers{svc: svc, sessions: sess}
}

// UserResponse wraps a user with a message.
type UserResponse struct {
	Message string       `json:"message,omitempty"`
	User    *models.User `json:"user"`
}

// Register creates an inactive account and sends the verification email.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req authsvc.RegisterParams
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request")
	}

	reg, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			return failFields(c, http.StatusBadRequest, "validation_failed", validation.Fields(err))
		case errors.Is(err, authsvc.ErrUsernameTaken):
			return fail(c, http.StatusConflict, "user_exists_username")
		case errors.Is(err, authsvc.ErrEmailTaken):
			return fail(c, http.StatusConflict, "user_exists_email")
		}
		if handled, herr := passwordFailure(c, err, "password"); handled {
			return herr
		}
		return internalError(c, err)
	}

	msg := "register_success"
	if !reg.VerificationSent {
		msg = "register_email_failed"
	}
	return c.JSON(http.StatusCreated, UserResponse{
		Message: localize(c, msg, nil),
		User:    reg.User,
	})
}

// LoginRequest is the request body for login. Username also accepts an email address.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login checks the credentials and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	user, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "login_invalid")
	case errors.Is(err, authsvc.ErrAccountNotVerified):
		return fail(c, http.StatusForbidden, "login_not_verified")
	case err != nil:
		return internalError(c, err)
	}

	if err := h.setSession(c, user); err != nil {
		return internalError(c, err)
	}

	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	return c.JSON(http.StatusOK, UserResponse{
		Message: localize(c, "login_success", map[string]any{"Name": name}),
		User:    user,
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return message(c, http.StatusOK, "logout_success", nil)
}

// Me returns the authenticated user.
func (h *AuthHandlers) Me(c echo.Context) error {
	user := auth.GetUser(c.Request().Context())
	if user == nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// Activate follows the link from the verification email.
func (h *AuthHandlers) Activate(c echo.Context) error {
	res, err := h.svc.Activate(c.Request().Context(), c.Param("uid"), c.Param("token"))
	switch {
	case errors.Is(err, token.ErrInvalid):
		return fail(c, http.StatusBadRequest, "activation_invalid")
	case err != nil:
		return internalError(c, err)
	case res == authsvc.ActivationAlreadyActive:
		return message(c, http.StatusOK, "activation_already_active", nil)
	default:
		return message(c, http.StatusOK, "activation_success", nil)
	}
}

// EmailRequest carries a single email address.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendVerification sends a new verification link. The response never
// reveals whether the address has a pending account.
func (h *AuthHandlers) ResendVerification(c echo.Context) error {
	var req EmailRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	if err := h.svc.ResendVerification(c.Request().Context(), req.Email); err != nil {
		slog.ErrorContext(c.Request().Context(), "verification_resend_failed", "error", err)
	}
	return message(c, http.StatusOK, "verification_resend_sent", nil)
}

// PasswordResetRequest emails a reset link. Known and unknown addresses get
// the same response.
func (h *AuthHandlers) PasswordResetRequest(c echo.Context) error {
	var req EmailRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	if err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		slog.ErrorContext(c.Request().Context(), "password_reset_request_failed", "error", err)
	}
	return message(c, http.StatusOK, "password_reset_sent", nil)
}

// PasswordResetCheck tells whether a reset link can still be used.
func (h *AuthHandlers) PasswordResetCheck(c echo.Context) error {
	if _, err := h.svc.CheckResetLink(c.Request().Context(), c.Param("uid"), c.Param("token")); err != nil {
		return h.resetLinkFailure(c, err)
	}
	return message(c, http.StatusOK, "password_reset_valid", nil)
}

// SetPasswordRequest is the body of a password reset confirmation.
type SetPasswordRequest struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

// PasswordResetConfirm sets a new password through a reset link.
func (h *AuthHandlers) PasswordResetConfirm(c echo.Context) error {
	var req SetPasswordRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	err := h.svc.ConfirmPasswordReset(c.Request().Context(), c.Param("uid"), c.Param("token"), req.Password, req.PasswordConfirm)
	if err != nil {
		if handled, herr := passwordFailure(c, err, "password"); handled {
			return herr
		}
		return h.resetLinkFailure(c, err)
	}
	return message(c, http.StatusOK, "password_reset_done", nil)
}

func (h *AuthHandlers) resetLinkFailure(c echo.Context, err error) error {
	if errors.Is(err, token.ErrInvalid) {
		return fail(c, http.StatusBadRequest, "password_reset_invalid")
	}
	return internalError(c, err)
}

// ChangePasswordRequest is the body of an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

// ChangePassword changes the password of the logged-in user and renews the
// session cookie, which is bound to the password hash.
func (h *AuthHandlers) ChangePassword(c echo.Context) error {
	current := auth.GetUser(c.Request().Context())
	if current == nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}

	var req ChangePasswordRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	user, err := h.svc.ChangePassword(c.Request().Context(), current.ID, req.CurrentPassword, req.Password, req.PasswordConfirm)
	if err != nil {
		if errors.Is(err, authsvc.ErrInvalidCredentials) {
			return failFields(c, http.StatusBadRequest, "password_current_invalid", map[string][]string{
				"current_password": {localize(c, "password_current_invalid", nil)},
			})
		}
		if handled, herr := passwordFailure(c, err, "password"); handled {
			return herr
		}
		return internalError(c, err)
	}

	if err := h.setSession(c, user); err != nil {
		return internalError(c, err)
	}
	return message(c, http.StatusOK, "password_changed", nil)
}

func (h *AuthHandlers) setSession(c echo.Context, user *models.User) error {
	cookie, err := h.sessions.CreateFor(user)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return nil
}
