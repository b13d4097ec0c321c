// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account lifecycle: registration, email
// verification, login, password reset and password change.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/metrics"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/repository"
	"github.com/gonziita68/restaurante-gyz/internal/services/email"
	"github.com/gonziita68/restaurante-gyz/internal/services/throttle"
	"github.com/gonziita68/restaurante-gyz/internal/services/token"
	"github.com/gonziita68/restaurante-gyz/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPasswordMismatch   = errors.New("passwords do not match")
)

// Callback paths of the emailed links.
const (
	ActivationPath    = "/auth/activate"
	PasswordResetPath = "/auth/password-reset"
)

// Token audiences keep an activation link from working as a reset link.
const (
	AudienceActivation    = "activation"
	AudiencePasswordReset = "password_reset"
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// ActivationResult tells what Activate did.
type ActivationResult int

const (
	// ActivationActivated means the account was inactive and is now active.
	ActivationActivated ActivationResult = iota + 1
	// ActivationAlreadyActive means the link was followed again; nothing changed.
	ActivationAlreadyActive
)

// Notifications sends the account emails.
type Notifications interface {
	SendVerification(ctx context.Context, user *models.User, link string) email.EnqueueResult
	SendWelcome(ctx context.Context, user *models.User) email.EnqueueResult
	SendPasswordReset(ctx context.Context, user *models.User, link string) email.EnqueueResult
	SendPasswordChanged(ctx context.Context, user *models.User) email.EnqueueResult
}

// Options holds the collaborators of a Service.
type Options struct {
	BaseURL    string
	Activation *token.Issuer
	Reset      *token.Issuer
	Resend     *throttle.Throttle
	Metrics    *metrics.Metrics
	BcryptCost int
}

type Service struct {
	repo       *repository.Repository
	notify     Notifications
	activation *token.Issuer
	reset      *token.Issuer
	resend     *throttle.Throttle
	metrics    *metrics.Metrics
	baseURL    string
	cost       int
	policy     *PasswordPolicy
	validate   *validation.Validator
	flight     singleflight.Group
	now        func() time.Time
}

func NewService(repo *repository.Repository, notify Notifications, opts Options) *Service {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		notify:     notify,
		activation: opts.Activation,
		reset:      opts.Reset,
		resend:     opts.Resend,
		metrics:    opts.Metrics,
		baseURL:    opts.BaseURL,
		cost:       cost,
		policy:     DefaultPasswordPolicy(),
		validate:   validation.New(),
		now:        time.Now,
	}
}

// NewTokenIssuers builds the activation and password reset issuers from cfg.
func NewTokenIssuers(cfg *config.TokenConfig, users token.UserLookup) (activation, reset *token.Issuer, err error) {
	act, err := token.NewJWTGenerator(cfg.Secret, cfg.TTL, token.WithAudience(AudienceActivation))
	if err != nil {
		return nil, nil, err
	}
	rst, err := token.NewJWTGenerator(cfg.Secret, cfg.TTL, token.WithAudience(AudiencePasswordReset))
	if err != nil {
		return nil, nil, err
	}
	return token.NewIssuer(act, users), token.NewIssuer(rst, users), nil
}

// PasswordPolicy returns the password rules for use in handlers
func (s *Service) PasswordPolicy() *PasswordPolicy {
	return s.policy
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Username        string `json:"username" validate:"required,max=150,username"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	Phone           string `json:"phone" validate:"omitempty,max=15"`
	BirthDate       string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address         string `json:"address" validate:"omitempty,max=200"`
}

// Registration is the outcome of Register.
type Registration struct {
	User *models.User
	// VerificationSent is false when the verification email is known to have failed.
	// The account exists either way; the user can ask for a resend.
	VerificationSent bool
}

// Register creates an inactive account and emails the verification link.
// Field errors are returned as validator.ValidationErrors.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Registration, error) {
	params.Username = strings.TrimSpace(params.Username)
	params.Email = strings.TrimSpace(params.Email)

	if err := s.validate.Validate(params); err != nil {
		return nil, err
	}
	if params.Password != params.PasswordConfirm {
		return nil, ErrPasswordMismatch
	}
	if err := s.policy.Check(params.Password, params.Username, params.Email, params.FirstName, params.LastName); err != nil {
		return nil, err
	}

	taken, err := s.repo.UsernameExists(ctx, params.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return nil, ErrUsernameTaken
	}
	taken, err = s.repo.EmailExists(ctx, params.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		FirstName:    strings.TrimSpace(params.FirstName),
		LastName:     strings.TrimSpace(params.LastName),
		Phone:        optional(params.Phone),
		Address:      optional(params.Address),
	}
	if params.BirthDate != "" {
		// Already checked by the datetime tag.
		born, _ := time.Parse(time.DateOnly, params.BirthDate)
		user.BirthDate = &born
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, s.duplicateCause(ctx, user.Username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "register_success", "user_id", user.ID, "username", user.Username)

	sent := s.sendVerification(ctx, user)
	return &Registration{User: user, VerificationSent: sent}, nil
}

func (s *Service) duplicateCause(ctx context.Context, username string) error {
	if taken, err := s.repo.UsernameExists(ctx, username); err == nil && taken {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) bool {
	uid, tok, err := s.activation.Issue(user)
	if err != nil {
		slog.ErrorContext(ctx, "verification_token_failed", "user_id", user.ID, "error", err)
		return false
	}
	res := s.notify.SendVerification(ctx, user, token.Link(s.baseURL, ActivationPath, uid, tok))
	return !res.Failed()
}

// Login authenticates by username or email address.
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.WarnContext(ctx, "login_failed", "identifier", identifier, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "not_verified")
		return nil, ErrAccountNotVerified
	}

	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	slog.InfoContext(ctx, "login_success", "user_id", user.ID)
	return user, nil
}

func (s *Service) findByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return user, err
	}
	if !strings.Contains(identifier, "@") {
		return nil, err
	}
	return s.repo.GetUserByEmail(ctx, identifier)
}

// Activate verifies the account addressed by an activation link.
// Following the link again reports ActivationAlreadyActive and sends nothing.
func (s *Service) Activate(ctx context.Context, uid, tok string) (ActivationResult, error) {
	user, err := s.activation.Lookup(ctx, uid)
	if err != nil {
		return 0, err
	}
	// The token fingerprint covers is_active, so a repeated click is checked
	// against the account as it was before activation.
	if user.IsActive {
		pending := *user
		pending.IsActive = false
		if !s.activation.Check(&pending, tok) {
			slog.WarnContext(ctx, "activation_invalid", "user_id", user.ID)
			return 0, token.ErrInvalid
		}
		slog.InfoContext(ctx, "activation_repeated", "user_id", user.ID)
		return ActivationAlreadyActive, nil
	}
	if _, err := s.activation.Resolve(ctx, uid, tok); err != nil {
		slog.WarnContext(ctx, "activation_invalid", "user_id", user.ID)
		return 0, err
	}

	if err := s.repo.SetUserActive(ctx, user.ID, true); err != nil {
		return 0, fmt.Errorf("failed to activate user: %w", err)
	}
	user.IsActive = true

	slog.InfoContext(ctx, "activation_success", "user_id", user.ID)
	s.notify.SendWelcome(ctx, user)
	return ActivationActivated, nil
}

// ResendVerification emails a new verification link to an inactive account.
// Unknown, active and throttled addresses are silently ignored so callers
// cannot tell them apart. Concurrent calls for one address share one send.
func (s *Service) ResendVerification(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}

	if s.resend.ShouldThrottle(ctx, address) {
		s.countThrottled()
		slog.InfoContext(ctx, "verification_resend_throttled")
		return nil
	}

	_, err, _ := s.flight.Do(s.resend.Key(address), func() (any, error) {
		return nil, s.resendOnce(ctx, address)
	})
	return err
}

func (s *Service) resendOnce(ctx context.Context, address string) error {
	// A call that waited on another flight would otherwise send again.
	if s.resend.ShouldThrottle(ctx, address) {
		s.countThrottled()
		return nil
	}

	user, err := s.repo.GetUserByEmail(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsActive {
		return nil
	}

	s.sendVerification(ctx, user)
	s.resend.MarkSent(ctx, address)
	return nil
}

func (s *Service) countThrottled() {
	if s.metrics != nil {
		s.metrics.ResendThrottled.Inc()
	}
}

// RequestPasswordReset emails a reset link when address belongs to an account.
// Unknown addresses and delivery failures look the same to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) error {
	user, err := s.repo.GetUserByEmail(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		slog.InfoContext(ctx, "password_reset_unknown_address")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	uid, tok, err := s.reset.Issue(user)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}
	res := s.notify.SendPasswordReset(ctx, user, token.Link(s.baseURL, PasswordResetPath, uid, tok))
	if res.Failed() {
		slog.WarnContext(ctx, "password_reset_not_delivered", "user_id", user.ID, "job_id", res.JobID)
	}
	return nil
}

// CheckResetLink returns the user a reset link belongs to, or token.ErrInvalid.
func (s *Service) CheckResetLink(ctx context.Context, uid, tok string) (*models.User, error) {
	return s.reset.Resolve(ctx, uid, tok)
}

// ConfirmPasswordReset sets a new password through a reset link. Changing
// the hash invalidates the link.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, tok, newPassword, confirm string) error {
	user, err := s.reset.Resolve(ctx, uid, tok)
	if err != nil {
		return err
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}
	slog.InfoContext(ctx, "password_reset_success", "user_id", user.ID)
	return nil
}

// ChangePassword changes a user's password (when they know their current password)
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword, confirm string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if newPassword != confirm {
		return nil, ErrPasswordMismatch
	}
	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "password_changed", "user_id", user.ID)
	return user, nil
}

func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	if err := s.policy.Check(password, user.Username, user.Email, user.FirstName, user.LastName); err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = string(passwordHash)

	s.notify.SendPasswordChanged(ctx, user)
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
