// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/gonziita68/restaurante-gyz/internal/auth"
	"github.com/gonziita68/restaurante-gyz/internal/cache"
	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/handlers"
	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	"github.com/gonziita68/restaurante-gyz/internal/mail"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/repository"
	authsvc "github.com/gonziita68/restaurante-gyz/internal/services/auth"
	"github.com/gonziita68/restaurante-gyz/internal/services/email"
	"github.com/gonziita68/restaurante-gyz/internal/services/session"
	"github.com/gonziita68/restaurante-gyz/internal/services/throttle"
	"github.com/gonziita68/restaurante-gyz/internal/services/token"
	"github.com/gonziita68/restaurante-gyz/internal/testutil"
	"github.com/gonziita68/restaurante-gyz/internal/validation"
)

// validHashKey for session manager in tests
const testHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

const changedPassword = "mesa-para-cuatro-2024"

var linkPattern = regexp.MustCompile(`/auth/(activate|password-reset)/([A-Za-z0-9_-]+)/([A-Za-z0-9_.-]+)`)

type authFixture struct {
	h        *handlers.AuthHandlers
	repo     *repository.Repository
	sender   *testutil.CaptureSender
	sessions *session.Manager
	reset    *token.Issuer
	e        *echo.Echo
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)

	renderer, err := mail.NewRenderer()
	require.NoError(t, err)
	sender := &testutil.CaptureSender{}
	dispatcher := email.NewDispatcher(repo, renderer, sender, "no-reply@gyz.example.com", nil)
	enqueuer := email.NewEnqueuer(email.EnqueuerConfig{Mode: config.QueueModeSync}, dispatcher, nil, nil)
	notifier := email.NewNotifier(enqueuer, config.BrandConfig{SiteName: "Restaurante GYZ"})

	activation, reset, err := authsvc.NewTokenIssuers(&config.TokenConfig{Secret: "test-secret"}, repo)
	require.NoError(t, err)

	c := cache.NewMemory()
	t.Cleanup(func() { _ = c.Close() })

	svc := authsvc.NewService(repo, notifier, authsvc.Options{
		BaseURL:    "http://localhost:8080",
		Activation: activation,
		Reset:      reset,
		Resend:     throttle.New(c, models.PurposeVerification, time.Minute),
		BcryptCost: bcrypt.MinCost,
	})

	sessMgr, err := session.NewManager(&config.SessionConfig{
		CookieName: "_test_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
	}, false)
	require.NoError(t, err)

	e := echo.New()
	e.Validator = validation.New()
	e.HTTPErrorHandler = handlers.ErrorHandler

	return &authFixture{
		h:        handlers.NewAuth(svc, sessMgr),
		repo:     repo,
		sender:   sender,
		sessions: sessMgr,
		reset:    reset,
		e:        e,
	}
}

// call runs handler with a JSON body, optional route params and an optional user.
func (f *authFixture) call(t *testing.T, handler echo.HandlerFunc, body string, user *models.User, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = testutil.NewRequest(http.MethodGet, "/", nil)
	} else {
		req = testutil.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}
	ctx := i18n.WithLocale(req.Context(), language.Spanish)
	if user != nil {
		ctx = auth.WithUser(ctx, user, nil)
	}
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if len(params) > 0 {
		c.SetParamNames("uid", "token")
		c.SetParamValues(params...)
	}
	require.NoError(t, handler(c))
	return rec
}

func (f *authFixture) lastLink(t *testing.T) (string, string) {
	t.Helper()
	sent := f.sender.Sent()
	require.NotEmpty(t, sent)
	m := linkPattern.FindStringSubmatch(sent[len(sent)-1].Text)
	require.NotNil(t, m)
	return m[2], m[3]
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const registerBody = `{
	"username": "ana",
	"email": "ana@example.com",
	"password": "correct-horse-battery",
	"password_confirm": "correct-horse-battery",
	"first_name": "Ana",
	"phone": "+541122334455"
}`

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.Register, registerBody, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "¡Registro exitoso! Te hemos enviado un correo para verificar tu cuenta.", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "ana", user["username"])
	assert.Equal(t, false, user["is_active"])
	assert.NotContains(t, user, "password_hash")
	assert.Len(t, f.sender.Sent(), 1)
}

func TestRegister_ValidationErrors(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.Register, `{"username":"a b","email":"nope","password":"x","password_confirm":"x"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Revisa los datos del formulario.", body["error"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
}

func TestRegister_WeakPassword(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.Register, `{"username":"ana","email":"ana@example.com","password":"123","password_confirm":"123"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]any)
	assert.Equal(t, []any{
		"La contraseña debe tener al menos 8 caracteres.",
		"La contraseña no puede ser completamente numérica.",
	}, fields["password"])
}

func TestRegister_PasswordMismatch(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.Register, `{"username":"ana","email":"ana@example.com","password":"correct-horse-battery","password_confirm":"otra"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Las contraseñas no coinciden.", decode(t, rec)["error"])
}

func TestRegister_Duplicate(t *testing.T) {
	f := newAuthFixture(t)
	testutil.NewTestUser(t, f.repo, "ana")

	rec := f.call(t, f.h.Register, registerBody, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Ese nombre de usuario ya está en uso.", decode(t, rec)["error"])
}

func TestRegister_BadJSON(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.Register, `{"username":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	user := testutil.NewTestUser(t, f.repo, "luis")

	rec := f.call(t, f.h.Login, `{"username":"luis@example.com","password":"correct-horse-battery"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "¡Bienvenido, luis!", decode(t, rec)["message"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "_test_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	data, err := f.sessions.Parse(req)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, user.ID, data.UserID)
	assert.Equal(t, session.Stamp(user), data.Stamp)
}

func TestLogin_Failures(t *testing.T) {
	f := newAuthFixture(t)
	testutil.NewTestUser(t, f.repo, "luis")
	testutil.NewInactiveUser(t, f.repo, "marta")

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"wrong password", `{"username":"luis","password":"nope"}`, http.StatusUnauthorized, "Usuario o contraseña incorrectos."},
		{"unknown user", `{"username":"nadie","password":"nope"}`, http.StatusUnauthorized, "Usuario o contraseña incorrectos."},
		{"not verified", `{"username":"marta","password":"correct-horse-battery"}`, http.StatusForbidden, "Tu cuenta aún no está verificada. Revisa tu correo o solicita un nuevo enlace de verificación."},
		{"missing fields", `{"username":"luis"}`, http.StatusBadRequest, "Revisa los datos del formulario."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.call(t, f.h.Login, tt.body, nil)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.Logout, `{}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Has cerrado sesión correctamente.", decode(t, rec)["message"])

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "_test_session", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	user := testutil.NewTestUser(t, f.repo, "luis")

	rec := f.call(t, f.h.Me, "", user)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "luis", decode(t, rec)["user"].(map[string]any)["username"])

	rec = f.call(t, f.h.Me, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivate(t *testing.T) {
	f := newAuthFixture(t)
	f.call(t, f.h.Register, registerBody, nil)
	uid, tok := f.lastLink(t)

	rec := f.call(t, f.h.Activate, "", nil, uid, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "¡Tu cuenta ha sido verificada! Ya puedes iniciar sesión.", decode(t, rec)["message"])

	rec = f.call(t, f.h.Activate, "", nil, uid, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tu cuenta ya estaba verificada.", decode(t, rec)["message"])

	// verification + one welcome
	assert.Len(t, f.sender.Sent(), 2)

	rec = f.call(t, f.h.Activate, "", nil, uid, "tampered")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "active accounts still need a valid link")
	assert.Equal(t, "Enlace de verificación inválido o expirado.", decode(t, rec)["error"])
	assert.Len(t, f.sender.Sent(), 2)
}

func TestActivate_Invalid(t *testing.T) {
	f := newAuthFixture(t)
	user := testutil.NewInactiveUser(t, f.repo, "marta")

	rec := f.call(t, f.h.Activate, "", nil, token.EncodeUID(user.ID), "tampered")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Enlace de verificación inválido o expirado.", decode(t, rec)["error"])
}

func TestResendVerification_GenericResponse(t *testing.T) {
	f := newAuthFixture(t)
	testutil.NewInactiveUser(t, f.repo, "marta")
	testutil.NewTestUser(t, f.repo, "luis")

	var bodies []string
	for _, addr := range []string{"marta@example.com", "marta@example.com", "luis@example.com", "nadie@example.com"} {
		rec := f.call(t, f.h.ResendVerification, `{"email":"`+addr+`"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}

	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
	assert.Len(t, f.sender.Sent(), 1)
}

func TestResendVerification_InvalidEmail(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.ResendVerification, `{"email":"nope"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordResetRequest_GenericResponse(t *testing.T) {
	f := newAuthFixture(t)
	testutil.NewTestUser(t, f.repo, "luis")

	known := f.call(t, f.h.PasswordResetRequest, `{"email":"luis@example.com"}`, nil)
	unknown := f.call(t, f.h.PasswordResetRequest, `{"email":"nadie@example.com"}`, nil)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Len(t, f.sender.Sent(), 1)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t)
	testutil.NewTestUser(t, f.repo, "luis")

	f.call(t, f.h.PasswordResetRequest, `{"email":"luis@example.com"}`, nil)
	uid, tok := f.lastLink(t)

	rec := f.call(t, f.h.PasswordResetCheck, "", nil, uid, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Enlace válido. Ingresa tu nueva contraseña.", decode(t, rec)["message"])

	rec = f.call(t, f.h.PasswordResetConfirm, `{"password":"123","password_confirm":"123"}`, nil, uid, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(t, f.h.PasswordResetConfirm, `{"password":"`+changedPassword+`","password_confirm":"`+changedPassword+`"}`, nil, uid, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tu contraseña ha sido restablecida. Ya puedes iniciar sesión.", decode(t, rec)["message"])

	rec = f.call(t, f.h.PasswordResetCheck, "", nil, uid, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El enlace de restablecimiento es inválido o ha expirado.", decode(t, rec)["error"])

	rec = f.call(t, f.h.Login, `{"username":"luis","password":"`+changedPassword+`"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordResetConfirm_InvalidLink(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.PasswordResetConfirm, `{"password":"`+changedPassword+`","password_confirm":"`+changedPassword+`"}`, nil, "MQ", "tampered")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	user := testutil.NewTestUser(t, f.repo, "luis")

	rec := f.call(t, f.h.ChangePassword, `{"current_password":"wrong","password":"`+changedPassword+`","password_confirm":"`+changedPassword+`"}`, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "La contraseña actual es incorrecta.", decode(t, rec)["error"])

	rec = f.call(t, f.h.ChangePassword, `{"current_password":"correct-horse-battery","password":"`+changedPassword+`","password_confirm":"`+changedPassword+`"}`, user)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tu contraseña ha sido cambiada exitosamente.", decode(t, rec)["message"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1, "session is renewed")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	data, err := f.sessions.Parse(req)
	require.NoError(t, err)

	updated, err := f.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, data.Valid(updated))
	assert.False(t, (&session.Data{UserID: user.ID, Stamp: session.Stamp(user)}).Valid(updated),
		"sessions from before the change are no longer valid")
}

func TestChangePassword_Unauthenticated(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.call(t, f.h.ChangePassword, `{}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordResetRequest_IgnoresOtherAccounts(t *testing.T) {
	f := newAuthFixture(t)
	luis := testutil.NewTestUser(t, f.repo, "luis")
	testutil.NewTestUser(t, f.repo, "ana")

	f.call(t, f.h.PasswordResetRequest, `{"email":"luis@example.com"}`, nil)
	uid, _ := f.lastLink(t)

	id, err := token.DecodeUID(uid)
	require.NoError(t, err)
	assert.Equal(t, luis.ID, id)

	// Reset tokens are bound to the account they were issued for.
	otherUID, otherTok, err := f.reset.Issue(&models.User{ID: luis.ID + 1, Email: "ana@example.com"})
	require.NoError(t, err)
	rec := f.call(t, f.h.PasswordResetCheck, "", nil, otherUID, otherTok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
