// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	err := i18n.Init()
	require.NoError(t, err)
}

func TestT_Spanish(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.Spanish)

	assert.Equal(t, "Tu cuenta ya estaba verificada.", i18n.T(ctx, "activation_already_active"))
	assert.Equal(t, "es", i18n.GetLocale(ctx))
}

func TestT_English(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "Your account was already verified.", i18n.T(ctx, "activation_already_active"))
	assert.Equal(t, "en", i18n.GetLocale(ctx))
}

func TestT_RegionalTag(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.MustParse("es-AR"))

	assert.Equal(t, "es", i18n.GetLocale(ctx))
	assert.Equal(t, "Tu cuenta ya estaba verificada.", i18n.T(ctx, "activation_already_active"))
}

func TestT_UnknownKey(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	// Should return the key itself for unknown messages
	result := i18n.T(ctx, "unknown_key_that_does_not_exist")
	assert.Equal(t, "unknown_key_that_does_not_exist", result)
}

func TestT_NoLocaleContext(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := context.Background()

	assert.Equal(t, "es", i18n.GetLocale(ctx))
	assert.Equal(t, "Enlace de verificación inválido o expirado.", i18n.T(ctx, "activation_invalid"))
}

func TestTData(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.Spanish)

	subject := i18n.TData(ctx, "email_subject_welcome", map[string]any{"SiteName": "Restaurante GYZ"})
	assert.Equal(t, "Bienvenido a Restaurante GYZ - Registro Exitoso", subject)

	subject = i18n.TData(ctx, "email_subject_password_reset", map[string]any{"SiteName": "Restaurante GYZ"})
	assert.Equal(t, "Recuperación de Contraseña - Restaurante GYZ", subject)
}

func TestTDefault(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := context.Background()

	assert.Equal(t, "fallback", i18n.TDefault(ctx, "missing_key", "fallback", nil))
	assert.Equal(t, "La contraseña debe tener al menos 8 caracteres.",
		i18n.TDefault(ctx, "password_min_length", "x", map[string]any{"MinLength": 8}))
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"en-US,en;q=0.9", "en"},
		{"es-ES,es;q=0.9", "es"},
		{"de-DE", "es"},
		{"", "es"},
		{"fr;q=0.8, en;q=0.5", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			base, _ := i18n.MatchLanguage(tt.header).Base()
			assert.Equal(t, tt.want, base.String())
		})
	}
}
