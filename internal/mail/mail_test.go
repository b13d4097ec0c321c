// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mail_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := &mail.LogSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := s.Send(context.Background(), mail.Message{
		From:    "no-reply@gyz.example.com",
		To:      "ana@example.com",
		Subject: "Hola",
		Text:    "Texto",
	})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "email_logged")
	assert.Contains(t, buf.String(), "ana@example.com")
}

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := mail.NewSMTPSender(&config.SMTPConfig{From: "a@example.com"})
	require.Error(t, err)

	_, err = mail.NewSMTPSender(&config.SMTPConfig{Host: "localhost"})
	require.Error(t, err)

	s, err := mail.NewSMTPSender(&config.SMTPConfig{Host: "localhost", From: "a@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	s, err := mail.NewSMTPSender(&config.SMTPConfig{Host: "localhost", Port: 2525, From: "a@example.com"})
	require.NoError(t, err)

	err = s.Send(context.Background(), mail.Message{To: "not an address", Subject: "x", Text: "x"})

	var te *mail.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, mail.CodeInvalidAddress, te.Code)
}

func TestSMTPSender_Unreachable(t *testing.T) {
	s, err := mail.NewSMTPSender(&config.SMTPConfig{
		Host:    "127.0.0.1",
		Port:    1,
		From:    "a@example.com",
		Timeout: time.Second,
	})
	require.NoError(t, err)

	err = s.Send(context.Background(), mail.Message{To: "ana@example.com", Subject: "x", Text: "x"})

	var te *mail.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Temporary)
}
