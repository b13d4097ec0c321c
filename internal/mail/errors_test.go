// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mail_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gonziita68/restaurante-gyz/internal/mail"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read: deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDiagnose(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		temporary bool
	}{
		{nil, mail.CodeUnknown, false},
		{timeoutErr{}, mail.CodeTimeout, true},
		{fmt.Errorf("wrapped: %w", timeoutErr{}), mail.CodeTimeout, true},
		{errors.New("dial tcp 127.0.0.1:25: connect: connection refused"), mail.CodeDial, true},
		{errors.New("tls: handshake failure"), mail.CodeTLS, false},
		{errors.New("535 5.7.8 Username and Password not accepted"), mail.CodeAuth, false},
		{errors.New("421 4.7.0 Try again later"), mail.CodeRateLimited, true},
		{errors.New("550 5.1.1 user unknown"), mail.CodeInvalidRecipient, false},
		{errors.New("550 5.7.1 message rejected by DMARC policy"), mail.CodeRejected, false},
		{errors.New("something odd"), mail.CodeUnknown, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			d := mail.Diagnose(tt.err)
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, tt.temporary, d.Temporary)
		})
	}
}

func TestTransportError(t *testing.T) {
	inner := errors.New("connection refused")
	err := fmt.Errorf("dispatch: %w", &mail.TransportError{Code: mail.CodeDial, Temporary: true, Err: inner})

	var te *mail.TransportError
	assert.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "smtp dial: connection refused", te.Error())
}

func TestRenderError(t *testing.T) {
	inner := errors.New("boom")
	err := &mail.RenderError{Template: "welcome.html", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "render welcome.html: boom", err.Error())
}
