// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mail

import (
	"errors"
	"fmt"
	"net"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// Transport failure codes reported by Diagnose.
const (
	CodeTimeout          = "timeout"
	CodeDial             = "dial"
	CodeTLS              = "tls"
	CodeAuth             = "auth"
	CodeRateLimited      = "rate_limited"
	CodeInvalidRecipient = "invalid_recipient"
	CodeInvalidAddress   = "invalid_address"
	CodeRejected         = "rejected"
	CodeNetwork          = "network"
	CodeUnknown          = "unknown"
)

// RenderError reports a template that could not be rendered.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// TransportError reports a message the transport did not accept.
type TransportError struct {
	Code      string
	Temporary bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(err error) *TransportError {
	d := Diagnose(err)
	return &TransportError{Code: d.Code, Temporary: d.Temporary, Err: err}
}

// Diagnosis classifies a transport failure.
type Diagnosis struct {
	Code      string
	Temporary bool
}

// Diagnose inspects an SMTP error and reports what kind of failure it is.
func Diagnose(err error) Diagnosis {
	if err == nil {
		return Diagnosis{Code: CodeUnknown}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Diagnosis{Code: CodeTimeout, Temporary: true}
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"):
		return Diagnosis{Code: CodeTimeout, Temporary: true}
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "dial tcp"):
		return Diagnosis{Code: CodeDial, Temporary: true}
	case strings.Contains(s, "x509:"),
		strings.Contains(s, "tls") && (strings.Contains(s, "handshake") || strings.Contains(s, "certificate")):
		return Diagnosis{Code: CodeTLS}
	case strings.Contains(s, "5.7.8"),
		strings.Contains(s, "535"),
		strings.Contains(s, "authentication failed"),
		strings.Contains(s, "username and password not accepted"):
		return Diagnosis{Code: CodeAuth}
	case strings.Contains(s, "4.7.0"),
		strings.Contains(s, "rate limit"),
		strings.Contains(s, "try again later"),
		strings.Contains(s, "421"),
		strings.Contains(s, "451"):
		return Diagnosis{Code: CodeRateLimited, Temporary: true}
	case strings.Contains(s, "5.1.1"),
		strings.Contains(s, "user unknown"),
		strings.Contains(s, "mailbox not found"):
		return Diagnosis{Code: CodeInvalidRecipient}
	case strings.Contains(s, "5.7.1"),
		strings.Contains(s, "message rejected"),
		strings.Contains(s, "dmarc"),
		strings.Contains(s, "spf"):
		return Diagnosis{Code: CodeRejected}
	}

	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		return Diagnosis{Code: CodeUnknown, Temporary: sendErr.IsTemp()}
	}
	if ne != nil {
		return Diagnosis{Code: CodeNetwork, Temporary: true}
	}
	return Diagnosis{Code: CodeUnknown}
}
