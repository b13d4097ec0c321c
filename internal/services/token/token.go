// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and checks the one-time links sent by email.
//
// A link carries the base64url-encoded user id and a token bound to the
// user's mutable state. Activating the account, changing the password,
// logging in or changing the email address invalidates every outstanding
// token for that user.
package token

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/gonziita68/restaurante-gyz/internal/models"
)

// ErrInvalid is returned for any link that does not resolve to a user.
var ErrInvalid = errors.New("invalid or expired link")

// Generator makes and checks state-bound tokens.
type Generator interface {
	Make(user *models.User) (string, error)
	Check(user *models.User, token string) bool
}

// UserLookup finds the user a link points at.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Issuer pairs a Generator with the URL-safe user id encoding.
type Issuer struct {
	gen   Generator
	users UserLookup
}

// NewIssuer creates an issuer.
func NewIssuer(gen Generator, users UserLookup) *Issuer {
	return &Issuer{gen: gen, users: users}
}

// Issue returns the encoded user id and a fresh token.
func (i *Issuer) Issue(user *models.User) (string, string, error) {
	tok, err := i.gen.Make(user)
	if err != nil {
		return "", "", err
	}
	return EncodeUID(user.ID), tok, nil
}

// Lookup decodes uid and loads the user without checking any token.
func (i *Issuer) Lookup(ctx context.Context, uid string) (*models.User, error) {
	id, err := DecodeUID(uid)
	if err != nil {
		return nil, ErrInvalid
	}
	user, err := i.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, ErrInvalid
	}
	return user, nil
}

// Resolve returns the user addressed by uid when token is valid for them.
// Every failure is reported as ErrInvalid.
func (i *Issuer) Resolve(ctx context.Context, uid, tok string) (*models.User, error) {
	user, err := i.Lookup(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !i.gen.Check(user, tok) {
		return nil, ErrInvalid
	}
	return user, nil
}

// Check reports whether tok was issued for user in its current state.
func (i *Issuer) Check(user *models.User, tok string) bool {
	return user != nil && i.gen.Check(user, tok)
}

// Link builds <baseURL>/<path>/<uid>/<token>.
func Link(baseURL, path, uid, tok string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.Trim(path, "/") + "/" + uid + "/" + tok
}

// EncodeUID encodes a user id for use in a URL path segment.
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(uid string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uid, "="))
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("non-positive user id")
	}
	return id, nil
}
