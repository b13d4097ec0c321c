// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gonziita68/restaurante-gyz/internal/models"
)

// DefaultTTL matches the three-day validity of reset and activation links.
const DefaultTTL = 72 * time.Hour

type claims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// JWTGenerator signs HS256 tokens carrying a fingerprint of the user's state.
type JWTGenerator struct {
	secret   []byte
	ttl      time.Duration
	audience string
	now      func() time.Time
}

// Option configures a JWTGenerator.
type Option func(*JWTGenerator)

// WithAudience scopes tokens so one kind of link cannot be used as another.
func WithAudience(aud string) Option {
	return func(g *JWTGenerator) { g.audience = aud }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *JWTGenerator) { g.now = now }
}

// NewJWTGenerator creates a generator. A zero ttl uses DefaultTTL.
func NewJWTGenerator(secret string, ttl time.Duration, opts ...Option) (*JWTGenerator, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &JWTGenerator{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Make implements Generator.
func (g *JWTGenerator) Make(user *models.User) (string, error) {
	now := g.now()
	c := claims{
		Fingerprint: fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	if g.audience != "" {
		c.Audience = jwt.ClaimStrings{g.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
}

// Check implements Generator.
func (g *JWTGenerator) Check(user *models.User, tok string) bool {
	if user == nil || tok == "" {
		return false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithSubject(strconv.FormatInt(user.ID, 10)),
		jwt.WithExpirationRequired(),
	}
	if g.audience != "" {
		opts = append(opts, jwt.WithAudience(g.audience))
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(tok, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return false
	}

	return hmac.Equal([]byte(c.Fingerprint), []byte(fingerprint(user)))
}

// fingerprint hashes the user fields whose change must invalidate a token.
// Last login is truncated to seconds so values survive a database round trip.
func fingerprint(user *models.User) string {
	var lastLogin string
	if user.LastLogin != nil {
		lastLogin = strconv.FormatInt(user.LastLogin.Unix(), 10)
	}
	state := strings.Join([]string{
		strconv.FormatInt(user.ID, 10),
		strconv.FormatBool(user.IsActive),
		user.PasswordHash,
		lastLogin,
		strings.ToLower(user.Email),
	}, "\x00")
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:])
}
