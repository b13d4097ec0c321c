// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session keeps the logged-in user in a signed cookie.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/models"
)

const keyLength = 32

// Data is the session payload stored in the cookie.
type Data struct {
	UserID    int64     `json:"uid"`
	Username  string    `json:"usr"`
	Stamp     string    `json:"stp,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// Manager encodes and decodes session cookies.
type Manager struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewManager creates a session manager. An empty hash key generates a random
// one, which invalidates all sessions on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session hash key: %w", err)
	}
	if hashKey == nil {
		hashKey = make([]byte, keyLength)
		if _, err := rand.Read(hashKey); err != nil {
			return nil, fmt.Errorf("generating session hash key: %w", err)
		}
		slog.Warn("session_key_generated", "hint", "set --session-hash-key to keep sessions across restarts")
	}

	blockKey, err := decodeKey(cfg.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session block key: %w", err)
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Manager{
		codec:  codec,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}, nil
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("must be %d bytes, got %d", keyLength, len(key))
	}
	return key, nil
}

// Create returns a session cookie for the user.
func (m *Manager) Create(userID int64, username string) (*http.Cookie, error) {
	return m.create(Data{UserID: userID, Username: username})
}

// CreateFor returns a session cookie bound to the user's current password.
// Changing the password ends every session created this way.
func (m *Manager) CreateFor(user *models.User) (*http.Cookie, error) {
	return m.create(Data{UserID: user.ID, Username: user.Username, Stamp: Stamp(user)})
}

func (m *Manager) create(data Data) (*http.Cookie, error) {
	data.ExpiresAt = time.Now().Add(time.Duration(m.maxAge) * time.Second)
	value, err := m.codec.Encode(m.name, data)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	c := m.cookie(value, m.maxAge)
	c.Expires = data.ExpiresAt
	return c, nil
}

// Parse returns the session carried by the request, or nil when there is none
// or it is not valid.
func (m *Manager) Parse(r *http.Request) (*Data, error) {
	c, err := r.Cookie(m.name)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data Data
	if err := m.codec.Decode(m.name, c.Value, &data); err != nil {
		return nil, nil //nolint:nilerr // an undecodable cookie is an anonymous request
	}
	if data.UserID == 0 || time.Now().After(data.ExpiresAt) {
		return nil, nil
	}
	return &data, nil
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie("", -1)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Stamp derives the session binding for a user's password hash.
func Stamp(user *models.User) string {
	sum := sha256.Sum256([]byte(user.PasswordHash))
	return hex.EncodeToString(sum[:8])
}

// Valid reports whether the session still belongs to user.
func (d *Data) Valid(user *models.User) bool {
	if user == nil || user.ID != d.UserID || !user.IsActive {
		return false
	}
	return d.Stamp == "" || d.Stamp == Stamp(user)
}
