// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/gonziita68/restaurante-gyz/internal/models"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, phone, birth_date,
	address, is_active, is_staff, date_joined, last_login, updated_at`

// CreateUser inserts the user and fills in ID and timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := r.now()
	user.DateJoined = now
	user.UpdatedAt = now

	err := r.db.GetContext(ctx, &user.ID, r.q(`
		INSERT INTO users (username, email, password_hash, first_name, last_name, phone,
			birth_date, address, is_active, is_staff, date_joined, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone,
		user.BirthDate, user.Address, user.IsActive, user.IsStaff, user.DateJoined, user.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetUserByID retrieves a user by their ID
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, r.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		r.q(`SELECT `+userColumns+` FROM users WHERE LOWER(email) = ? ORDER BY id LIMIT 1`),
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, r.q(`SELECT `+userColumns+` FROM users WHERE username = ?`), username); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UsernameExists checks if a user with the given username exists.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username)
}

// EmailExists checks if a user with the given email exists, ignoring case.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM users WHERE LOWER(email) = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *Repository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, r.q(query), arg); err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateLastLogin stamps the user's last login time.
func (r *Repository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.updateUser(ctx, `UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, at, r.now(), id)
}

// SetUserActive flips the verification state of a user.
func (r *Repository) SetUserActive(ctx context.Context, id int64, active bool) error {
	return r.updateUser(ctx, `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, r.now(), id)
}

// UpdateUserPassword updates a user's password
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateUser(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, r.now(), id)
}

func (r *Repository) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches the unique-constraint messages of SQLite and PostgreSQL.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
