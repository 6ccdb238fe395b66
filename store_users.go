package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const userSelect = `SELECT id, email, password, name, role, created_at FROM users`

func scanUser(sc rowScanner) (User, error) {
	var u User
	var role string
	if err := sc.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Role == "" {
		u.Role = RoleReader
	}
	u.Email = normalizeEmail(u.Email)
	u.CreatedAt = s.timestamp()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, password, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("user %q: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// UpsertUser creates the user or updates name, role and password of the
// existing account with the same email.
func (s *Store) UpsertUser(ctx context.Context, u User) (User, error) {
	email := normalizeEmail(u.Email)
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, password, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(email) DO UPDATE SET password = excluded.password, name = excluded.name, role = excluded.role`,
		newID(), email, u.PasswordHash, u.Name, string(u.Role), s.timestamp())
	if err != nil {
		return User{}, err
	}
	return s.GetUserByEmail(ctx, email)
}

// GetUserByEmail returns a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE email = ?`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
