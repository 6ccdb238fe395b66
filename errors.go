package insights

import "errors"

var (
	// ErrNotFound is returned when no record matches a slug or id.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a unique key.
	ErrConflict = errors.New("already exists")
	// ErrUnauthorized is returned when the caller is not an admin.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Authenticate on a bad email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
