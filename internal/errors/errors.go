// Package errors defines application-level sentinel errors so callers can
// branch on error kinds without depending on driver-specific types.
package errors

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a uniqueness constraint violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAmbiguousUsername indicates multiple accounts match a
	// case-insensitive username lookup.
	ErrAmbiguousUsername = errors.New("ambiguous username")

	// ErrNotVerified indicates the account exists but has not completed
	// email verification.
	ErrNotVerified = errors.New("account not verified")

	// ErrBanned indicates the account is banned. Callers should consult the
	// user row for the ban date and reason.
	ErrBanned = errors.New("account banned")
)
