// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import "errors"

// Error kinds exposed to callers. The HTTP layer maps these to status codes;
// everything not listed here is an internal error and must not leak store
// details.
var (
	// ErrInvalidArgument is returned when input fails validation before any
	// store access, e.g. a malformed email or a policy-violating password.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint is violated,
	// e.g. two principals registering the same email.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized is returned for any credential failure. It is
	// deliberately generic: missing principal, soft-deleted principal,
	// wrong password, and revoked session all look the same.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when a principal attempts to revoke a
	// session it does not own without elevation.
	ErrForbidden = errors.New("forbidden")

	// ErrPasswordReused is returned when a new password matches one of the
	// hashes in the bounded reuse window. It only discloses information
	// about the caller's own account, so it is safe to surface verbatim.
	ErrPasswordReused = errors.New("password recently used")

	// ErrInvalidToken collapses expired, malformed, wrong-type, and
	// badly-signed tokens into one signal.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidOrExpiredToken is the single failure shape for reset-token
	// confirmation. Consumed, expired, and unknown tokens are not
	// distinguished.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
)
