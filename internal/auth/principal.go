// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is a thin tag carried in tokens. Policy evaluation happens outside the
// core; callers resolve elevation before invoking operations that need it.
type Role string

// Known roles.
const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// emailRegex is a deliberately simple shape check. Deliverability is the
// email transport's problem, not ours.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Principal is an authenticated identity. The row is owned by the external
// principal store; the core reads it and updates auth-relevant fields only.
type Principal struct {
	ID          ulid.ULID
	Email       string
	DisplayName string
	Role        Role
	DeletedAt   *time.Time // nil unless soft-deleted
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPrincipal creates a validated Principal with a normalized email.
func NewPrincipal(email, displayName string, role Role) (*Principal, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleMember
	}
	now := time.Now().UTC()
	return &Principal{
		ID:          ulid.Make(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsDeleted returns true if the principal has been soft-deleted.
func (p *Principal) IsDeleted() bool {
	return p.DeletedAt != nil
}

// NormalizeEmail lowercases, trims, and shape-checks an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidArgument, "email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return "", oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidArgument, "invalid email format")
	}
	return email, nil
}

// Password policy constraints.
const MinPasswordLength = 8

// ValidatePassword enforces the password policy for new passwords:
// at least MinPasswordLength characters with one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Wrapf(ErrInvalidArgument, "password must be at least %d characters", MinPasswordLength)
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return oops.Code("AUTH_WEAK_PASSWORD").
			Wrapf(ErrInvalidArgument, "password must contain at least one letter and one digit")
	}
	return nil
}

// PrincipalRepository is the external principal store contract. All reads are
// soft-delete-aware: lookups never return deleted rows.
type PrincipalRepository interface {
	// Create stores a new principal. Returns ErrConflict (wrapped) when the
	// email is already taken; the database unique constraint resolves
	// concurrent registration races.
	Create(ctx context.Context, principal *Principal) error

	// GetByID retrieves a principal by ID. Returns ErrNotFound (wrapped)
	// when missing or soft-deleted.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByEmail retrieves a principal by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// Update updates auth-relevant fields on an existing principal.
	Update(ctx context.Context, principal *Principal) error
}
