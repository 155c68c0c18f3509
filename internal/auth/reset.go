// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	// ResetTokenBytes is the entropy of a reset token (hex-encoded on the wire).
	ResetTokenBytes = 32

	// ResetTokenTTL is how long a reset token stays redeemable.
	ResetTokenTTL = 30 * time.Minute

	// ResetCandidateWindow bounds how many open reset requests are scanned
	// during confirmation. Tokens are stored as salted hashes, so a
	// presented token cannot be looked up by equality; confirmation
	// verifies it against each candidate.
	ResetCandidateWindow = 64
)

// PasswordResetRequest is a single-use reset grant. used=true is terminal: a
// consumed or expired request is never reactivated.
type PasswordResetRequest struct {
	ID          ulid.ULID
	PrincipalID ulid.ULID
	TokenHash   string // salted hash of the token, never the token itself
	ExpiresAt   time.Time
	Used        bool
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// NewPasswordResetRequest creates a validated reset request.
func NewPasswordResetRequest(principalID ulid.ULID, tokenHash string, expiresAt time.Time) (*PasswordResetRequest, error) {
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &PasswordResetRequest{
		ID:          ulid.Make(),
		PrincipalID: principalID,
		TokenHash:   tokenHash,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IsExpiredAt returns true if the request would be expired at the given time.
func (r *PasswordResetRequest) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// GenerateResetToken creates a high-entropy plaintext reset token. The caller
// hashes it before storage; only the plaintext travels to the user.
func GenerateResetToken() (string, error) {
	b := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// ResetRequestRepository manages reset request persistence.
type ResetRequestRepository interface {
	// Create stores a new reset request.
	Create(ctx context.Context, request *PasswordResetRequest) error

	// ListOpen retrieves unused, non-expired requests as of now, most
	// recent first, bounded by limit.
	ListOpen(ctx context.Context, now time.Time, limit int) ([]*PasswordResetRequest, error)

	// MarkUsed flips a request to its terminal used state. Returns
	// ErrNotFound (wrapped) when the request is missing or already used.
	MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) error

	// PurgeExpired deletes requests past their expiry and returns the
	// count. Housekeeping only.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
