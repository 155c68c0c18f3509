// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordResetFlow owns the out-of-band recovery path: issuing single-use
// reset tokens and redeeming them for a new password.
type PasswordResetFlow struct {
	principals PrincipalRepository
	resets     ResetRequestRepository
	creds      *CredentialStore
	sessions   *SessionRegistry
	hasher     PasswordHasher
	tokenTTL   time.Duration
}

// NewPasswordResetFlow creates a PasswordResetFlow.
func NewPasswordResetFlow(
	principals PrincipalRepository,
	resets ResetRequestRepository,
	creds *CredentialStore,
	sessions *SessionRegistry,
	hasher PasswordHasher,
) (*PasswordResetFlow, error) {
	if principals == nil {
		return nil, oops.Errorf("principal repository is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset request repository is required")
	}
	if creds == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session registry is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &PasswordResetFlow{
		principals: principals,
		resets:     resets,
		creds:      creds,
		sessions:   sessions,
		hasher:     hasher,
		tokenTTL:   ResetTokenTTL,
	}, nil
}

// Request creates a reset request for the given email and returns the
// plaintext token for out-of-band delivery plus the principal it belongs to.
// When the email is unknown or the principal is deleted it returns an empty
// token, a zero principal id, and no error: the caller observes the same
// success shape either way, and the dummy hash keeps the timing flat too.
func (f *PasswordResetFlow) Request(ctx context.Context, email string) (string, ulid.ULID, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", ulid.ULID{}, err
	}

	principal, err := f.principals.GetByEmail(ctx, email)
	if err != nil {
		// Burn equivalent hashing cost so unknown emails are not faster.
		_, _ = f.hasher.Hash(email)
		return "", ulid.ULID{}, nil
	}
	if principal.IsDeleted() {
		_, _ = f.hasher.Hash(email)
		return "", ulid.ULID{}, nil
	}

	token, err := GenerateResetToken()
	if err != nil {
		return "", ulid.ULID{}, err
	}

	tokenHash, err := f.hasher.Hash(token)
	if err != nil {
		return "", ulid.ULID{}, oops.Code("RESET_HASH_FAILED").Wrap(err)
	}

	request, err := NewPasswordResetRequest(principal.ID, tokenHash, time.Now().UTC().Add(f.tokenTTL))
	if err != nil {
		return "", ulid.ULID{}, err
	}

	if err := f.resets.Create(ctx, request); err != nil {
		return "", ulid.ULID{}, oops.Code("RESET_CREATE_FAILED").
			With("principal_id", principal.ID.String()).
			Wrap(err)
	}

	return token, principal.ID, nil
}

// Confirm redeems a reset token: it finds the matching open request, marks it
// used, replaces the password subject to the reuse window, and revokes every
// session for the principal. The caller must run Confirm inside a transaction
// so a rejected password leaves the token unconsumed.
//
// Candidates are filtered on expiry before any hash verification, so an
// expired token fails without spending hashing work, and a token can never
// redeem a request past its expiry regardless of hash match. All failure
// modes collapse to ErrInvalidOrExpiredToken.
func (f *PasswordResetFlow) Confirm(ctx context.Context, token, newPassword string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	now := time.Now().UTC()
	candidates, err := f.resets.ListOpen(ctx, now, ResetCandidateWindow)
	if err != nil {
		return ulid.ULID{}, oops.Code("RESET_LIST_FAILED").Wrap(err)
	}

	var matched *PasswordResetRequest
	for _, candidate := range candidates {
		if candidate.IsExpiredAt(now) {
			continue
		}
		ok, err := f.hasher.Verify(token, candidate.TokenHash)
		if err != nil {
			continue // a corrupt row must not block other candidates
		}
		if ok {
			matched = candidate
			break
		}
	}
	if matched == nil {
		return ulid.ULID{}, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	// MarkUsed is the single-use gate. Under concurrent confirmation the
	// row update serializes on the database and the loser sees not-found.
	if err := f.resets.MarkUsed(ctx, matched.ID, now); err != nil {
		return ulid.ULID{}, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	if err := f.creds.ReplacePassword(ctx, matched.PrincipalID, newPassword); err != nil {
		// Policy and reuse failures surface as-is; the transaction rollback
		// restores the token to unused.
		return ulid.ULID{}, err
	}

	if err := f.sessions.RevokeAll(ctx, matched.PrincipalID, nil); err != nil {
		return ulid.ULID{}, err
	}

	return matched.PrincipalID, nil
}

// PurgeExpired removes expired reset requests. External housekeeping only.
func (f *PasswordResetFlow) PurgeExpired(ctx context.Context) (int64, error) {
	return f.resets.PurgeExpired(ctx, time.Now().UTC())
}
