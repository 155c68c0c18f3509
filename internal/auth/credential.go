// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordHistoryDepth is the size of the reuse-prevention window: the
// current hash plus up to PasswordHistoryDepth-1 prior hashes. The current
// hash is never a member of the history; it is pushed in only when replaced.
const PasswordHistoryDepth = 5

// Credential holds the password material for one principal, one-to-one.
// It is mutated only by password change and reset confirmation.
type Credential struct {
	PrincipalID       ulid.ULID
	PasswordHash      string
	PasswordHistory   []string // prior hashes, most-recent-first, len <= PasswordHistoryDepth
	PasswordChangedAt time.Time
	FailedAttempts    int
	LockedUntil       *time.Time // nil when not locked
}

// NewCredential creates a Credential with the given initial hash.
func NewCredential(principalID ulid.ULID, passwordHash string) (*Credential, error) {
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("CREDENTIAL_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if passwordHash == "" {
		return nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Credential{
		PrincipalID:       principalID,
		PasswordHash:      passwordHash,
		PasswordHistory:   nil,
		PasswordChangedAt: time.Now().UTC(),
	}, nil
}

// rotateHash replaces the current hash, pushing the old one onto the front of
// the history and truncating so that current+history covers exactly the
// PasswordHistoryDepth most recent passwords.
func (c *Credential) rotateHash(newHash string) {
	history := make([]string, 0, len(c.PasswordHistory)+1)
	history = append(history, c.PasswordHash)
	history = append(history, c.PasswordHistory...)
	if len(history) > PasswordHistoryDepth-1 {
		history = history[:PasswordHistoryDepth-1]
	}
	c.PasswordHistory = history
	c.PasswordHash = newHash
	c.PasswordChangedAt = time.Now().UTC()
}

// RecordFailure increments the failure counter and sets lockout when the
// threshold is reached.
func (c *Credential) RecordFailure() {
	c.FailedAttempts++
	c.LockedUntil = ComputeLockoutTime(c.FailedAttempts)
}

// RecordSuccess resets the failure counter and lockout.
func (c *Credential) RecordSuccess() {
	c.FailedAttempts = 0
	c.LockedUntil = nil
}

// IsLocked returns true if the credential is currently locked out.
func (c *Credential) IsLocked() bool {
	return IsLockedOut(c.LockedUntil)
}

// CredentialRepository manages credential persistence.
type CredentialRepository interface {
	// Create stores the credential for a newly joined principal.
	Create(ctx context.Context, credential *Credential) error

	// GetByPrincipal retrieves the credential for a principal.
	// Returns ErrNotFound (wrapped) if none exists.
	GetByPrincipal(ctx context.Context, principalID ulid.ULID) (*Credential, error)

	// Update persists hash, history, changed-at, and lockout counters.
	Update(ctx context.Context, credential *Credential) error
}

// CredentialStore owns password verification and rotation with the bounded
// reuse window.
type CredentialStore struct {
	creds  CredentialRepository
	hasher PasswordHasher
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(creds CredentialRepository, hasher PasswordHasher) (*CredentialStore, error) {
	if creds == nil {
		return nil, oops.Errorf("credential repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &CredentialStore{creds: creds, hasher: hasher}, nil
}

// Hash produces a hash of the plaintext using the store's hasher.
func (s *CredentialStore) Hash(plaintext string) (string, error) {
	return s.hasher.Hash(plaintext)
}

// Create persists a brand-new credential row.
func (s *CredentialStore) Create(ctx context.Context, cred *Credential) error {
	return s.creds.Create(ctx, cred)
}

// Get returns the credential for a principal.
func (s *CredentialStore) Get(ctx context.Context, principalID ulid.ULID) (*Credential, error) {
	return s.creds.GetByPrincipal(ctx, principalID)
}

// Save persists mutations made on an already-loaded credential, such as
// failure-counter updates. Password rotation goes through ChangePassword or
// ReplacePassword, never through here.
func (s *CredentialStore) Save(ctx context.Context, cred *Credential) error {
	return s.creds.Update(ctx, cred)
}

// Verify checks the plaintext against the stored current hash for a principal.
func (s *CredentialStore) Verify(ctx context.Context, principalID ulid.ULID, plaintext string) (bool, error) {
	cred, err := s.creds.GetByPrincipal(ctx, principalID)
	if err != nil {
		return false, err
	}
	return s.hasher.Verify(plaintext, cred.PasswordHash)
}

// ChangePassword verifies the current password, rejects reuse, and rotates
// the hash. The caller owns the session-revocation side effect and must run
// this inside a transaction together with it.
func (s *CredentialStore) ChangePassword(ctx context.Context, principalID ulid.ULID, currentPlaintext, newPlaintext string) error {
	cred, err := s.creds.GetByPrincipal(ctx, principalID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(currentPlaintext, cred.PasswordHash)
	if err != nil {
		return oops.Code("CREDENTIAL_VERIFY_FAILED").Wrap(err)
	}
	if !ok {
		return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthorized)
	}

	return s.rotate(ctx, cred, newPlaintext)
}

// ReplacePassword rotates the hash without checking the current password.
// Used by reset confirmation, where the reset token is the proof of
// authorization. The reuse window still applies.
func (s *CredentialStore) ReplacePassword(ctx context.Context, principalID ulid.ULID, newPlaintext string) error {
	cred, err := s.creds.GetByPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	return s.rotate(ctx, cred, newPlaintext)
}

// rotate rejects reuse against the current hash and every history entry,
// then replaces the hash and persists. The scan is linear because hashes are
// one-way; there is no shortcut.
func (s *CredentialStore) rotate(ctx context.Context, cred *Credential, newPlaintext string) error {
	if err := ValidatePassword(newPlaintext); err != nil {
		return err
	}

	reused, err := s.hasher.Verify(newPlaintext, cred.PasswordHash)
	if err != nil {
		return oops.Code("CREDENTIAL_VERIFY_FAILED").Wrap(err)
	}
	if !reused {
		for _, prior := range cred.PasswordHistory {
			match, err := s.hasher.Verify(newPlaintext, prior)
			if err != nil {
				return oops.Code("CREDENTIAL_VERIFY_FAILED").Wrap(err)
			}
			if match {
				reused = true
				break
			}
		}
	}
	if reused {
		return oops.Code("AUTH_PASSWORD_REUSED").Wrap(ErrPasswordReused)
	}

	newHash, err := s.hasher.Hash(newPlaintext)
	if err != nil {
		return oops.Code("CREDENTIAL_HASH_FAILED").Wrap(err)
	}

	cred.rotateHash(newHash)
	if err := s.creds.Update(ctx, cred); err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("principal_id", cred.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}
