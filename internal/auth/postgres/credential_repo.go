// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// CredentialRepository implements auth.CredentialRepository using PostgreSQL.
// The password history rides in a jsonb column; the window is small and always
// read and written whole, so separate rows would buy nothing.
type CredentialRepository struct {
	db DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create stores the credential for a newly joined principal.
func (r *CredentialRepository) Create(ctx context.Context, credential *auth.Credential) error {
	historyJSON, err := marshalHistory(credential.PasswordHistory)
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("principal_id", credential.PrincipalID.String()).
			Wrap(err)
	}

	_, err = querierFor(ctx, r.db).Exec(ctx, `
		INSERT INTO credentials (principal_id, password_hash, password_history, password_changed_at, failed_attempts, locked_until)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		credential.PrincipalID.String(),
		credential.PasswordHash,
		historyJSON,
		credential.PasswordChangedAt,
		credential.FailedAttempts,
		credential.LockedUntil,
	)
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("operation", "insert credential").
			With("principal_id", credential.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByPrincipal retrieves the credential for a principal.
func (r *CredentialRepository) GetByPrincipal(ctx context.Context, principalID ulid.ULID) (*auth.Credential, error) {
	row := querierFor(ctx, r.db).QueryRow(ctx, `
		SELECT principal_id, password_hash, password_history, password_changed_at, failed_attempts, locked_until
		FROM credentials
		WHERE principal_id = $1
	`, principalID.String())

	var (
		pidStr         string
		passwordHash   string
		historyJSON    []byte
		changedAt      time.Time
		failedAttempts int
		lockedUntil    *time.Time
	)

	err := row.Scan(&pidStr, &passwordHash, &historyJSON, &changedAt, &failedAttempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("principal_id", principalID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}

	pid, err := ulid.Parse(pidStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").
			With("operation", "parse principal id").
			With("principal_id", pidStr).
			Wrap(err)
	}

	var history []string
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &history); err != nil {
			return nil, oops.Code("CREDENTIAL_INVALID_HISTORY").
				With("operation", "unmarshal password history").
				With("principal_id", pidStr).
				Wrap(err)
		}
	}

	return &auth.Credential{
		PrincipalID:       pid,
		PasswordHash:      passwordHash,
		PasswordHistory:   history,
		PasswordChangedAt: changedAt,
		FailedAttempts:    failedAttempts,
		LockedUntil:       lockedUntil,
	}, nil
}

// Update persists hash, history, changed-at, and lockout counters.
func (r *CredentialRepository) Update(ctx context.Context, credential *auth.Credential) error {
	historyJSON, err := marshalHistory(credential.PasswordHistory)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("principal_id", credential.PrincipalID.String()).
			Wrap(err)
	}

	result, err := querierFor(ctx, r.db).Exec(ctx, `
		UPDATE credentials
		SET password_hash = $2, password_history = $3, password_changed_at = $4, failed_attempts = $5, locked_until = $6
		WHERE principal_id = $1
	`,
		credential.PrincipalID.String(),
		credential.PasswordHash,
		historyJSON,
		credential.PasswordChangedAt,
		credential.FailedAttempts,
		credential.LockedUntil,
	)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "update credential").
			With("principal_id", credential.PrincipalID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CREDENTIAL_NOT_FOUND").
			With("principal_id", credential.PrincipalID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// marshalHistory encodes the history slice as jsonb, normalizing nil to an
// empty array so the column never stores SQL NULL.
func marshalHistory(history []string) ([]byte, error) {
	if history == nil {
		history = []string{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, oops.With("operation", "marshal password history").Wrap(err)
	}
	return data, nil
}

// Compile-time interface check.
var _ auth.CredentialRepository = (*CredentialRepository)(nil)
