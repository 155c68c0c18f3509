// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// ResetRequestRepository implements auth.ResetRequestRepository using
// PostgreSQL.
type ResetRequestRepository struct {
	db DB
}

// NewResetRequestRepository creates a new ResetRequestRepository.
func NewResetRequestRepository(db DB) *ResetRequestRepository {
	return &ResetRequestRepository{db: db}
}

// Create stores a new reset request.
func (r *ResetRequestRepository) Create(ctx context.Context, request *auth.PasswordResetRequest) error {
	_, err := querierFor(ctx, r.db).Exec(ctx, `
		INSERT INTO password_reset_requests (id, principal_id, token_hash, expires_at, used, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		request.ID.String(),
		request.PrincipalID.String(),
		request.TokenHash,
		request.ExpiresAt,
		request.Used,
		request.UsedAt,
		request.CreatedAt,
	)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert reset request").
			With("principal_id", request.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// ListOpen retrieves unused, non-expired requests as of now, most recent
// first, bounded by limit.
func (r *ResetRequestRepository) ListOpen(ctx context.Context, now time.Time, limit int) ([]*auth.PasswordResetRequest, error) {
	rows, err := querierFor(ctx, r.db).Query(ctx, `
		SELECT id, principal_id, token_hash, expires_at, used, used_at, created_at
		FROM password_reset_requests
		WHERE used = FALSE AND expires_at > $1
		ORDER BY created_at DESC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, oops.Code("RESET_LIST_FAILED").
			With("operation", "list open reset requests").
			Wrap(err)
	}
	defer rows.Close()

	var requests []*auth.PasswordResetRequest
	for rows.Next() {
		var (
			idStr     string
			pidStr    string
			tokenHash string
			expiresAt time.Time
			used      bool
			usedAt    *time.Time
			createdAt time.Time
		)
		if err := rows.Scan(&idStr, &pidStr, &tokenHash, &expiresAt, &used, &usedAt, &createdAt); err != nil {
			return nil, oops.Code("RESET_SCAN_FAILED").
				With("operation", "scan reset request row").
				Wrap(err)
		}

		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("RESET_INVALID_ID").
				With("operation", "parse reset request id").
				With("id", idStr).
				Wrap(err)
		}
		pid, err := ulid.Parse(pidStr)
		if err != nil {
			return nil, oops.Code("RESET_INVALID_PRINCIPAL_ID").
				With("operation", "parse principal id").
				With("principal_id", pidStr).
				Wrap(err)
		}

		requests = append(requests, &auth.PasswordResetRequest{
			ID:          id,
			PrincipalID: pid,
			TokenHash:   tokenHash,
			ExpiresAt:   expiresAt,
			Used:        used,
			UsedAt:      usedAt,
			CreatedAt:   createdAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("RESET_ROWS_ERROR").
			With("operation", "iterate reset request rows").
			Wrap(err)
	}

	return requests, nil
}

// MarkUsed flips a request to used. The used = FALSE guard makes the flip
// atomic: under concurrent confirmation only one caller sees a row affected,
// the rest get ErrNotFound.
func (r *ResetRequestRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := querierFor(ctx, r.db).Exec(ctx, `
		UPDATE password_reset_requests SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
	`, id.String(), at)
	if err != nil {
		return oops.Code("RESET_MARK_USED_FAILED").
			With("operation", "mark reset request used").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// PurgeExpired deletes requests past their expiry and returns the count.
func (r *ResetRequestRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := querierFor(ctx, r.db).Exec(ctx, `
		DELETE FROM password_reset_requests WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").
			With("operation", "delete expired reset requests").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.ResetRequestRepository = (*ResetRequestRepository)(nil)
