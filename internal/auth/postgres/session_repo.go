// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := querierFor(ctx, r.db).Exec(ctx, `
		INSERT INTO sessions (id, principal_id, access_token_ref, refresh_token_hash, user_agent, ip_address, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		session.ID.String(),
		session.PrincipalID.String(),
		session.AccessTokenRef,
		session.RefreshTokenHash,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.ExpiresAt,
		session.RevokedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("principal_id", session.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a session by its ID, revoked or not.
func (r *SessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	row := querierFor(ctx, r.db).QueryRow(ctx, `
		SELECT id, principal_id, access_token_ref, refresh_token_hash, user_agent, ip_address, created_at, expires_at, revoked_at
		FROM sessions
		WHERE id = $1
	`, id.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_ID_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// ListActiveByPrincipal retrieves sessions that are neither revoked nor
// expired as of now, most recent first.
func (r *SessionRepository) ListActiveByPrincipal(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	rows, err := querierFor(ctx, r.db).Query(ctx, `
		SELECT id, principal_id, access_token_ref, refresh_token_hash, user_agent, ip_address, created_at, expires_at, revoked_at
		FROM sessions
		WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`, principalID.String(), now)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list active sessions").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}

	return sessions, nil
}

// Revoke sets revoked_at for a session that is not yet revoked. The guard in
// the WHERE clause keeps revoked_at monotonic; re-revoking affects no rows
// and is not an error.
func (r *SessionRepository) Revoke(ctx context.Context, id ulid.ULID, at time.Time) error {
	_, err := querierFor(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id.String(), at)
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAllByPrincipal revokes every unrevoked session for a principal,
// optionally sparing one session.
func (r *SessionRepository) RevokeAllByPrincipal(ctx context.Context, principalID ulid.ULID, except *ulid.ULID, at time.Time) error {
	var exceptStr *string
	if except != nil {
		s := except.String()
		exceptStr = &s
	}

	_, err := querierFor(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE principal_id = $1 AND revoked_at IS NULL AND ($3::text IS NULL OR id <> $3)
	`, principalID.String(), at, exceptStr)
	if err != nil {
		return oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke sessions by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

// UpdateTokens replaces the token material for a session after a refresh
// rotation.
func (r *SessionRepository) UpdateTokens(ctx context.Context, id ulid.ULID, accessTokenRef, refreshTokenHash string, expiresAt time.Time) error {
	result, err := querierFor(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET access_token_ref = $2, refresh_token_hash = $3, expires_at = $4
		WHERE id = $1 AND revoked_at IS NULL
	`, id.String(), accessTokenRef, refreshTokenHash, expiresAt)
	if err != nil {
		return oops.Code("SESSION_UPDATE_TOKENS_FAILED").
			With("operation", "update session tokens").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// PurgeExpired deletes sessions whose expiry is before the cutoff and returns
// the count.
func (r *SessionRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := querierFor(ctx, r.db).Exec(ctx, `
		DELETE FROM sessions WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr            string
		principalIDStr   string
		accessTokenRef   string
		refreshTokenHash string
		userAgent        string
		ipAddress        string
		createdAt        time.Time
		expiresAt        time.Time
		revokedAt        *time.Time
	)

	err := row.Scan(&idStr, &principalIDStr, &accessTokenRef, &refreshTokenHash, &userAgent, &ipAddress, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session").
			Wrap(err)
	}

	return buildSession(idStr, principalIDStr, accessTokenRef, refreshTokenHash, userAgent, ipAddress, createdAt, expiresAt, revokedAt)
}

// scanSessionRow scans a row from a rows iterator into a Session.
func scanSessionRow(rows pgx.Rows) (*auth.Session, error) {
	var (
		idStr            string
		principalIDStr   string
		accessTokenRef   string
		refreshTokenHash string
		userAgent        string
		ipAddress        string
		createdAt        time.Time
		expiresAt        time.Time
		revokedAt        *time.Time
	)

	err := rows.Scan(&idStr, &principalIDStr, &accessTokenRef, &refreshTokenHash, &userAgent, &ipAddress, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session row").
			Wrap(err)
	}

	return buildSession(idStr, principalIDStr, accessTokenRef, refreshTokenHash, userAgent, ipAddress, createdAt, expiresAt, revokedAt)
}

// buildSession constructs a Session from scanned values.
func buildSession(
	idStr, principalIDStr string,
	accessTokenRef, refreshTokenHash, userAgent, ipAddress string,
	createdAt, expiresAt time.Time,
	revokedAt *time.Time,
) (*auth.Session, error) {
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}

	principalID, err := ulid.Parse(principalIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_PRINCIPAL_ID").
			With("operation", "parse principal id").
			With("principal_id", principalIDStr).
			Wrap(err)
	}

	return &auth.Session{
		ID:               id,
		PrincipalID:      principalID,
		AccessTokenRef:   accessTokenRef,
		RefreshTokenHash: refreshTokenHash,
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
		RevokedAt:        revokedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
