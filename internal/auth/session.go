// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DeviceMetadata is the per-session client context recorded at issuance.
// Both fields are optional.
type DeviceMetadata struct {
	UserAgent string
	IPAddress string
}

// Session is the server-side record backing one access/refresh token pair.
// Expiry is enforced lazily: reads filter on ExpiresAt, nothing sweeps rows
// on the request path.
type Session struct {
	ID               ulid.ULID
	PrincipalID      ulid.ULID
	AccessTokenRef   string // jti of the current access token, never the raw token
	RefreshTokenHash string // sha256 of the current refresh token
	UserAgent        string
	IPAddress        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time // monotonic: once set, never cleared
}

// NewSession creates a validated Session bound to an issued token pair.
func NewSession(principalID ulid.ULID, accessTokenRef, refreshTokenHash string, meta DeviceMetadata, expiresAt time.Time) (*Session, error) {
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if accessTokenRef == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN_REF").Errorf("access token ref cannot be empty")
	}
	if refreshTokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("refresh token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &Session{
		ID:               ulid.Make(),
		PrincipalID:      principalID,
		AccessTokenRef:   accessTokenRef,
		RefreshTokenHash: refreshTokenHash,
		UserAgent:        meta.UserAgent,
		IPAddress:        meta.IPAddress,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        expiresAt,
	}, nil
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// IsRevoked returns true once the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// HashRefreshToken returns the hex-encoded sha256 of a refresh token.
// Sessions store this hash so that a database leak does not leak live tokens.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenMatches compares a presented refresh token with a stored hash
// in constant time.
func RefreshTokenMatches(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	computed := HashRefreshToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by ID. Returns ErrNotFound (wrapped)
	// when missing.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)

	// ListActiveByPrincipal retrieves sessions that are neither revoked
	// nor expired as of now, most recent first.
	ListActiveByPrincipal(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*Session, error)

	// Revoke sets revoked_at for a session that is not yet revoked.
	// Revoking an already-revoked session is a no-op, keeping revoked_at
	// monotonic.
	Revoke(ctx context.Context, id ulid.ULID, at time.Time) error

	// RevokeAllByPrincipal revokes every unrevoked session for a
	// principal, optionally sparing one session.
	RevokeAllByPrincipal(ctx context.Context, principalID ulid.ULID, except *ulid.ULID, at time.Time) error

	// UpdateTokens replaces the access token ref and refresh token hash
	// after rotation, pushing the expiry forward.
	UpdateTokens(ctx context.Context, id ulid.ULID, accessTokenRef, refreshTokenHash string, expiresAt time.Time) error

	// PurgeExpired deletes sessions whose expiry is before the cutoff and
	// returns the count. Housekeeping only; never called on request paths.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionRegistry tracks issued sessions and enforces ownership on
// revocation. Elevation is resolved by the caller before invocation.
type SessionRegistry struct {
	sessions SessionRepository
}

// NewSessionRegistry creates a SessionRegistry.
func NewSessionRegistry(sessions SessionRepository) (*SessionRegistry, error) {
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	return &SessionRegistry{sessions: sessions}, nil
}

// Create records a session for an issued token pair. The session ID is
// pre-generated by the caller so it can be embedded in token claims signed
// before the row exists.
func (r *SessionRegistry) Create(ctx context.Context, sessionID, principalID ulid.ULID, pair *TokenPair, meta DeviceMetadata) (*Session, error) {
	session, err := NewSession(principalID, pair.AccessID, HashRefreshToken(pair.Refresh), meta, pair.RefreshableUntil)
	if err != nil {
		return nil, err
	}
	session.ID = sessionID
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return session, nil
}

// ListActive returns the live sessions for a principal.
func (r *SessionRegistry) ListActive(ctx context.Context, principalID ulid.ULID) ([]*Session, error) {
	sessions, err := r.sessions.ListActiveByPrincipal(ctx, principalID, time.Now().UTC())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return sessions, nil
}

// Revoke terminates one session. Fails ErrNotFound for an unknown id and
// ErrForbidden when the requester neither owns the session nor is elevated.
// Revoking an already-revoked session succeeds without effect, so callers
// cannot probe for prior revocation.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, requestingPrincipalID ulid.ULID, isElevated bool) error {
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	if session.PrincipalID.Compare(requestingPrincipalID) != 0 && !isElevated {
		return oops.Code("SESSION_NOT_OWNER").
			With("session_id", sessionID.String()).
			Wrap(ErrForbidden)
	}
	if session.IsRevoked() {
		return nil
	}
	if err := r.sessions.Revoke(ctx, sessionID, time.Now().UTC()); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAll terminates every session for a principal, optionally sparing one.
func (r *SessionRegistry) RevokeAll(ctx context.Context, principalID ulid.ULID, except *ulid.ULID) error {
	if err := r.sessions.RevokeAllByPrincipal(ctx, principalID, except, time.Now().UTC()); err != nil {
		return oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

// Get retrieves one session by ID.
func (r *SessionRegistry) Get(ctx context.Context, sessionID ulid.ULID) (*Session, error) {
	return r.sessions.GetByID(ctx, sessionID)
}

// Rotate replaces the token material backing a session after a refresh.
func (r *SessionRegistry) Rotate(ctx context.Context, sessionID ulid.ULID, pair *TokenPair) error {
	if err := r.sessions.UpdateTokens(ctx, sessionID, pair.AccessID, HashRefreshToken(pair.Refresh), pair.RefreshableUntil); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// PurgeExpired removes expired session rows. External housekeeping only.
func (r *SessionRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	return r.sessions.PurgeExpired(ctx, time.Now().UTC())
}
