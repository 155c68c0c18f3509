// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Transactor runs a function inside a database transaction. Repositories
// called within fn join the transaction through the context.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuthResult is the outcome of an operation that establishes a session.
type AuthResult struct {
	Principal *Principal
	Session   *Session
	Tokens    *TokenPair
}

// Facade is the single entry point for credential lifecycle and session
// operations. It composes the credential store, session registry, token
// issuer, and reset flow, and emits audit events for every mutation.
type Facade struct {
	principals PrincipalRepository
	creds      *CredentialStore
	sessions   *SessionRegistry
	issuer     *TokenIssuer
	resets     *PasswordResetFlow
	audit      AuditSink
	tx         Transactor
	hasher     PasswordHasher
}

// NewFacade creates a Facade. All collaborators are required.
func NewFacade(
	principals PrincipalRepository,
	creds *CredentialStore,
	sessions *SessionRegistry,
	issuer *TokenIssuer,
	resets *PasswordResetFlow,
	audit AuditSink,
	tx Transactor,
	hasher PasswordHasher,
) (*Facade, error) {
	if principals == nil {
		return nil, oops.Errorf("principal repository is required")
	}
	if creds == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session registry is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset flow is required")
	}
	if audit == nil {
		return nil, oops.Errorf("audit sink is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &Facade{
		principals: principals,
		creds:      creds,
		sessions:   sessions,
		issuer:     issuer,
		resets:     resets,
		audit:      audit,
		tx:         tx,
		hasher:     hasher,
	}, nil
}

// Join registers a new principal and logs them in, returning the principal
// and an initial token pair. A duplicate email fails with ErrConflict; the
// database unique constraint decides the winner under concurrent joins.
func (f *Facade) Join(ctx context.Context, email, displayName, password string, meta DeviceMetadata) (result *AuthResult, err error) {
	start := time.Now()
	defer func() { recordOperation("join", start, err) }()

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	principal, err := NewPrincipal(email, displayName, RoleMember)
	if err != nil {
		return nil, err
	}

	hash, err := f.creds.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_JOIN_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	credential, err := NewCredential(principal.ID, hash)
	if err != nil {
		return nil, err
	}

	txErr := f.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := f.principals.Create(ctx, principal); err != nil {
			if errors.Is(err, ErrConflict) {
				return oops.Code("AUTH_EMAIL_TAKEN").
					With("email", principal.Email).
					Wrap(err)
			}
			return oops.Code("AUTH_JOIN_FAILED").
				With("operation", "create principal").
				Wrap(err)
		}
		if err := f.creds.Create(ctx, credential); err != nil {
			return oops.Code("AUTH_JOIN_FAILED").
				With("operation", "create credential").
				Wrap(err)
		}

		result, err = f.establishSession(ctx, principal, meta)
		if err != nil {
			return err
		}

		return f.audit.Record(ctx, NewAuditEvent(principal.ID, AuditActionJoin, map[string]any{
			"email": principal.Email,
		}))
	})
	if txErr != nil {
		return nil, txErr
	}
	return result, nil
}

// Login authenticates by email and password and establishes a new session.
// Missing principal, soft-deleted principal, and wrong password all surface
// as the same ErrUnauthorized, and the dummy verification keeps the timing of
// the unknown-email path in line with the real one.
func (f *Facade) Login(ctx context.Context, email, password string, meta DeviceMetadata) (result *AuthResult, err error) {
	start := time.Now()
	defer func() { recordOperation("login", start, err) }()

	email, err = NormalizeEmail(email)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthorized)
	}

	principal, lookupErr := f.principals.GetByEmail(ctx, email)

	var credential *Credential
	targetHash := dummyPasswordHash
	exists := false

	switch {
	case lookupErr != nil:
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get principal by email").
				Wrap(lookupErr)
		}
	case principal.IsDeleted():
		// Deleted accounts behave exactly like missing ones.
	default:
		credential, err = f.creds.Get(ctx, principal.ID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, oops.Code("AUTH_LOGIN_FAILED").
					With("operation", "get credential").
					Wrap(err)
			}
		} else {
			targetHash = credential.PasswordHash
			exists = true
		}
	}

	// Always verify, against the dummy hash when nothing matched.
	valid, verifyErr := f.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthorized)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !exists || !valid {
		if exists {
			credential.RecordFailure()
			if credential.IsLocked() {
				activeLockouts.Inc()
			}
			_ = f.creds.Save(ctx, credential) //nolint:errcheck // Best effort
		}
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthorized)
	}

	// Lockout is checked after verification so both outcomes cost the same.
	if credential.IsLocked() {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", credential.LockedUntil).
			Wrap(ErrUnauthorized)
	}

	credential.RecordSuccess()
	_ = f.creds.Save(ctx, credential) //nolint:errcheck // Best effort, login succeeds regardless

	result, err = f.establishSession(ctx, principal, meta)
	if err != nil {
		return nil, err
	}

	_ = f.audit.Record(ctx, NewAuditEvent(principal.ID, AuditActionLogin, map[string]any{ //nolint:errcheck // Best effort
		"session_id": result.Session.ID.String(),
		"ip_address": meta.IPAddress,
	}))

	return result, nil
}

// Refresh exchanges a valid refresh token for a new token pair, rotating the
// refresh token. The presented token must be the latest issued for its
// session; a stale token from before a rotation fails as an invalid token. A
// genuine token whose backing session was revoked or has expired fails as
// unauthorized instead; the token itself was fine, the session is gone.
func (f *Facade) Refresh(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	start := time.Now()
	defer func() { recordOperation("refresh", start, err) }()

	claims, err := f.issuer.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	sessionID, err := ulid.Parse(claims.SessionID)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	session, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get session").
			Wrap(err)
	}

	now := time.Now().UTC()
	if session.IsRevoked() || session.IsExpiredAt(now) {
		return nil, oops.Code("AUTH_SESSION_REVOKED").Wrap(ErrUnauthorized)
	}
	if !RefreshTokenMatches(refreshToken, session.RefreshTokenHash) {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	principalID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	principal, err := f.principals.GetByID(ctx, principalID)
	if err != nil || principal.IsDeleted() {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	pair, err := f.issuer.Issue(principal.ID, session.ID, principal.Role)
	if err != nil {
		return nil, err
	}

	if err := f.sessions.Rotate(ctx, session.ID, pair); err != nil {
		return nil, err
	}
	session.AccessTokenRef = pair.AccessID
	session.RefreshTokenHash = HashRefreshToken(pair.Refresh)
	session.ExpiresAt = pair.RefreshableUntil

	_ = f.audit.Record(ctx, NewAuditEvent(principal.ID, AuditActionRefresh, map[string]any{ //nolint:errcheck // Best effort
		"session_id": session.ID.String(),
	}))

	return &AuthResult{Principal: principal, Session: session, Tokens: pair}, nil
}

// ChangePassword rotates a principal's password after verifying the current
// one, enforcing the reuse window, and revokes every session for the
// principal, the calling one included. The caller must log in again after the
// change. Everything commits or nothing does.
func (f *Facade) ChangePassword(ctx context.Context, principalID ulid.ULID, currentPassword, newPassword string) (err error) {
	start := time.Now()
	defer func() { recordOperation("change_password", start, err) }()

	err = f.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := f.creds.ChangePassword(ctx, principalID, currentPassword, newPassword); err != nil {
			return err
		}
		if err := f.sessions.RevokeAll(ctx, principalID, nil); err != nil {
			return err
		}
		sessionsRevoked.WithLabelValues("password_change").Inc()
		return f.audit.Record(ctx, NewAuditEvent(principalID, AuditActionPasswordChange, nil))
	})
	return err
}

// RequestReset starts the out-of-band recovery flow and returns the plaintext
// reset token for delivery. The empty-token success for unknown emails is
// deliberate; callers must not distinguish the two outcomes to the requester.
func (f *Facade) RequestReset(ctx context.Context, email string) (token string, err error) {
	start := time.Now()
	defer func() { recordOperation("request_reset", start, err) }()

	token, principalID, err := f.resets.Request(ctx, email)
	if err != nil {
		return "", err
	}
	if token != "" {
		_ = f.audit.Record(ctx, NewAuditEvent(principalID, AuditActionResetRequest, nil)) //nolint:errcheck // Best effort
	}
	return token, nil
}

// ConfirmReset redeems a reset token for a new password. The token is
// consumed, the password rotates subject to the reuse window, and every
// session for the principal is revoked, all atomically.
func (f *Facade) ConfirmReset(ctx context.Context, token, newPassword string) (err error) {
	start := time.Now()
	defer func() { recordOperation("confirm_reset", start, err) }()

	err = f.tx.InTransaction(ctx, func(ctx context.Context) error {
		principalID, err := f.resets.Confirm(ctx, token, newPassword)
		if err != nil {
			return err
		}
		sessionsRevoked.WithLabelValues("reset_confirm").Inc()
		return f.audit.Record(ctx, NewAuditEvent(principalID, AuditActionResetConfirm, nil))
	})
	return err
}

// ListSessions returns the caller's active sessions, newest first.
func (f *Facade) ListSessions(ctx context.Context, principalID ulid.ULID) (sessions []*Session, err error) {
	start := time.Now()
	defer func() { recordOperation("list_sessions", start, err) }()
	return f.sessions.ListActive(ctx, principalID)
}

// RevokeSession terminates one session. The caller must own it or be
// elevated. Revoking an already-revoked session succeeds without effect.
func (f *Facade) RevokeSession(ctx context.Context, sessionID, requestingPrincipalID ulid.ULID, isElevated bool) (err error) {
	start := time.Now()
	defer func() { recordOperation("revoke_session", start, err) }()

	if err = f.sessions.Revoke(ctx, sessionID, requestingPrincipalID, isElevated); err != nil {
		return err
	}
	sessionsRevoked.WithLabelValues("explicit").Inc()
	_ = f.audit.Record(ctx, NewAuditEvent(requestingPrincipalID, AuditActionSessionRevoke, map[string]any{ //nolint:errcheck // Best effort
		"session_id": sessionID.String(),
	}))
	return nil
}

// VerifyAccess validates an access token and returns its claims. Used by
// transport middleware to authenticate requests.
func (f *Facade) VerifyAccess(tokenString string) (*Claims, error) {
	return f.issuer.Verify(tokenString, TokenTypeAccess)
}

// PurgeExpired removes expired sessions and reset requests. Housekeeping for
// an external scheduler; nothing on the request path depends on it.
func (f *Facade) PurgeExpired(ctx context.Context) (sessions, resets int64, err error) {
	sessions, err = f.sessions.PurgeExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	resets, err = f.resets.PurgeExpired(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, resets, nil
}

// establishSession issues a token pair and records the backing session. The
// session ID is generated first so it can ride inside the signed claims.
func (f *Facade) establishSession(ctx context.Context, principal *Principal, meta DeviceMetadata) (*AuthResult, error) {
	sessionID := ulid.Make()

	pair, err := f.issuer.Issue(principal.ID, sessionID, principal.Role)
	if err != nil {
		return nil, err
	}

	session, err := f.sessions.Create(ctx, sessionID, principal.ID, pair, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Principal: principal, Session: session, Tokens: pair}, nil
}
