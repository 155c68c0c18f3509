// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenType separates the two token classes. A refresh token presented where
// an access token is expected fails verification, and vice versa.
type TokenType string

// Token classes.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// Claims carries the signed token payload for both token classes.
type Claims struct {
	jwt.RegisteredClaims
	Role      Role      `json:"role"`
	TokenType TokenType `json:"token_type"`
	SessionID string    `json:"session_id"`
}

// TokenPair is the result of issuing both token classes for one session.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessID         string // jti of the access token; stored on the session as an opaque ref
	RefreshID        string
	ExpiredAt        time.Time // access token expiry
	RefreshableUntil time.Time // refresh token expiry
}

// TokenIssuer mints and verifies HS256 JWTs from one signing secret. Issuing
// and verification are pure functions of secret, claims, and clock; the
// issuer never touches the store.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates a TokenIssuer. The secret must be at least 32 bytes
// for HS256. The issuer claim is fixed and strictly verified.
func NewTokenIssuer(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, oops.Code("TOKEN_WEAK_SECRET").Errorf("signing secret must be at least 32 bytes")
	}
	if issuer == "" {
		return nil, oops.Code("TOKEN_NO_ISSUER").Errorf("issuer claim is required")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenIssuer{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// Issue mints an access/refresh pair for the given principal and session.
func (i *TokenIssuer) Issue(principalID, sessionID ulid.ULID, role Role) (*TokenPair, error) {
	now := time.Now().UTC()

	accessID, err := newTokenID()
	if err != nil {
		return nil, err
	}
	refreshID, err := newTokenID()
	if err != nil {
		return nil, err
	}

	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	access, err := i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        accessID,
			Subject:   principalID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
		Role:      role,
		TokenType: TokenTypeAccess,
		SessionID: sessionID.String(),
	})
	if err != nil {
		return nil, err
	}

	refresh, err := i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshID,
			Subject:   principalID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
		Role:      role,
		TokenType: TokenTypeRefresh,
		SessionID: sessionID.String(),
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessID:         accessID,
		RefreshID:        refreshID,
		ExpiredAt:        accessExp,
		RefreshableUntil: refreshExp,
	}, nil
}

func (i *TokenIssuer) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a token (signature, issuer, expiry) and checks
// the token class. Every failure mode surfaces as ErrInvalidToken so callers
// cannot learn why verification failed.
func (i *TokenIssuer) Verify(tokenString string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if claims.TokenType != want {
		return nil, oops.Code("TOKEN_WRONG_TYPE").Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// newTokenID generates a random jti.
func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_ID_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
