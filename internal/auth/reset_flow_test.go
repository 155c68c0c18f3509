// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/mocks"
)

type resetFlowFixture struct {
	flow       *auth.PasswordResetFlow
	principals *mocks.MockPrincipalRepository
	resets     *mocks.MockResetRequestRepository
	credRepo   *mocks.MockCredentialRepository
	sessRepo   *mocks.MockSessionRepository
	hasher     *mocks.MockPasswordHasher
}

func newResetFlowFixture(t *testing.T) *resetFlowFixture {
	t.Helper()

	f := &resetFlowFixture{
		principals: mocks.NewMockPrincipalRepository(t),
		resets:     mocks.NewMockResetRequestRepository(t),
		credRepo:   mocks.NewMockCredentialRepository(t),
		sessRepo:   mocks.NewMockSessionRepository(t),
		hasher:     mocks.NewMockPasswordHasher(t),
	}

	creds, err := auth.NewCredentialStore(f.credRepo, f.hasher)
	require.NoError(t, err)
	sessions, err := auth.NewSessionRegistry(f.sessRepo)
	require.NoError(t, err)

	f.flow, err = auth.NewPasswordResetFlow(f.principals, f.resets, creds, sessions, f.hasher)
	require.NoError(t, err)
	return f
}

func TestPasswordResetFlow_Request(t *testing.T) {
	ctx := context.Background()

	t.Run("known principal gets a token", func(t *testing.T) {
		f := newResetFlowFixture(t)

		principal, err := auth.NewPrincipal("dana@example.com", "Dana", auth.RoleMember)
		require.NoError(t, err)

		f.principals.On("GetByEmail", ctx, "dana@example.com").Return(principal, nil)
		f.hasher.On("Hash", mock.AnythingOfType("string")).Return("token-hash", nil)
		f.resets.On("Create", ctx, mock.MatchedBy(func(r *auth.PasswordResetRequest) bool {
			return r.PrincipalID == principal.ID && r.TokenHash == "token-hash" && !r.Used
		})).Return(nil)

		token, principalID, err := f.flow.Request(ctx, "Dana@Example.com")
		require.NoError(t, err)
		assert.Len(t, token, auth.ResetTokenBytes*2)
		assert.Equal(t, principal.ID, principalID)
	})

	t.Run("unknown email returns empty token without error", func(t *testing.T) {
		f := newResetFlowFixture(t)

		f.principals.On("GetByEmail", ctx, "nobody@example.com").Return(nil, auth.ErrNotFound)
		f.hasher.On("Hash", "nobody@example.com").Return("burned", nil)

		token, principalID, err := f.flow.Request(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Empty(t, token)
		assert.Equal(t, ulid.ULID{}, principalID)
		f.resets.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("deleted principal treated as unknown", func(t *testing.T) {
		f := newResetFlowFixture(t)

		principal, err := auth.NewPrincipal("gone@example.com", "Gone", auth.RoleMember)
		require.NoError(t, err)
		deletedAt := time.Now().Add(-time.Hour)
		principal.DeletedAt = &deletedAt

		f.principals.On("GetByEmail", ctx, "gone@example.com").Return(principal, nil)
		f.hasher.On("Hash", "gone@example.com").Return("burned", nil)

		token, _, err := f.flow.Request(ctx, "gone@example.com")
		require.NoError(t, err)
		assert.Empty(t, token)
		f.resets.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("malformed email rejected", func(t *testing.T) {
		f := newResetFlowFixture(t)

		_, _, err := f.flow.Request(ctx, "not-an-email")
		require.ErrorIs(t, err, auth.ErrInvalidArgument)
	})
}

func TestPasswordResetFlow_Confirm(t *testing.T) {
	ctx := context.Background()
	principalID := ulid.Make()

	openRequest := func(t *testing.T, hash string, expiresAt time.Time) *auth.PasswordResetRequest {
		t.Helper()
		r, err := auth.NewPasswordResetRequest(principalID, hash, expiresAt)
		require.NoError(t, err)
		return r
	}

	t.Run("redeems token and revokes all sessions", func(t *testing.T) {
		f := newResetFlowFixture(t)

		request := openRequest(t, "stored-token-hash", time.Now().Add(10*time.Minute))
		cred, err := auth.NewCredential(principalID, "old-password-hash")
		require.NoError(t, err)

		f.resets.On("ListOpen", ctx, mock.AnythingOfType("time.Time"), auth.ResetCandidateWindow).
			Return([]*auth.PasswordResetRequest{request}, nil)
		f.hasher.On("Verify", "the-token", "stored-token-hash").Return(true, nil)
		f.resets.On("MarkUsed", ctx, request.ID, mock.AnythingOfType("time.Time")).Return(nil)

		f.credRepo.On("GetByPrincipal", ctx, principalID).Return(cred, nil)
		f.hasher.On("Verify", "new-password1", "old-password-hash").Return(false, nil)
		f.hasher.On("Hash", "new-password1").Return("new-password-hash", nil)
		f.credRepo.On("Update", ctx, cred).Return(nil)

		f.sessRepo.On("RevokeAllByPrincipal", ctx, principalID, (*ulid.ULID)(nil), mock.AnythingOfType("time.Time")).
			Return(nil)

		got, err := f.flow.Confirm(ctx, "the-token", "new-password1")
		require.NoError(t, err)
		assert.Equal(t, principalID, got)
		assert.Equal(t, "new-password-hash", cred.PasswordHash)
	})

	t.Run("empty token rejected", func(t *testing.T) {
		f := newResetFlowFixture(t)

		_, err := f.flow.Confirm(ctx, "", "new-password1")
		require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("no matching candidate", func(t *testing.T) {
		f := newResetFlowFixture(t)

		request := openRequest(t, "stored-token-hash", time.Now().Add(10*time.Minute))
		f.resets.On("ListOpen", ctx, mock.AnythingOfType("time.Time"), auth.ResetCandidateWindow).
			Return([]*auth.PasswordResetRequest{request}, nil)
		f.hasher.On("Verify", "wrong-token", "stored-token-hash").Return(false, nil)

		_, err := f.flow.Confirm(ctx, "wrong-token", "new-password1")
		require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("expired candidate skipped before verification", func(t *testing.T) {
		f := newResetFlowFixture(t)

		request := openRequest(t, "stored-token-hash", time.Now().Add(-time.Minute))
		f.resets.On("ListOpen", ctx, mock.AnythingOfType("time.Time"), auth.ResetCandidateWindow).
			Return([]*auth.PasswordResetRequest{request}, nil)

		_, err := f.flow.Confirm(ctx, "the-token", "new-password1")
		require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
		f.hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("losing a concurrent redemption reads as invalid token", func(t *testing.T) {
		f := newResetFlowFixture(t)

		request := openRequest(t, "stored-token-hash", time.Now().Add(10*time.Minute))
		f.resets.On("ListOpen", ctx, mock.AnythingOfType("time.Time"), auth.ResetCandidateWindow).
			Return([]*auth.PasswordResetRequest{request}, nil)
		f.hasher.On("Verify", "the-token", "stored-token-hash").Return(true, nil)
		f.resets.On("MarkUsed", ctx, request.ID, mock.AnythingOfType("time.Time")).Return(auth.ErrNotFound)

		_, err := f.flow.Confirm(ctx, "the-token", "new-password1")
		require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
		f.credRepo.AssertNotCalled(t, "GetByPrincipal", mock.Anything, mock.Anything)
	})

	t.Run("reused password surfaces as such", func(t *testing.T) {
		f := newResetFlowFixture(t)

		request := openRequest(t, "stored-token-hash", time.Now().Add(10*time.Minute))
		cred, err := auth.NewCredential(principalID, "old-password-hash")
		require.NoError(t, err)

		f.resets.On("ListOpen", ctx, mock.AnythingOfType("time.Time"), auth.ResetCandidateWindow).
			Return([]*auth.PasswordResetRequest{request}, nil)
		f.hasher.On("Verify", "the-token", "stored-token-hash").Return(true, nil)
		f.resets.On("MarkUsed", ctx, request.ID, mock.AnythingOfType("time.Time")).Return(nil)

		f.credRepo.On("GetByPrincipal", ctx, principalID).Return(cred, nil)
		f.hasher.On("Verify", "old-password1", "old-password-hash").Return(true, nil)

		_, err = f.flow.Confirm(ctx, "the-token", "old-password1")
		require.ErrorIs(t, err, auth.ErrPasswordReused)
		f.sessRepo.AssertNotCalled(t, "RevokeAllByPrincipal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
