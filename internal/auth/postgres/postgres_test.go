// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/auth"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func TestPrincipalRepository_Create(t *testing.T) {
	principal, err := auth.NewPrincipal("alice@example.com", "Alice", auth.RoleMember)
	require.NoError(t, err)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO principals`).
					WithArgs(principal.ID.String(), principal.Email, principal.DisplayName,
						string(principal.Role), principal.DeletedAt, principal.CreatedAt, principal.UpdatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation maps to conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO principals`).
					WithArgs(principal.ID.String(), principal.Email, principal.DisplayName,
						string(principal.Role), principal.DeletedAt, principal.CreatedAt, principal.UpdatedAt).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: auth.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			repo := NewPrincipalRepository(mock)
			err := repo.Create(context.Background(), principal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPrincipalRepository_GetByEmail(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		rows := pgxmock.NewRows([]string{"id", "email", "display_name", "role", "deleted_at", "created_at", "updated_at"}).
			AddRow(id.String(), "alice@example.com", "Alice", "member", (*time.Time)(nil), now, now)
		mock.ExpectQuery(`SELECT id, email, display_name, role, deleted_at, created_at, updated_at`).
			WithArgs("alice@example.com").
			WillReturnRows(rows)

		repo := NewPrincipalRepository(mock)
		got, err := repo.GetByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, auth.RoleMember, got.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, email, display_name, role, deleted_at, created_at, updated_at`).
			WithArgs("nobody@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "display_name", "role", "deleted_at", "created_at", "updated_at"}))

		repo := NewPrincipalRepository(mock)
		_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCredentialRepository_RoundTrip(t *testing.T) {
	principalID := ulid.Make()
	now := time.Now().UTC()

	t.Run("get unmarshals history", func(t *testing.T) {
		mock := newMockPool(t)
		rows := pgxmock.NewRows([]string{"principal_id", "password_hash", "password_history", "password_changed_at", "failed_attempts", "locked_until"}).
			AddRow(principalID.String(), "current-hash", []byte(`["old-1","old-2"]`), now, 0, (*time.Time)(nil))
		mock.ExpectQuery(`SELECT principal_id, password_hash, password_history`).
			WithArgs(principalID.String()).
			WillReturnRows(rows)

		repo := NewCredentialRepository(mock)
		got, err := repo.GetByPrincipal(context.Background(), principalID)
		require.NoError(t, err)
		assert.Equal(t, "current-hash", got.PasswordHash)
		assert.Equal(t, []string{"old-1", "old-2"}, got.PasswordHistory)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create normalizes nil history to empty array", func(t *testing.T) {
		mock := newMockPool(t)
		cred, err := auth.NewCredential(principalID, "current-hash")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO credentials`).
			WithArgs(principalID.String(), "current-hash", []byte(`[]`), cred.PasswordChangedAt, 0, (*time.Time)(nil)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewCredentialRepository(mock)
		require.NoError(t, repo.Create(context.Background(), cred))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update of missing row maps to not found", func(t *testing.T) {
		mock := newMockPool(t)
		cred, err := auth.NewCredential(principalID, "current-hash")
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE credentials`).
			WithArgs(principalID.String(), "current-hash", []byte(`[]`), cred.PasswordChangedAt, 0, (*time.Time)(nil)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewCredentialRepository(mock)
		err = repo.Update(context.Background(), cred)
		require.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_Revoke(t *testing.T) {
	id := ulid.Make()
	at := time.Now().UTC()

	t.Run("already revoked affects no rows without error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET revoked_at`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSessionRepository(mock)
		require.NoError(t, repo.Revoke(context.Background(), id, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET revoked_at`).
			WithArgs(id.String(), at).
			WillReturnError(errors.New("connection refused"))

		repo := NewSessionRepository(mock)
		err := repo.Revoke(context.Background(), id, at)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_RevokeAllByPrincipal(t *testing.T) {
	principalID := ulid.Make()
	at := time.Now().UTC()

	t.Run("without exception", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET revoked_at`).
			WithArgs(principalID.String(), at, (*string)(nil)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		repo := NewSessionRepository(mock)
		require.NoError(t, repo.RevokeAllByPrincipal(context.Background(), principalID, nil, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sparing one session", func(t *testing.T) {
		mock := newMockPool(t)
		keep := ulid.Make()
		keepStr := keep.String()
		mock.ExpectExec(`UPDATE sessions SET revoked_at`).
			WithArgs(principalID.String(), at, &keepStr).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))

		repo := NewSessionRepository(mock)
		require.NoError(t, repo.RevokeAllByPrincipal(context.Background(), principalID, &keep, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_UpdateTokens(t *testing.T) {
	id := ulid.Make()
	expiresAt := time.Now().UTC().Add(time.Hour)

	t.Run("revoked session cannot rotate", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET access_token_ref`).
			WithArgs(id.String(), "new-jti", "new-hash", expiresAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSessionRepository(mock)
		err := repo.UpdateTokens(context.Background(), id, "new-jti", "new-hash", expiresAt)
		require.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResetRequestRepository_MarkUsed(t *testing.T) {
	id := ulid.Make()
	at := time.Now().UTC()

	t.Run("first redemption wins", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE password_reset_requests SET used = TRUE`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewResetRequestRepository(mock)
		require.NoError(t, repo.MarkUsed(context.Background(), id, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second redemption maps to not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE password_reset_requests SET used = TRUE`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewResetRequestRepository(mock)
		err := repo.MarkUsed(context.Background(), id, at)
		require.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResetRequestRepository_ListOpen(t *testing.T) {
	now := time.Now().UTC()
	id := ulid.Make()
	principalID := ulid.Make()

	mock := newMockPool(t)
	rows := pgxmock.NewRows([]string{"id", "principal_id", "token_hash", "expires_at", "used", "used_at", "created_at"}).
		AddRow(id.String(), principalID.String(), "token-hash", now.Add(10*time.Minute), false, (*time.Time)(nil), now)
	mock.ExpectQuery(`SELECT id, principal_id, token_hash, expires_at, used, used_at, created_at`).
		WithArgs(now, auth.ResetCandidateWindow).
		WillReturnRows(rows)

	repo := NewResetRequestRepository(mock)
	got, err := repo.ListOpen(context.Background(), now, auth.ResetCandidateWindow)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, principalID, got[0].PrincipalID)
	assert.False(t, got[0].Used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_InTransaction(t *testing.T) {
	id := ulid.Make()
	at := time.Now().UTC()

	t.Run("commits on success", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE sessions SET revoked_at`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		tx := NewTransactor(mock)
		repo := NewSessionRepository(mock)

		err := tx.InTransaction(context.Background(), func(ctx context.Context) error {
			return repo.Revoke(ctx, id, at)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		tx := NewTransactor(mock)
		wantErr := errors.New("boom")

		err := tx.InTransaction(context.Background(), func(ctx context.Context) error {
			return wantErr
		})
		require.ErrorIs(t, err, wantErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure is wrapped", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		tx := NewTransactor(mock)
		err := tx.InTransaction(context.Background(), func(ctx context.Context) error {
			t.Fatal("fn must not run when begin fails")
			return nil
		})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
