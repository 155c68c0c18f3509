// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// PrincipalRepository implements auth.PrincipalRepository using PostgreSQL.
// Reads filter out soft-deleted rows.
type PrincipalRepository struct {
	db DB
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(db DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Create stores a new principal. A unique violation on the email index maps
// to auth.ErrConflict, which is how concurrent joins with the same email are
// resolved.
func (r *PrincipalRepository) Create(ctx context.Context, principal *auth.Principal) error {
	_, err := querierFor(ctx, r.db).Exec(ctx, `
		INSERT INTO principals (id, email, display_name, role, deleted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		principal.ID.String(),
		principal.Email,
		principal.DisplayName,
		string(principal.Role),
		principal.DeletedAt,
		principal.CreatedAt,
		principal.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("PRINCIPAL_EMAIL_TAKEN").
				With("email", principal.Email).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("id", principal.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a principal by ID, excluding soft-deleted rows.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	row := querierFor(ctx, r.db).QueryRow(ctx, `
		SELECT id, email, display_name, role, deleted_at, created_at, updated_at
		FROM principals
		WHERE id = $1 AND deleted_at IS NULL
	`, id.String())

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_ID_FAILED").
			With("operation", "get principal by id").
			With("id", id.String()).
			Wrap(err)
	}
	return principal, nil
}

// GetByEmail retrieves a principal by email. The column stores normalized
// lowercase addresses, so the comparison is a plain equality.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := querierFor(ctx, r.db).QueryRow(ctx, `
		SELECT id, email, display_name, role, deleted_at, created_at, updated_at
		FROM principals
		WHERE email = $1 AND deleted_at IS NULL
	`, email)

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_EMAIL_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}
	return principal, nil
}

// Update updates auth-relevant fields on an existing principal.
func (r *PrincipalRepository) Update(ctx context.Context, principal *auth.Principal) error {
	result, err := querierFor(ctx, r.db).Exec(ctx, `
		UPDATE principals
		SET email = $2, display_name = $3, role = $4, deleted_at = $5, updated_at = $6
		WHERE id = $1
	`,
		principal.ID.String(),
		principal.Email,
		principal.DisplayName,
		string(principal.Role),
		principal.DeletedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_FAILED").
			With("operation", "update principal").
			With("id", principal.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", principal.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanPrincipal scans a single row into a Principal.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPrincipal(row pgx.Row) (*auth.Principal, error) {
	var (
		idStr       string
		email       string
		displayName string
		role        string
		deletedAt   *time.Time
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&idStr, &email, &displayName, &role, &deletedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("PRINCIPAL_SCAN_FAILED").
			With("operation", "scan principal").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_INVALID_ID").
			With("operation", "parse principal id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Principal{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Role:        auth.Role(role),
		DeletedAt:   deletedAt,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.PrincipalRepository = (*PrincipalRepository)(nil)
