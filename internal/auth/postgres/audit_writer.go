// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package postgres

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// AuditWriter implements auth.AuditSink on PostgreSQL. Writes join the
// ambient transaction, so an audit row commits with the mutation it records
// or not at all.
type AuditWriter struct {
	db DB
}

// NewAuditWriter creates a new AuditWriter.
func NewAuditWriter(db DB) *AuditWriter {
	return &AuditWriter{db: db}
}

// Record stores one audit event.
func (w *AuditWriter) Record(ctx context.Context, event auth.AuditEvent) error {
	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return oops.Code("AUDIT_RECORD_FAILED").
				With("operation", "marshal audit details").
				With("action", event.Action).
				Wrap(err)
		}
	}

	_, err := querierFor(ctx, w.db).Exec(ctx, `
		INSERT INTO audit_events (id, actor_principal_id, action, target_principal_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		event.ID.String(),
		event.ActorPrincipalID.String(),
		event.Action,
		event.TargetPrincipalID.String(),
		detailsJSON,
		event.CreatedAt,
	)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("operation", "insert audit event").
			With("action", event.Action).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.AuditSink = (*AuditWriter)(nil)
