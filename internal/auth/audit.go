// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit action types emitted by the core.
const (
	AuditActionJoin            = "auth.join"
	AuditActionLogin           = "auth.login"
	AuditActionRefresh         = "auth.refresh"
	AuditActionPasswordChange  = "auth.password_change"
	AuditActionResetRequest   = "auth.reset_request"
	AuditActionResetConfirm   = "auth.reset_confirm"
	AuditActionSessionRevoke  = "auth.session_revoke"
)

// AuditEvent is the write contract for the external audit sink. The core
// emits events and never reads them back; storage schema is the sink's
// concern.
type AuditEvent struct {
	ID                ulid.ULID
	ActorPrincipalID  ulid.ULID
	Action            string
	TargetPrincipalID ulid.ULID
	Details           map[string]any
	CreatedAt         time.Time
}

// NewAuditEvent creates an event where the actor acts on their own account.
func NewAuditEvent(actor ulid.ULID, action string, details map[string]any) AuditEvent {
	return AuditEvent{
		ID:                ulid.Make(),
		ActorPrincipalID:  actor,
		Action:            action,
		TargetPrincipalID: actor,
		Details:           details,
		CreatedAt:         time.Now().UTC(),
	}
}

// AuditSink receives audit events. Implementations must be safe to call from
// inside a transaction; a sink that writes to the same database should join
// the ambient transaction.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}
