// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
)

// tokenResponse is the wire shape of an issued token pair.
type tokenResponse struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	ExpiredAt        time.Time `json:"expired_at"`
	RefreshableUntil time.Time `json:"refreshable_until"`
}

// principalResponse is the wire shape of a principal.
type principalResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// sessionResponse is the wire shape of one active session.
type sessionResponse struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

func authResponse(result *auth.AuthResult) map[string]any {
	return map[string]any{
		"principal": principalResponse{
			ID:          result.Principal.ID.String(),
			Email:       result.Principal.Email,
			DisplayName: result.Principal.DisplayName,
			Role:        string(result.Principal.Role),
		},
		"tokens": tokenResponse{
			Access:           result.Tokens.Access,
			Refresh:          result.Tokens.Refresh,
			ExpiredAt:        result.Tokens.ExpiredAt,
			RefreshableUntil: result.Tokens.RefreshableUntil,
		},
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	return true
}

// handleJoin registers a new principal and returns an initial token pair.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	result, err := s.facade.Join(r.Context(), req.Email, req.DisplayName, req.Password, deviceMetadata(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse(result))
}

// handleLogin authenticates and returns a fresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	result, err := s.facade.Login(r.Context(), req.Email, req.Password, deviceMetadata(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse(result))
}

// handleRefresh rotates a refresh token into a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}

	result, err := s.facade.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse(result))
}

// handleChangePassword rotates the caller's password. Every session for the
// principal is revoked, including the one making this request, so the client
// must log in again afterwards.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "MISSING_TOKEN", "Authentication required")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}

	err := s.facade.ChangePassword(r.Context(), identity.PrincipalID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRequestReset starts the recovery flow. The response is identical for
// known and unknown emails. The plaintext token goes to the delivery channel,
// never into this response.
func (s *Server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := s.facade.RequestReset(r.Context(), req.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if token != "" {
		s.delivery.DeliverResetToken(r.Context(), req.Email, token)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the address is registered, a reset token has been sent",
	})
}

// handleConfirmReset redeems a reset token for a new password.
func (s *Server) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := s.facade.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions returns the caller's active sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "MISSING_TOKEN", "Authentication required")
		return
	}

	sessions, err := s.facade.ListSessions(r.Context(), identity.PrincipalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionResponse{
			ID:        session.ID.String(),
			UserAgent: session.UserAgent,
			IPAddress: session.IPAddress,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			Current:   session.ID.Compare(identity.SessionID) == 0,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleRevokeSession terminates one session by ID.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "MISSING_TOKEN", "Authentication required")
		return
	}

	sessionID, err := ulid.Parse(pathVar(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid session ID")
		return
	}

	if err := s.facade.RevokeSession(r.Context(), sessionID, identity.PrincipalID, identity.IsElevated()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
