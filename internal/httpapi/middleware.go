// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
)

// identityKey is the context key for the authenticated identity.
type identityKey struct{}

// Identity is the authenticated caller extracted from an access token.
type Identity struct {
	PrincipalID ulid.ULID
	SessionID   ulid.ULID
	Role        auth.Role
}

// IsElevated returns true for roles that may act on other principals'
// sessions.
func (i Identity) IsElevated() bool {
	return i.Role == auth.RoleAdmin
}

// IdentityFrom returns the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// requireAuth verifies the bearer access token and stores the identity in
// the request context. Requests without a valid access token get a 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header with bearer token required")
			return
		}

		claims, err := s.facade.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		principalID, err := ulid.Parse(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		sessionID, err := ulid.Parse(claims.SessionID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		identity := Identity{
			PrincipalID: principalID,
			SessionID:   sessionID,
			Role:        claims.Role,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests emits one structured log line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", remoteIP(r),
		)
	})
}

// securityHeaders sets the standard hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// deviceMetadata extracts the client context recorded on new sessions.
func deviceMetadata(r *http.Request) auth.DeviceMetadata {
	return auth.DeviceMetadata{
		UserAgent: r.UserAgent(),
		IPAddress: remoteIP(r),
	}
}

// remoteIP strips the port from RemoteAddr. Proxy headers are deliberately
// ignored; trust for X-Forwarded-For belongs in the ingress, not here.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
