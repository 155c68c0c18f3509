// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

// Package httpapi exposes the authentication core over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// ResetTokenDelivery hands a plaintext reset token to an out-of-band channel,
// typically email. Implementations must not write the token anywhere the API
// response could observe it.
type ResetTokenDelivery interface {
	DeliverResetToken(ctx context.Context, email, token string)
}

// LogDelivery is a development-only delivery that logs the token. Swap in a
// real mailer for production.
type LogDelivery struct{}

// DeliverResetToken logs the reset token at debug level.
func (LogDelivery) DeliverResetToken(_ context.Context, email, token string) {
	slog.Debug("reset token issued", "email", email, "token", token)
}

// Server serves the authentication API.
type Server struct {
	addr       string
	facade     *auth.Facade
	delivery   ResetTokenDelivery
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates an API server.
func NewServer(addr string, facade *auth.Facade, delivery ResetTokenDelivery) (*Server, error) {
	if facade == nil {
		return nil, oops.Errorf("facade is required")
	}
	if delivery == nil {
		delivery = LogDelivery{}
	}
	return &Server{
		addr:     addr,
		facade:   facade,
		delivery: delivery,
	}, nil
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(securityHeaders)
	r.Use(logRequests)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Public endpoints
	v1.HandleFunc("/auth/join", s.handleJoin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	v1.HandleFunc("/auth/reset/request", s.handleRequestReset).Methods(http.MethodPost)
	v1.HandleFunc("/auth/reset/confirm", s.handleConfirmReset).Methods(http.MethodPost)

	// Authenticated endpoints
	authed := v1.NewRoute().Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/auth/password", s.handleChangePassword).Methods(http.MethodPut)
	authed.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{id}", s.handleRevokeSession).Methods(http.MethodDelete)

	return r
}

// Start begins serving the API. It returns an error channel that receives
// any error from the HTTP server after startup; the channel is closed when
// the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	slog.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// pathVar reads one mux path variable.
func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
