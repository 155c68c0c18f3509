// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the authentication core.
var (
	// operationDuration tracks the latency of facade operations.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_operation_duration_seconds",
		Help:    "Histogram of authentication operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// operationResults counts operations by outcome.
	operationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Total number of authentication operations",
	}, []string{"operation", "result"})

	// activeLockouts counts credentials entering lockout.
	activeLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Total number of credential lockouts triggered",
	})

	// sessionsRevoked counts revoked sessions by trigger.
	sessionsRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_revoked_total",
		Help: "Total number of sessions revoked",
	}, []string{"trigger"})
)

// recordOperation records latency and outcome for one facade operation.
func recordOperation(operation string, start time.Time, err error) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationResults.WithLabelValues(operation, result).Inc()
}
