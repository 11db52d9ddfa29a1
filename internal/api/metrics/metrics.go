// Package metrics defines and registers the custom Prometheus metrics of the
// accounts API. It is the single source of truth for metric names, labels and
// help strings.
//
// Metrics are registered with the default registry on package init via
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// Result label values shared by the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// ── Session metrics ───────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: "success", "failure" (bad credentials) or "error" (store failure)
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// TokenResolutionsTotal counts token resolutions on protected requests.
// Label:
//   - result: "success", "failure" (unauthorized) or "error"
var TokenResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_resolutions_total",
		Help:      "Total number of session token resolutions, by result.",
	},
	[]string{"result"},
)

// SessionsIssuedTotal counts sessions created by successful logins.
var SessionsIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_issued_total",
		Help:      "Total number of session tokens issued.",
	},
)

// SessionsRevokedTotal counts sessions removed from the store.
// Label:
//   - reason: "logout", "account_deleted", "expired" or "orphaned"
var SessionsRevokedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_revoked_total",
		Help:      "Total number of sessions revoked, by reason.",
	},
	[]string{"reason"},
)

// TokenCollisionsTotal counts freshly generated tokens that were already live.
// Anything above zero deserves a look at the entropy source.
var TokenCollisionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_collisions_total",
		Help:      "Total number of generated tokens rejected because they were already live.",
	},
)

// ── User metrics ──────────────────────────────────────────────────────────────

// UsersCreatedTotal counts accounts created.
var UsersCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_created_total",
		Help:      "Total number of user accounts created.",
	},
)

// UsersDeletedTotal counts accounts deleted.
var UsersDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_deleted_total",
		Help:      "Total number of user accounts deleted.",
	},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditQueueDepth tracks the number of audit events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditEventsDroppedTotal counts audit events discarded because the worker
// channel was full.
var AuditEventsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_dropped_total",
		Help:      "Total number of audit events dropped because the queue was full.",
	},
)

// AuditEventsErrorsTotal counts audit events that failed to persist.
var AuditEventsErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_errors_total",
		Help:      "Total number of audit events that failed to persist.",
	},
)
