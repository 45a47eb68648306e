// Package metrics provides Prometheus metrics for the engagement service.
// Counters for XP, levels, streaks and notifications, plus persistence
// failures and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Leveling ───────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted, by action.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "xp_awarded_total",
	Help:      "Total experience points awarded.",
}, []string{"action"})

// XPRejected tracks awards refused for an invalid amount or action.
var XPRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "xp_rejected_total",
	Help:      "Total XP awards rejected.",
}, []string{"reason"})

// LevelUps tracks level-up events by the tier reached.
var LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "level_ups_total",
	Help:      "Total level-up events.",
}, []string{"tier"})

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakUpdates tracks daily streak checks by outcome.
var StreakUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "streak_updates_total",
	Help:      "Total daily streak checks by outcome.",
}, []string{"outcome"})

// StreakMilestones tracks milestone achievements by threshold.
var StreakMilestones = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "streak_milestones_total",
	Help:      "Total streak milestones achieved.",
}, []string{"days"})

// FreezeTokensConsumed tracks freeze tokens spent bridging a missed day.
var FreezeTokensConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "freeze_tokens_consumed_total",
	Help:      "Total freeze tokens consumed.",
})

// PerfectDays tracks perfect days completed.
var PerfectDays = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "perfect_days_total",
	Help:      "Total perfect days (all daily goals closed).",
})

// ─── Persistence ────────────────────────────────────────────────────────────

// PersistenceFailures tracks load/save failures that were recovered locally.
var PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "persistence_failures_total",
	Help:      "Total recovered persistence failures.",
}, []string{"op", "kind"})

// StoreLatency tracks store round-trip duration in seconds.
var StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "touchsync",
	Name:      "store_latency_seconds",
	Help:      "Store operation duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"op"})

// RevisionConflicts tracks commits refused because another writer saved first.
var RevisionConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "revision_conflicts_total",
	Help:      "Total engagement commits retried after a concurrent write.",
})

// ─── Profiles & Notifications ───────────────────────────────────────────────

// ProfilesActive tracks profiles currently cached by the manager.
var ProfilesActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "touchsync",
	Name:      "profiles_active",
	Help:      "Number of profiles loaded in memory.",
})

// ProfileEvictions tracks profiles dropped from memory, by reason.
var ProfileEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "profile_evictions_total",
	Help:      "Total profiles evicted from memory.",
}, []string{"reason"})

// NotificationsCreated tracks stored notifications by event type.
var NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "notifications_created_total",
	Help:      "Total notifications stored.",
}, []string{"type"})

// NotificationsSuppressed tracks notifications dropped by policy.
var NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "notifications_suppressed_total",
	Help:      "Total notifications suppressed by policy.",
}, []string{"reason"})

// SubscriberPanics tracks event subscribers that panicked during delivery.
var SubscriberPanics = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "event_subscriber_panics_total",
	Help:      "Total recovered panics in event subscribers.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "touchsync",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts.",
}, []string{"check"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests tracks API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "touchsync",
	Name:      "http_requests_total",
	Help:      "Total HTTP API requests.",
}, []string{"route", "code"})
