// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UsageDecisions counts metering decisions by kind and outcome
	// (allowed, quota_exceeded, subscription_inactive, error).
	UsageDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askfox",
		Subsystem: "metering",
		Name:      "decisions_total",
		Help:      "Usage metering decisions by kind and outcome.",
	}, []string{"kind", "outcome"})

	// PeriodResets counts lazy billing period resets.
	PeriodResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "askfox",
		Subsystem: "metering",
		Name:      "period_resets_total",
		Help:      "Billing periods reset lazily on first use after expiry.",
	})

	// WebhookRequestsTotal counts provider webhook deliveries by provider and result.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askfox",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Billing webhook deliveries by provider and result.",
	}, []string{"provider", "result"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "askfox",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// PlanMappingFallbacks counts provider plan refs that fell back to FREE.
	PlanMappingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askfox",
		Subsystem: "billing",
		Name:      "plan_mapping_fallbacks_total",
		Help:      "Provider plan references without a mapping, resolved to FREE.",
	}, []string{"provider"})

	// EntitlementCacheLookups counts entitlement cache hits and misses.
	EntitlementCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askfox",
		Subsystem: "entitlements",
		Name:      "cache_lookups_total",
		Help:      "Entitlement cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)
