package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Services take a
// *Metrics and nil-guard increments so unit tests can pass nil.
type Metrics struct {
	RequestsCreated      prometheus.Counter
	AuditEntriesAppended prometheus.Counter
	ChainVerifyFailures  prometheus.Counter
	SLAEscalations       prometheus.Counter
	PilotsProvisioned    prometheus.Counter
	NotificationFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics. Call once per process;
// promauto registers against the default registry.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pilotdesk_requests_created_total",
			Help: "Total number of pilot requests submitted.",
		}),
		AuditEntriesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pilotdesk_audit_entries_appended_total",
			Help: "Total number of audit entries appended across all chains.",
		}),
		ChainVerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pilotdesk_audit_chain_verify_failures_total",
			Help: "Total number of audit chain verifications that detected tampering.",
		}),
		SLAEscalations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pilotdesk_sla_escalations_total",
			Help: "Total number of SLA escalations raised by overdue sweeps.",
		}),
		PilotsProvisioned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pilotdesk_pilots_provisioned_total",
			Help: "Total number of pilot workspaces provisioned from requests.",
		}),
		NotificationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pilotdesk_notification_failures_total",
			Help: "Total number of notification sends that failed (fire-and-forget).",
		}),
	}
}
