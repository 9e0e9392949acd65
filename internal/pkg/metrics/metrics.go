package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the node's private metric registry, served by the HTTP admin
// server at /metrics.
var Registry = prometheus.NewRegistry()

var (
	// ModulesOnline tracks how many registered modules are within their
	// telemetry timeout window.
	ModulesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgehub_modules_online",
			Help: "Number of modules currently within their telemetry timeout.",
		},
	)

	// ModulesOffline tracks registered modules that have gone stale.
	ModulesOffline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgehub_modules_offline",
			Help: "Number of registered modules past their telemetry timeout.",
		},
	)

	// StressUsage is the factory-wide stress usage (pointwise maximum, SU).
	StressUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgehub_stress_usage_su",
			Help: "Aggregated stress network usage in stress units.",
		},
	)

	// StressCapacity is the factory-wide stress capacity (pointwise maximum, SU).
	StressCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgehub_stress_capacity_su",
			Help: "Aggregated stress network capacity in stress units.",
		},
	)

	// InboundMessages counts dispatched inbound messages by declared type.
	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgehub_inbound_messages_total",
			Help: "Total inbound messages processed, labeled by message type.",
		},
		[]string{"type"},
	)

	// AlertsRaised counts safety alerts by kind.
	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgehub_alerts_total",
			Help: "Total safety alerts raised, labeled by alert kind.",
		},
		[]string{"kind"},
	)

	// CommandsRouted counts per-target routing outcomes.
	CommandsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgehub_commands_routed_total",
			Help: "Total per-target command routing results.",
		},
		[]string{"result"},
	)

	// SnapshotsPublished counts summary publications to the supervisor.
	SnapshotsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forgehub_snapshots_published_total",
			Help: "Total snapshot summaries published upstream.",
		},
	)

	// SnapshotPublishFailures counts failed summary deliveries.
	SnapshotPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forgehub_snapshot_publish_failures_total",
			Help: "Total snapshot summaries that failed to deliver.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ModulesOnline,
		ModulesOffline,
		StressUsage,
		StressCapacity,
		InboundMessages,
		AlertsRaised,
		CommandsRouted,
		SnapshotsPublished,
		SnapshotPublishFailures,
	)
}
