package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "breederhq"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthStatus tracks overall server health: 0 = unhealthy, 1 = degraded, 2 = healthy
var HealthStatus = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_status",
		Help:      "Overall server health status (0=unhealthy, 1=degraded, 2=healthy)",
	},
)

// HealthCheckStatus tracks individual health check results: 0 = fail, 1 = warn, 2 = pass
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 1=warn, 2=pass)",
	},
	[]string{"check"},
)

// DraftPicks counts resolved draft board picks.
var DraftPicks = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "draft_picks_total",
		Help:      "Draft board picks by outcome",
	},
	[]string{"outcome"}, // picked, deferred, passed, expired
)

// DraftBoardViewers is the number of open draft board websocket connections.
var DraftBoardViewers = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "draft_board_viewers",
		Help:      "Open draft board live connections",
	},
)

// InboundEmails counts inbound messages by spam verdict and pipeline outcome.
var InboundEmails = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_emails_total",
		Help:      "Inbound emails by verdict and outcome",
	},
	[]string{"verdict", "outcome"},
)

// WebhookDeliveries counts received provider webhooks.
var WebhookDeliveries = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Received webhooks by provider and result",
	},
	[]string{"provider", "result"}, // result: processed, duplicate, rejected, ignored, error
)

// EmailDeliveries counts outbound email attempts.
var EmailDeliveries = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "email_deliveries_total",
		Help:      "Outbound email attempts by kind and result",
	},
	[]string{"kind", "result"}, // kind: message, notification
)

// IdempotentReplays counts requests answered from a stored idempotent response.
var IdempotentReplays = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "idempotent_replays_total",
		Help:      "Requests answered from a stored Idempotency-Key response",
	},
)

// CleanupDeleted counts rows removed by retention jobs.
var CleanupDeleted = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_deleted_total",
		Help:      "Rows deleted by retention cleanup jobs",
	},
	[]string{"table"},
)

// Init registers runtime collectors and sets version information
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
