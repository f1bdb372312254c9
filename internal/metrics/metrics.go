package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database connection
	// ============================================
	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quid_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quid_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// NATS connection and ledger event publishing
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quid_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	LedgerEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quid_ledger_events_published_total",
			Help: "Total number of ledger events published",
		},
		[]string{"event_type"},
	)

	LedgerEventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quid_ledger_events_failed_total",
			Help: "Total number of ledger events that could not be published",
		},
		[]string{"event_type"},
	)

	// ============================================
	// Escrow engine
	// ============================================
	EngineOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quid_engine_operations_total",
			Help: "Total number of engine operations by result and error code",
		},
		[]string{"operation", "result", "code"},
	)

	EngineOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quid_engine_operation_duration_seconds",
			Help:    "Engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Amounts moved per direction: deposit (into escrow), payout, refund, slash
	TokenMovements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quid_token_movements_total",
			Help: "Number of token transfers performed by the engine",
		},
		[]string{"direction", "token"},
	)

	TokenVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quid_token_volume_total",
			Help: "Token amount moved by the engine",
		},
		[]string{"direction", "token"},
	)

	// ============================================
	// Escrow audit
	// ============================================
	EscrowDifference = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quid_escrow_difference",
			Help: "Escrow account balance minus expected escrow, per token",
		},
		[]string{"token"},
	)
)
