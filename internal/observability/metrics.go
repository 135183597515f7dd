package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the solvency engine.
type Metrics struct {
	// --- Core Processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreStateHashDur   prometheus.Histogram
	CoreSequence       prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	ApplyToPersist      prometheus.Histogram
	QueryFreshnessLag   *prometheus.HistogramVec
	NATSPullLatency     *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// --- Reserves & Solvency ---
	ReserveTierBalance  *prometheus.GaugeVec
	IbnrEstimate        prometheus.Gauge
	ContributionsRouted prometheus.Counter
	AdminLoadSiphoned   prometheus.Counter
	WaterfallDraws      prometheus.Counter
	WaterfallShortfalls prometheus.Counter
	CarBps              prometheus.Gauge
	SolvencyZone        prometheus.Gauge
	ShockFactorBps      prometheus.Gauge
	EnrollmentsRecorded prometheus.Counter
	EnrollmentsRejected *prometheus.CounterVec

	// --- Claims Triage ---
	ClaimsSubmitted     *prometheus.CounterVec
	ClaimsDisposed      *prometheus.CounterVec
	ClaimsPaidUsdc      prometheus.Counter
	ShockClaims         prometheus.Counter
	FastLaneRefusals    prometheus.Counter
	AttestationExpiries prometheus.Counter

	// --- Reinsurance ---
	RecoveriesBooked   prometheus.Counter
	ReinsurerShareUsdc prometheus.Counter
	LossRatioFlags     prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_core_events_applied_total",
			Help: "Events successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, validation)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_core_sequence",
			Help: "Current global sequence number",
		}),

		// Latency
		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"event_type"}),

		ApplyToPersist: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_apply_to_persist_seconds",
			Help:    "Core emit to Postgres commit",
			Buckets: latencyBuckets,
		}),

		QueryFreshnessLag: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_query_freshness_lag_seconds",
			Help:    "Core sequence minus projection sequence (in time)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0},
		}, []string{"endpoint"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		EventSequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_event_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"partition"}),

		EventOutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_event_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"partition"}),

		// Reserves & Solvency
		ReserveTierBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_reserve_tier_balance_usdc",
			Help: "Tier balance in micro-USDC",
		}, []string{"tier"}),

		IbnrEstimate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_ibnr_estimate_usdc",
			Help: "Current IBNR liability estimate",
		}),

		ContributionsRouted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_contributions_routed_total",
			Help: "Contributions split across the tiers",
		}),

		AdminLoadSiphoned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_admin_load_usdc_total",
			Help: "Admin load siphoned from contributions",
		}),

		WaterfallDraws: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_waterfall_draws_total",
			Help: "Payout waterfall executions",
		}),

		WaterfallShortfalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_waterfall_shortfalls_total",
			Help: "Waterfall draws that exhausted all tiers",
		}),

		CarBps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_car_bps",
			Help: "Capital adequacy ratio in basis points",
		}),

		SolvencyZone: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_solvency_zone",
			Help: "Current zone (0=green 1=yellow 2=orange 3=red)",
		}),

		ShockFactorBps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_shock_factor_bps",
			Help: "Active global shock multiplier",
		}),

		EnrollmentsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_enrollments_recorded_total",
			Help: "Enrollments counted against the zone cap",
		}),

		EnrollmentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_enrollments_rejected_total",
			Help: "Enrollments refused (frozen, cap)",
		}, []string{"reason"}),

		// Claims Triage
		ClaimsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_claims_submitted_total",
			Help: "Claims accepted into triage",
		}, []string{"lane"}),

		ClaimsDisposed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_claims_disposed_total",
			Help: "Claims reaching a disposition",
		}, []string{"status"}),

		ClaimsPaidUsdc: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_claims_paid_usdc_total",
			Help: "Total claim payouts in micro-USDC",
		}),

		ShockClaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_shock_claims_total",
			Help: "Claims above the shock threshold",
		}),

		FastLaneRefusals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_fast_lane_refusals_total",
			Help: "Fast-lane usage caps hit",
		}),

		AttestationExpiries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_attestation_expiries_total",
			Help: "Attestation SLA windows lapsed",
		}),

		// Reinsurance
		RecoveriesBooked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_recoveries_booked_total",
			Help: "Claims with a reinsurer share computed",
		}),

		ReinsurerShareUsdc: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_reinsurer_share_usdc_total",
			Help: "Total reinsurer share in micro-USDC",
		}),

		LossRatioFlags: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_loss_ratio_flags_total",
			Help: "Months flagged for elevated loss ratio",
		}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
