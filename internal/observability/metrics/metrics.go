package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "gasmon_"

	resultSuccess = "success"

	// IngestResultSuccess and IngestResultError label ingest outcomes.
	IngestResultSuccess = "success"
	IngestResultError   = "error"
)

// Alarm lifecycle event labels.
const (
	AlarmOpened          = "opened"
	AlarmExtended        = "extended"
	AlarmClosedTimeout   = "closed_timeout"
	AlarmClosedExhausted = "closed_exhausted"
	AlarmDeleted         = "deleted"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	measurementsInserted prometheus.Counter

	alarmEventsTotal *prometheus.CounterVec

	snapshotRunsTotal   *prometheus.CounterVec
	snapshotRunsLatency *prometheus.HistogramVec

	exportTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		measurementsInserted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "measurements_inserted_total",
				Help: "Total measurements persisted by the ingestion pipeline",
			},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)

		snapshotRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_runs_total",
				Help: "Total daily snapshot generations by result",
			},
			[]string{"result"},
		)
		snapshotRunsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "snapshot_latency_seconds",
				Help:    "Daily snapshot generation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export downloads by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			measurementsInserted,
			alarmEventsTotal,
			snapshotRunsTotal,
			snapshotRunsLatency,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// AddMeasurementsInserted increments the persisted-measurement counter.
func AddMeasurementsInserted(count int) {
	if count <= 0 {
		return
	}
	if measurementsInserted != nil {
		measurementsInserted.Add(float64(count))
	}
}

// IncAlarmEvent increments alarm lifecycle event counter.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveSnapshotRun records snapshot generation latency and result.
func ObserveSnapshotRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if snapshotRunsTotal != nil {
		snapshotRunsTotal.WithLabelValues(result).Inc()
	}
	if snapshotRunsLatency != nil {
		snapshotRunsLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncExport increments export counter by format and result.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "alarms_open",
			Help: "Currently open alarms",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM alarms WHERE status = 'open'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open database connections",
		},
		func() float64 {
			return float64(db.Stats().OpenConnections)
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
