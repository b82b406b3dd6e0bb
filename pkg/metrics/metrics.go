package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_events_processed_total",
		Help: "Total number of change events processed per handler",
	}, []string{"handler", "status"})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_handler_duration_seconds",
		Help:    "Duration of handler invocations",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})

	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_operations_total",
		Help: "Total number of keyed store operations",
	}, []string{"operation", "status"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_duration_seconds",
		Help:    "Duration of keyed store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RelayInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_invocations_total",
		Help: "Total number of completion relay invocations",
	}, []string{"status"})

	StreamPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stream_pending_entries",
		Help: "Entries reclaimed from the pending list per consumer group",
	}, []string{"group"})

	TradesInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trades_inserted_total",
		Help: "Total number of trade records written by the API",
	}, []string{"operation", "status"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of cache misses",
	})
)

func RecordEvent(handler, status string) {
	EventsProcessed.WithLabelValues(handler, status).Inc()
}

func RecordStoreOperation(operation, status string, duration float64) {
	StoreOperations.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(duration)
}

func RecordRelay(status string) {
	RelayInvocations.WithLabelValues(status).Inc()
}

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
