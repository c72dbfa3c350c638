package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brickctl",
			Subsystem: "session",
			Name:      "exchanges_total",
			Help:      "Total request/reply exchanges by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brickctl",
			Subsystem: "session",
			Name:      "exchange_duration_seconds",
			Help:      "Exchange duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brickctl",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Payload bytes moved by chunked transfers.",
		},
		[]string{"direction"},
	)
	transferChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brickctl",
			Subsystem: "transfer",
			Name:      "chunks_total",
			Help:      "Chunks moved by chunked transfers.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeDuration, transferBytes, transferChunks)
	})
}

func RecordExchange(op string, outcome Outcome, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(op, string(outcome)).Inc()
	exchangeDuration.WithLabelValues(op, string(outcome)).Observe(duration.Seconds())
}

// RecordChunk counts one chunk of n bytes; direction is "up" or "down".
func RecordChunk(direction string, n int) {
	RegisterMetrics()
	transferChunks.WithLabelValues(direction).Inc()
	transferBytes.WithLabelValues(direction).Add(float64(n))
}

// WriteMetricsFile dumps the default registry in text exposition format.
func WriteMetricsFile(path string) error {
	RegisterMetrics()
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
