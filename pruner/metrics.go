package pruner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	queryLabel     = "query"
	operationLabel = "operation"
	errorTypeLabel = "error_type"

	queryRaycast = "raycast"
	querySweep   = "sweep"
	queryOverlap = "overlap"

	operationAdd    = "add"
	operationRemove = "remove"
	operationUpdate = "update"
)

var (
	commitCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pruner_commit_count",
		Help: "The number of pruner rebuilds.",
	})

	commitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pruner_commit_latency_seconds",
		Help:    "The time spent rebuilding pruners.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	queryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_query_count",
		Help: "The number of pruner queries.",
	}, []string{queryLabel})

	queryHitCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_query_hit_count",
		Help: "The number of hits reported by pruner queries.",
	}, []string{queryLabel})

	mutationCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_mutation_count",
		Help: "The number of pruner mutations.",
	}, []string{operationLabel})

	errorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_error_count",
		Help: "The number of rejected pruner operations.",
	}, []string{errorTypeLabel})
)

func instrumentCommit(d time.Duration) {
	commitCount.Inc()
	commitLatency.Observe(d.Seconds())
}

func instrumentQuery(query string, hits int) {
	queryCount.
		With(prometheus.Labels{queryLabel: query}).
		Inc()

	queryHitCount.
		With(prometheus.Labels{queryLabel: query}).
		Add(float64(hits))
}

func instrumentMutation(operation string) {
	mutationCount.
		With(prometheus.Labels{operationLabel: operation}).
		Inc()
}

func instrumentError(errType string) {
	errorCount.
		With(prometheus.Labels{errorTypeLabel: errType}).
		Inc()
}
