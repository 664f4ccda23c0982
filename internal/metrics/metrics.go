// Package metrics holds the Prometheus collectors of the indexing pipeline.
package metrics

import (
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "indexer"

// Result label values.
const (
	ResultOK         = "ok"
	ResultRetry      = "retry"
	ResultDeadLetter = "dead_letter"
	ResultStale      = "stale"
	ResultConflict   = "conflict"
	ResultError      = "error"
)

var MessagesHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "consumer",
	Name:      "messages_handled_total",
	Help:      "Indexing messages handled, by indexer, message kind and result.",
}, []string{"indexer", "kind", "result"})

var HandleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "consumer",
	Name:      "handle_duration_seconds",
	Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
}, []string{"indexer", "kind"})

var DocumentsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "consumer",
	Name:      "documents_written_total",
	Help:      "Documents upserted into or deleted from the search backend.",
}, []string{"indexer", "op"})

var MessagesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "producer",
	Name:      "messages_dispatched_total",
}, []string{"indexer", "kind"})

var DispatchDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "producer",
	Name:      "messages_deduplicated_total",
	Help:      "Messages dropped because an identical one was still pending.",
})

var MappingPushes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "mapping",
	Name:      "pushes_total",
}, []string{"indexer", "result"})

var DriftedEntities = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "mapping",
	Name:      "drifted_entities",
	Help:      "Entity types whose mapping drifted and await a full reindex.",
})

var SearchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "search",
	Name:      "requests_total",
}, []string{"index", "result"})

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesHandled,
		HandleDuration,
		DocumentsWritten,
		MessagesDispatched,
		DispatchDeduplicated,
		MappingPushes,
		DriftedEntities,
		SearchRequests,
	}
}

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	var result *multierror.Error
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
