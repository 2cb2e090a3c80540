package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	operations       *prometheus.CounterVec
	conversionErrors prometheus.Counter
	imports          *prometheus.CounterVec
	ingestedEvents   prometheus.Counter
	keys             prometheus.Gauge
}

// NewMetrics регистрирует метрики хранилища в reg; при reg == nil
// метрики работают, но никуда не экспортируются.
func NewMetrics(reg prometheus.Registerer, nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lwwset_operations_total",
			Help:        "Local add/remove operations accepted by the store",
			ConstLabels: labels,
		}, []string{"op"}),
		conversionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lwwset_conversion_errors_total",
			Help:        "Values that could not be converted to a payload",
			ConstLabels: labels,
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lwwset_imports_total",
			Help:        "Peer state imports by result",
			ConstLabels: labels,
		}, []string{"result"}),
		ingestedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lwwset_ingested_events_total",
			Help:        "New add/remove events absorbed from peers",
			ConstLabels: labels,
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "lwwset_keys",
			Help:        "Number of named sets held by the store",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.operations, m.conversionErrors, m.imports, m.ingestedEvents, m.keys)
	}
	return m
}
