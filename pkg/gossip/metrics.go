package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	rounds       prometheus.Counter
	pulls        *prometheus.CounterVec
	roundLatency prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer, nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	m := &Metrics{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gossip_rounds_total",
			Help:        "Anti-entropy rounds started",
			ConstLabels: labels,
		}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gossip_pulls_total",
			Help:        "State pulls from peers by result",
			ConstLabels: labels,
		}, []string{"result"}),
		roundLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "gossip_round_duration_seconds",
			Help:        "Time spent in one anti-entropy round",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.rounds, m.pulls, m.roundLatency)
	}
	return m
}
