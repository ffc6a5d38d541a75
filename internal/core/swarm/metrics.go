package swarm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "dep2p_swarm"

// metrics Swarm 指标
//
// 未提供 Registerer 时指标照常计数但不注册。
type metrics struct {
	dialAttempts  *prometheus.CounterVec
	dialDuration  prometheus.Histogram
	connections   prometheus.Gauge
	handshakes    *prometheus.CounterVec
	streamsOpened prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		dialAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dial_attempts_total",
			Help:      "Transport dial attempts by result.",
		}, []string{"result"}),
		dialDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dial_duration_seconds",
			Help:      "Time to connect and upgrade an outbound connection.",
			Buckets:   prometheus.DefBuckets,
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Authoritative peer connections.",
		}),
		handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Connection handshakes by direction and result.",
		}, []string{"direction", "result"}),
		streamsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "streams_opened_total",
			Help:      "Outbound substreams opened through Dial.",
		}),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
