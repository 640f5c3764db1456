package cachemap

// metrics.go is a thin abstraction over Prometheus with a noop/real split,
// covering the cache map's own observability surface: finds and stores
// counted by outcome, stale marks, and per-layer byte/flag gauges
// refreshed from a javacore stats snapshot.

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incFind(result string)
	incStore(result string)
	incStaleMarks(n int)
	setLayerBytes(layer int, region string, value float64)
	setFullFlag(layer int, flag string, set bool)
}

type noopMetrics struct{}

func (noopMetrics) incFind(string)                      {}
func (noopMetrics) incStore(string)                     {}
func (noopMetrics) incStaleMarks(int)                   {}
func (noopMetrics) setLayerBytes(int, string, float64)  {}
func (noopMetrics) setFullFlag(int, string, bool)       {}

type promMetrics struct {
	finds      *prometheus.CounterVec
	stores     *prometheus.CounterVec
	staleMarks prometheus.Counter
	layerBytes *prometheus.GaugeVec
	fullFlag   *prometheus.GaugeVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		finds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scc", Name: "find_total", Help: "ROM class finds by outcome.",
		}, []string{"result"}),
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scc", Name: "store_total", Help: "ROM class stores by outcome.",
		}, []string{"result"}),
		staleMarks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scc", Name: "stale_marks_total", Help: "Items marked stale.",
		}),
		layerBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scc", Name: "layer_bytes", Help: "Bytes used per layer and region.",
		}, []string{"layer", "region"}),
		fullFlag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scc", Name: "full_flag", Help: "Whether a full-flag is set (1) or not (0) per layer.",
		}, []string{"layer", "flag"}),
	}
	reg.MustRegister(pm.finds, pm.stores, pm.staleMarks, pm.layerBytes, pm.fullFlag)
	return pm
}

func (m *promMetrics) incFind(result string)  { m.finds.WithLabelValues(result).Inc() }
func (m *promMetrics) incStore(result string) { m.stores.WithLabelValues(result).Inc() }
func (m *promMetrics) incStaleMarks(n int)    { m.staleMarks.Add(float64(n)) }

func (m *promMetrics) setLayerBytes(layer int, region string, value float64) {
	m.layerBytes.WithLabelValues(strconv.Itoa(layer), region).Set(value)
}

func (m *promMetrics) setFullFlag(layer int, flag string, set bool) {
	v := 0.0
	if set {
		v = 1.0
	}
	m.fullFlag.WithLabelValues(strconv.Itoa(layer), flag).Set(v)
}

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
