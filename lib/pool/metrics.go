package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the buffer counts of a Pool to prometheus
type Metrics struct {
	pool    *Pool
	inUse   *prometheus.Desc
	inPool  *prometheus.Desc
	alloced *prometheus.Desc
}

// NewMetrics makes a collector for bp under namespace.  Register it
// with a prometheus.Registerer to publish it.
func NewMetrics(namespace string, bp *Pool) *Metrics {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, nil, nil)
	}
	return &Metrics{
		pool:    bp,
		inUse:   desc("buffers_in_use", "Buffers handed out and not yet returned."),
		inPool:  desc("buffers_in_pool", "Free buffers cached in the pool."),
		alloced: desc("buffers_alloced", "Buffers allocated and not yet freed."),
	}
}

// Describe is part of the prometheus.Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.inUse
	ch <- m.inPool
	ch <- m.alloced
}

// Collect is part of the prometheus.Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.pool.mu.Lock()
	inUse, inPool, alloced := m.pool.inUse, len(m.pool.cache), m.pool.alloced
	m.pool.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(m.inUse, prometheus.GaugeValue, float64(inUse))
	ch <- prometheus.MustNewConstMetric(m.inPool, prometheus.GaugeValue, float64(inPool))
	ch <- prometheus.MustNewConstMetric(m.alloced, prometheus.GaugeValue, float64(alloced))
}

// Check interface
var _ prometheus.Collector = (*Metrics)(nil)
