package uhs2

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes Metrics as prometheus counters.
type Collector struct {
	counters []prometheus.CounterFunc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector reading m. namespace prefixes every metric
// name (default "uhs2" when empty) and constLabels are attached to all of them.
func NewCollector(m *Metrics, namespace string, constLabels prometheus.Labels) *Collector {
	if namespace == "" {
		namespace = "uhs2"
	}

	counter := func(name, help string, v *atomic.Uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(v.Load()) })
	}

	return &Collector{
		counters: []prometheus.CounterFunc{
			counter("packets_sent_total", "Total number of packets submitted to the transport.", &m.PacketSendCount),
			counter("transport_errors_total", "Total number of failed transport submissions.", &m.TransportErrCount),
			counter("protocol_errors_total", "Total number of responses rejected as protocol violations.", &m.ProtocolErrCount),
			counter("device_init_attempts_total", "Total number of DEVICE_INIT packets sent.", &m.DeviceInitAttemptCount),
			counter("device_init_backoffs_total", "Total number of discriminator increments during DEVICE_INIT.", &m.DeviceInitBackoffCount),
			counter("device_init_timeouts_total", "Total number of DEVICE_INIT loops that exhausted their attempts.", &m.DeviceInitTimeoutCount),
			counter("enumerations_total", "Total number of successful enumerations.", &m.EnumerateCount),
			counter("dormant_transitions_total", "Total number of acknowledged dormant transitions.", &m.DormantCount),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cf := range c.counters {
		cf.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, cf := range c.counters {
		cf.Collect(ch)
	}
}
