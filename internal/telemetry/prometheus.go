package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exposes the core device/request vocabulary as
// Prometheus metrics, generalized from the teacher's
// cmd/snmpsim-api/metrics.go lab/agent gauges (labsActive, agentsActive,
// packetsTotal, latencyHistogram) to this spec's device/request model.
type PrometheusSink struct {
	devicesActive         *prometheus.GaugeVec
	requestsTotal         *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
	packetsDropped        prometheus.Counter
	resourceLimitExceeded prometheus.Counter
}

// NewPrometheusSink builds and registers the sink's metrics against reg.
// Pass prometheus.DefaultRegisterer for the global registry, as the
// teacher's initMetrics does, or a fresh *prometheus.Registry in tests to
// avoid duplicate-registration panics across test runs.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		devicesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "snmpsim_devices_active",
			Help: "Number of active simulated devices.",
		}, []string{"device_type"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snmpsim_requests_total",
			Help: "Total SNMP requests processed.",
		}, []string{"pdu_type", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snmpsim_request_duration_seconds",
			Help:    "SNMP request handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pdu_type"}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snmpsim_packets_dropped_total",
			Help: "Total packets dropped without a reply (full queue, undecodable packet, or wrong community).",
		}),
		resourceLimitExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snmpsim_resource_limit_exceeded_total",
			Help: "Total requests rejected for exceeding the device resource cap.",
		}),
	}
	reg.MustRegister(s.devicesActive, s.requestsTotal, s.requestDuration, s.packetsDropped, s.resourceLimitExceeded)
	return s
}

// Handle implements Sink.
func (s *PrometheusSink) Handle(ev Event) {
	switch ev.Name {
	case "device.created":
		s.devicesActive.WithLabelValues(stringField(ev, "device_type")).Inc()
	case "device.destroyed":
		s.devicesActive.WithLabelValues(stringField(ev, "device_type")).Dec()
	case "device.request":
		pduType := stringField(ev, "pdu_type")
		result := "success"
		if ok, present := ev.Fields["success"].(bool); present && !ok {
			result = "error"
		}
		s.requestsTotal.WithLabelValues(pduType, result).Inc()
		if d, ok := ev.Fields["duration_us"].(int64); ok {
			s.requestDuration.WithLabelValues(pduType).Observe(float64(d) / 1e6)
		}
	case "packets.dropped":
		s.packetsDropped.Add(floatField(ev, "count", 1))
	case "resource.limit_exceeded":
		if warn, ok := ev.Fields["warning"].(bool); !ok || !warn {
			s.resourceLimitExceeded.Inc()
		}
	}
}

func stringField(ev Event, key string) string {
	if v, ok := ev.Fields[key].(string); ok {
		return v
	}
	return "unknown"
}

func floatField(ev Event, key string, def float64) float64 {
	switch v := ev.Fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
