package h2

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Metrics collects engine-wide counters exposed via Prometheus. A single
// instance is shared by every Connection created from the same Server,
// since the scrape handler reads it from a goroutine outside the
// engine's cooperative loop (spec.md Section 5) while connections keep
// mutating it from inside that loop; the counters are therefore atomics
// rather than plain fields.
type Metrics struct {
	framesRead    atomic.Uint64
	framesWritten atomic.Uint64

	streamsOpened atomic.Uint64
	streamsClosed atomic.Uint64
	streamsReset  atomic.Uint64

	hpackEvictions   atomic.Uint64
	dynamicTableSize atomic.Int64

	flowControlStalls atomic.Uint64

	connErrors   atomic.Uint64
	streamErrors atomic.Uint64
}

// NewMetrics creates an empty Metrics collector.
func NewMetrics() *Metrics { return &Metrics{} }

// Register attaches the metrics as Prometheus collectors on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "frames_read_total",
		}, func() float64 { return float64(m.framesRead.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "frames_written_total",
		}, func() float64 { return float64(m.framesWritten.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "streams_opened_total",
		}, func() float64 { return float64(m.streamsOpened.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "streams_closed_total",
		}, func() float64 { return float64(m.streamsClosed.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "streams_reset_total",
		}, func() float64 { return float64(m.streamsReset.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "hpack_evictions_total",
		}, func() float64 { return float64(m.hpackEvictions.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "h2", Name: "hpack_dynamic_table_bytes",
		}, func() float64 { return float64(m.dynamicTableSize.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "flow_control_stalls_total",
		}, func() float64 { return float64(m.flowControlStalls.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "connection_errors_total",
		}, func() float64 { return float64(m.connErrors.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "h2", Name: "stream_errors_total",
		}, func() float64 { return float64(m.streamErrors.Load()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
