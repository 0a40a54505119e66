package slidingwindow

import (
	"strconv"
	"time"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
)

// Point is one recorded aggregate.
type Point struct {
	BlockNumber uint64
	Time        time.Time
	Value       float64
}

// Timing accumulates admission latency.
type Timing struct {
	Admissions int
	Total      time.Duration
}

// Mean returns the average admission latency.
func (t Timing) Mean() time.Duration {
	if t.Admissions == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Admissions)
}

func (t *Timing) add(d time.Duration) {
	t.Admissions++
	t.Total += d
}

// Recorder wraps a Metric and keeps the series of aggregates it produced together with the
// admission latency, split between the build-up phase (the window is still filling) and the
// sliding phase (blocks are being evicted).
type Recorder struct {
	metric  Metric
	metrics *metrics.Metrics // nil if metrics disabled
	label   string

	first   time.Time
	points  []Point
	buildUp Timing
	sliding Timing
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithMetrics reports every admission to Prometheus.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func NewRecorder(m Metric, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		metric: m,
		label:  strconv.FormatFloat(m.Window().Seconds(), 'f', -1, 64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Admit forwards b to the wrapped metric and records the result.
func (r *Recorder) Admit(b *types.Block) float64 {
	if len(r.points) == 0 {
		r.first = b.Time
	}
	start := time.Now()
	v := r.metric.Admit(b)
	elapsed := time.Since(start)

	if b.Time.Sub(r.first) < r.metric.Window() {
		r.buildUp.add(elapsed)
	} else {
		r.sliding.add(elapsed)
	}
	r.points = append(r.points, Point{BlockNumber: b.Number, Time: b.Time, Value: v})
	if r.metrics != nil {
		r.metrics.ObserveAdmission(r.metric.Name(), r.label, v, elapsed.Seconds())
	}
	return v
}

func (r *Recorder) Metric() Metric { return r.metric }

// Points returns the recorded series in admission order.
func (r *Recorder) Points() []Point { return r.points }

// Last returns the most recent point.
func (r *Recorder) Last() (Point, bool) {
	if len(r.points) == 0 {
		return Point{}, false
	}
	return r.points[len(r.points)-1], true
}

// BuildUp returns the latency of admissions made before the window first filled.
func (r *Recorder) BuildUp() Timing { return r.buildUp }

// Sliding returns the latency of admissions made once the window was full.
func (r *Recorder) Sliding() Timing { return r.sliding }
