// Package metrics exports profiling activity to Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/webprof"
)

const untaggedLabel = "untagged"

// Recorder is a hook that counts steps, traces and store outcomes. Register
// it on a profiler and on a middleware.
type Recorder struct {
	steps          *prometheus.CounterVec
	stepDurations  *prometheus.HistogramVec
	forcedCloses   prometheus.Counter
	traces         prometheus.Counter
	traceDurations prometheus.Histogram
	stored         prometheus.Counter
	storeErrors    prometheus.Counter
}

// NewRecorder creates a Recorder and registers its collectors.
func NewRecorder(registerer prometheus.Registerer) (*Recorder, error) {
	if registerer == nil {
		return nil, fmt.Errorf("prometheus registerer is nil")
	}

	r := &Recorder{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miniprof_steps_total",
			Help: "Total number of closed steps by tag",
		}, []string{"tag"}),
		stepDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "miniprof_step_duration_seconds",
			Help:    "Step duration in seconds by tag",
			Buckets: prometheus.DefBuckets,
		}, []string{"tag"}),
		forcedCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miniprof_forced_closes_total",
			Help: "Total number of steps closed by the trace instead of their owner",
		}),
		traces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miniprof_traces_total",
			Help: "Total number of finished traces",
		}),
		traceDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "miniprof_trace_duration_seconds",
			Help:    "Trace duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miniprof_traces_stored_total",
			Help: "Total number of traces stored",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miniprof_store_errors_total",
			Help: "Total number of traces that could not be stored",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.steps, r.stepDurations, r.forcedCloses,
		r.traces, r.traceDurations, r.stored, r.storeErrors,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return r, nil
}

// Func updates the metrics.
func (r *Recorder) Func(ctx profiling.HookCtx) {
	switch ctx.Pos {
	case profiling.HookPosStepEnd:
		r.observeStep(ctx.Item)
	case profiling.HookPosStepForceClosed:
		r.forcedCloses.Inc()
		r.observeStep(ctx.Item)
	case profiling.HookPosTraceEnd:
		r.traces.Inc()

		if n, ok := ctx.Item.(*profiling.Node); ok {
			r.traceDurations.Observe(n.Duration().Seconds())
		}
	case webprof.HookPosTraceStored:
		r.stored.Inc()
	case webprof.HookPosStoreFailed:
		r.storeErrors.Inc()
	}
}

func (r *Recorder) observeStep(item any) {
	n, ok := item.(*profiling.Node)
	if !ok {
		return
	}

	tag := n.Tag()
	if tag == "" {
		tag = untaggedLabel
	}

	r.steps.WithLabelValues(tag).Inc()
	r.stepDurations.WithLabelValues(tag).Observe(n.Duration().Seconds())
}

var _ profiling.Hook = (*Recorder)(nil)
