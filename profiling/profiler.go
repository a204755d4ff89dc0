// Package profiling records hierarchical timing traces of the work done while
// serving a request, and aggregates finished traces into per-tag statistics.
//
// A Profiler starts one Trace per unit of work. The trace travels with the
// context of that unit of work, so nested operations open steps with
// StartStep and close them when they are done:
//
//	ctx, trace, err := profiler.Start(ctx)
//	...
//	step := profiling.StartStep(ctx, "db", "select users")
//	rows, err := db.QueryContext(ctx, query)
//	step.Close()
//	...
//	root, err := trace.Stop()
//	summary := profiling.Aggregate(root.Children()...)
package profiling

import (
	"context"
	"fmt"
	"log/slog"
)

// RootDescription is the description given to the root node by Start.
const RootDescription = "root"

// A Profiler creates traces. It is safe for concurrent use once built. Hooks
// must be registered before the first trace starts.
type Profiler struct {
	*HookableBase

	clock  Clock
	logger *slog.Logger
}

// Builder can build profilers.
type Builder struct {
	clock  Clock
	logger *slog.Logger
}

// MakeBuilder creates a builder with the wall clock and the default logger.
func MakeBuilder() Builder {
	return Builder{
		clock: WallClock(),
	}
}

// WithClock sets the clock that timestamps the steps.
func (b Builder) WithClock(clock Clock) Builder {
	b.clock = clock
	return b
}

// WithLogger sets the logger that receives the diagnostics about misused
// steps.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.clock == nil {
		panic("profiler clock must not be nil")
	}
}

// Build creates a new Profiler.
func (b Builder) Build() *Profiler {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Profiler{
		HookableBase: NewHookableBase(),
		clock:        b.clock,
		logger:       logger.With("component", "profiler"),
	}
}

// Start begins a new trace and returns a context that carries it. It fails
// with ErrAlreadyActive if ctx already carries an active trace.
func (p *Profiler) Start(
	ctx context.Context,
) (context.Context, *Trace, error) {
	return p.StartNamed(ctx, RootDescription)
}

// StartNamed is Start with a custom description for the root node.
func (p *Profiler) StartNamed(
	ctx context.Context,
	description string,
) (context.Context, *Trace, error) {
	if existing := FromContext(ctx); existing != nil &&
		existing.State() == StateActive {
		return ctx, nil, fmt.Errorf(
			"%w: cannot start %q", ErrAlreadyActive, description)
	}

	t := newTrace(p, description)

	return context.WithValue(ctx, traceKey{}, t), t, nil
}

type traceKey struct{}

// FromContext returns the trace carried by ctx, or nil.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

// StartStep opens a step in the trace carried by ctx. It returns nil when ctx
// carries no active trace. A nil step can be closed safely, so callers do not
// need to check whether profiling is enabled.
func StartStep(ctx context.Context, tag, description string) *Step {
	t := FromContext(ctx)
	if t == nil {
		return nil
	}

	s, err := t.Step(tag, description)
	if err != nil {
		t.profiler.logger.Warn("step opened outside of an active trace",
			"tag", tag,
			"description", description,
			"error", err)

		return nil
	}

	return s
}
