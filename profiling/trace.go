package profiling

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a trace.
type State int

// The states of a trace. A context without a trace is Idle.
const (
	StateIdle State = iota
	StateActive
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// A Trace is the state of one profiled unit of work: the root node and the
// stack of steps that are still open. The top of the stack is the parent of
// the next step.
//
// Steps must close in last-opened-first-closed order. The mutex only guards
// memory; the nesting model assumes one logical thread of control.
type Trace struct {
	mu       sync.Mutex
	profiler *Profiler
	begin    time.Time
	root     *Node
	stack    []*Node
	state    State
	forced   int
}

func newTrace(p *Profiler, description string) *Trace {
	root := NewNode("", description, 0)

	return &Trace{
		profiler: p,
		begin:    p.clock.Now(),
		root:     root,
		stack:    []*Node{root},
		state:    StateActive,
	}
}

// Begin returns the wall time at which the trace started. Node offsets are
// relative to it.
func (t *Trace) Begin() time.Time {
	return t.begin
}

// State returns the lifecycle state of the trace.
func (t *Trace) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Root returns the root node. It is only immutable after Stop.
func (t *Trace) Root() *Node {
	return t.root
}

// Depth returns the number of open steps, not counting the root.
func (t *Trace) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.stack) == 0 {
		return 0
	}

	return len(t.stack) - 1
}

// ForcedCloses returns how many steps were closed by the trace instead of
// their owner.
func (t *Trace) ForcedCloses() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.forced
}

func (t *Trace) now() time.Duration {
	return t.profiler.clock.Now().Sub(t.begin)
}

func (t *Trace) top() *Node {
	return t.stack[len(t.stack)-1]
}

// Step opens a step as a child of the innermost open step.
func (t *Trace) Step(tag, description string) (*Step, error) {
	t.mu.Lock()

	if t.state != StateActive {
		state := t.state
		t.mu.Unlock()

		return nil, fmt.Errorf(
			"%w: cannot open step %q in a %s trace", ErrNotActive, tag, state)
	}

	n := NewNode(tag, description, t.now())
	t.top().AppendChild(n)
	t.stack = append(t.stack, n)

	t.mu.Unlock()

	t.invokeHook(HookPosStepStart, n, nil)

	return &Step{trace: t, node: n}, nil
}

func (t *Trace) closeStep(n *Node) error {
	t.mu.Lock()

	if n.IsClosed() {
		t.mu.Unlock()

		return fmt.Errorf(
			"%w: step %q closed twice", ErrInvalidState, n.label())
	}

	pos := t.stackPos(n)
	if pos <= 0 {
		t.mu.Unlock()

		return fmt.Errorf(
			"%w: step %q is not open in this trace", ErrInvalidState, n.label())
	}

	end := t.now()
	forced := t.closeAbove(pos, end)
	_ = n.Close(end)
	t.stack = t.stack[:pos]

	t.mu.Unlock()

	for _, f := range forced {
		t.invokeHook(HookPosStepForceClosed, f, nil)
	}

	t.invokeHook(HookPosStepEnd, n, nil)

	if len(forced) == 0 {
		return nil
	}

	err := &InconsistentStackError{
		Closed: n.label(),
		Forced: labels(forced),
	}
	t.profiler.logger.Warn("step closed out of order",
		"step", err.Closed,
		"force_closed", err.Forced)

	return err
}

func (t *Trace) stackPos(n *Node) int {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == n {
			return i
		}
	}

	return -1
}

// closeAbove closes every node stacked above pos, innermost first, and
// returns them. The caller holds the lock and trims the stack.
func (t *Trace) closeAbove(pos int, end time.Duration) []*Node {
	var forced []*Node

	for i := len(t.stack) - 1; i > pos; i-- {
		_ = t.stack[i].Close(end)
		forced = append(forced, t.stack[i])
	}

	t.forced += len(forced)

	return forced
}

// Stop closes the root at the current time and finishes the trace. Steps
// that are still open are force-closed first, innermost first, at the same
// time, so the returned tree never holds an open node. Stop fails with
// ErrNotActive unless the trace is active.
func (t *Trace) Stop() (*Node, error) {
	t.mu.Lock()

	if t.state != StateActive {
		state := t.state
		t.mu.Unlock()

		return nil, fmt.Errorf(
			"%w: cannot stop a %s trace", ErrNotActive, state)
	}

	end := t.now()
	forced := t.closeAbove(0, end)
	_ = t.root.Close(end)
	t.stack = nil
	t.state = StateFinished

	t.mu.Unlock()

	if len(forced) > 0 {
		t.profiler.logger.Warn("steps left open were force-closed at stop",
			"trace", t.root.label(),
			"count", len(forced),
			"steps", labels(forced))
	}

	for _, f := range forced {
		t.invokeHook(HookPosStepForceClosed, f, nil)
	}

	t.invokeHook(HookPosTraceEnd, t.root, t)

	return t.root, nil
}

func (t *Trace) invokeHook(pos *HookPos, item, detail any) {
	if t.profiler.NumHooks() == 0 {
		return
	}

	t.profiler.InvokeHook(HookCtx{
		Domain: t.profiler,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

func labels(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.label())
	}

	return out
}

// A Step is the handle of one open timing interval.
type Step struct {
	trace *Trace
	node  *Node
}

// Node returns the node recorded by the step.
func (s *Step) Node() *Node {
	if s == nil {
		return nil
	}

	return s.node
}

// Close records the end of the step and pops it from the trace.
//
// Closing a step while steps opened after it are still open force-closes
// those steps and returns an *InconsistentStackError. Closing a step twice
// returns ErrInvalidState. Closing a nil step does nothing.
func (s *Step) Close() error {
	if s == nil {
		return nil
	}

	return s.trace.closeStep(s.node)
}
