package profiling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyActive is returned when a trace is started on a context that
	// already carries an active trace.
	ErrAlreadyActive = errors.New("profiling: trace already active")

	// ErrNotActive is returned when a step is opened or a trace is stopped
	// outside of an active trace.
	ErrNotActive = errors.New("profiling: trace not active")

	// ErrInconsistentStack is matched by errors reporting a step that was
	// closed out of last-opened-first-closed order.
	ErrInconsistentStack = errors.New("profiling: inconsistent step stack")

	// ErrInvalidState is returned when a step or a node is closed twice.
	ErrInvalidState = errors.New("profiling: invalid state")

	// ErrMalformedTree is returned when an encoded tree cannot be restored.
	ErrMalformedTree = errors.New("profiling: malformed tree")
)

// InconsistentStackError reports a step that was closed while steps opened
// after it were still open. Those steps have been force-closed.
type InconsistentStackError struct {
	// Closed is the label of the step that Close was called on.
	Closed string

	// Forced lists the labels of the steps that were force-closed, innermost
	// first.
	Forced []string
}

func (e *InconsistentStackError) Error() string {
	return fmt.Sprintf(
		"profiling: step %q closed before [%s]",
		e.Closed, strings.Join(e.Forced, ", "))
}

// Is makes errors.Is(err, ErrInconsistentStack) hold.
func (e *InconsistentStackError) Is(target error) bool {
	return target == ErrInconsistentStack
}
