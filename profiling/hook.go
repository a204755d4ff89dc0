package profiling

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// HookCtx holds all the information about the site where a hook is
// triggered.
type HookCtx struct {
	// Domain is the object that raises the hook.
	Domain Hookable

	// Pos identifies where the hook fires from.
	Pos *HookPos

	// Item is the subject of the hook, usually a *Node.
	Item any

	// Detail holds optional auxiliary data and may be nil.
	Detail any
}

// A list of hook positions raised by traces.
var (
	// HookPosStepStart fires after a step is opened. Item is the *Node.
	HookPosStepStart = &HookPos{Name: "StepStart"}

	// HookPosStepEnd fires after a step is closed normally. Item is the
	// *Node.
	HookPosStepEnd = &HookPos{Name: "StepEnd"}

	// HookPosStepForceClosed fires for every step closed by the trace rather
	// than by its owner. Item is the *Node.
	HookPosStepForceClosed = &HookPos{Name: "StepForceClosed"}

	// HookPosTraceEnd fires when a trace stops. Item is the root *Node and
	// Detail is the *Trace.
	HookPosTraceEnd = &HookPos{Name: "TraceEnd"}
)

// Hookable defines an object that accepts hooks.
type Hookable interface {
	// AcceptHook registers a hook. Hooks must be registered before the
	// domain starts serving traces.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// InvokeHook triggers the registered hooks.
	InvokeHook(ctx HookCtx)
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides the hook bookkeeping for types that implement the
// Hookable interface.
type HookableBase struct {
	hookList []Hook
}

// NewHookableBase creates a HookableBase object.
func NewHookableBase() *HookableBase {
	return &HookableBase{hookList: make([]Hook, 0)}
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hookList {
		if existing == hook {
			panic("duplicated hook")
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
