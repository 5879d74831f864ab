package operation

import (
	"time"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// Work is the behaviour a RunLoopOperation drives. Both hooks are only ever
// called on the operation's actual execution context.
//
// OnStart registers whatever loop sources the work needs and may call
// h.Finish right away. OnWillFinish releases those sources; it runs exactly
// once for every operation that was started, including cancelled ones, and
// can inspect h.Err to learn the outcome (core.ErrCancelled on cancellation).
type Work interface {
	OnStart(h *Handle)
	OnWillFinish(h *Handle)
}

// WorkFuncs adapts a pair of functions to Work. Nil functions are no-ops.
type WorkFuncs struct {
	Start      func(h *Handle)
	WillFinish func(h *Handle)
}

func (w WorkFuncs) OnStart(h *Handle) {
	if w.Start != nil {
		w.Start(h)
	}
}

func (w WorkFuncs) OnWillFinish(h *Handle) {
	if w.WillFinish != nil {
		w.WillFinish(h)
	}
}

// Handle is what Work sees of its operation. It carries the finish
// primitive, which is deliberately not part of RunLoopOperation's public API.
type Handle struct {
	op *RunLoopOperation
}

// Finish moves the operation from executing to finished with err (nil for
// success). It calls OnWillFinish before returning. It must be called on the
// actual execution context and panics with *core.ProtocolViolation otherwise.
// It reports false, and does nothing, if a finish was already requested, e.g.
// because a cancellation got there first.
func (h *Handle) Finish(err error) bool {
	return h.op.finish(err)
}

// Fail finishes the operation with cause wrapped in a *core.WorkError.
func (h *Handle) Fail(cause error) bool {
	return h.op.finish(&core.WorkError{OperationID: h.op.id, Cause: cause})
}

// IsCancelled reports whether cancellation was requested
func (h *Handle) IsCancelled() bool {
	return h.op.IsCancelled()
}

// Err returns the error the operation is finishing with. It is only
// meaningful inside OnWillFinish.
func (h *Handle) Err() error {
	h.op.mu.Lock()
	defer h.op.mu.Unlock()
	return h.op.pendingErr
}

// ID returns the operation ID
func (h *Handle) ID() core.OperationID {
	return h.op.id
}

// Loop returns the actual execution context loop
func (h *Handle) Loop() *runloop.Loop {
	return h.op.ActualExecutionContext().Loop
}

// Modes returns the actual execution context modes
func (h *Handle) Modes() []core.Mode {
	return h.op.ActualExecutionContext().Modes
}

// IsOnActualExecutionContext reports whether the caller runs on the loop the
// hooks run on. Check it before touching loop-affine resources.
func (h *Handle) IsOnActualExecutionContext() bool {
	return h.op.IsOnActualExecutionContext()
}

// Perform schedules fn on the actual execution context. Use it to hand
// results from helper goroutines back to the loop.
func (h *Handle) Perform(fn func()) error {
	ec := h.op.ActualExecutionContext()
	return ec.Loop.Perform(ec.Modes, fn)
}

// AfterFunc registers a timer on the actual execution context
func (h *Handle) AfterFunc(d time.Duration, fn func()) (*runloop.Timer, error) {
	ec := h.op.ActualExecutionContext()
	return ec.Loop.AfterFunc(ec.Modes, d, fn)
}

// Operation returns the operation the handle belongs to
func (h *Handle) Operation() *RunLoopOperation {
	return h.op
}
