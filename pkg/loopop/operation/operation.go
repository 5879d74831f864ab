// Package operation implements RunLoopOperation, an asynchronous unit of work
// whose callback-driven logic runs on a chosen run loop while the operation
// itself is scheduled by a queue.
//
// The operation owns the state machine (inited -> executing -> finished) and
// guarantees that the Work hooks run on the actual execution context, that
// OnWillFinish runs exactly once before the operation is observably finished,
// and that the operation finishes exactly once even when Cancel races with
// the work completing.
package operation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// fsm events
const (
	eventStart  = "start"
	eventFinish = "finish"
	eventAbort  = "abort"
)

var opSequence atomic.Uint64

// Options configures a RunLoopOperation. The zero value is usable.
type Options struct {
	// ID identifies the operation; generated from Kind when empty
	ID core.OperationID
	// Kind labels the operation in logs and events, e.g. "reachability"
	Kind string
	// DefaultLoop is the loop used when the execution context is the default
	// one. When nil, runloop.Main() is used.
	DefaultLoop *runloop.Loop
	Logger      core.Logger
	EventBus    core.EventBus
}

// RunLoopOperation is a cancellable asynchronous operation whose work runs on
// a run loop. It implements core.Task so it can be submitted to a queue.
type RunLoopOperation struct {
	id          core.OperationID
	kind        string
	work        Work
	defaultLoop *runloop.Loop
	logger      core.Logger
	bus         core.EventBus
	handle      *Handle
	done        chan struct{}

	mu              sync.Mutex
	machine         *fsm.FSM
	ec              ExecutionContext
	submitted       bool
	cancelled       bool
	finishRequested bool
	pendingErr      error
	err             error
	startedAt       time.Time
}

// New creates an operation in the inited state that drives work.
func New(work Work, opts Options) *RunLoopOperation {
	if work == nil {
		panic(&core.ProtocolViolation{OperationID: opts.ID, Reason: "operation created without work"})
	}
	if opts.Kind == "" {
		opts.Kind = "runloop"
	}
	if opts.ID == "" {
		opts.ID = core.OperationID(fmt.Sprintf("%s-%d", opts.Kind, opSequence.Add(1)))
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}

	op := &RunLoopOperation{
		id:          opts.ID,
		kind:        opts.Kind,
		work:        work,
		defaultLoop: opts.DefaultLoop,
		logger:      opts.Logger,
		bus:         opts.EventBus,
		done:        make(chan struct{}),
		machine: fsm.NewFSM(
			core.StateInited.String(),
			fsm.Events{
				{Name: eventStart, Src: []string{core.StateInited.String()}, Dst: core.StateExecuting.String()},
				{Name: eventFinish, Src: []string{core.StateExecuting.String()}, Dst: core.StateFinished.String()},
				{Name: eventAbort, Src: []string{core.StateInited.String()}, Dst: core.StateFinished.String()},
			},
			fsm.Callbacks{},
		),
	}
	op.handle = &Handle{op: op}
	return op
}

// ID returns the operation ID
func (op *RunLoopOperation) ID() core.OperationID {
	return op.id
}

// Kind returns the operation kind
func (op *RunLoopOperation) Kind() string {
	return op.kind
}

// Configure sets the execution context. It must be called before the
// operation is submitted or started; afterwards it panics with a
// *core.ProtocolViolation, since moving an operation to another loop while it
// may be registered with the current one is unsafe.
func (op *RunLoopOperation) Configure(ec ExecutionContext) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.submitted || op.stateLocked() != core.StateInited {
		panic(&core.ProtocolViolation{
			OperationID: op.id,
			Reason:      "execution context configured after submission",
		})
	}
	op.ec = ec.clone()
}

// ExecutionContext returns the configured execution context, which is the
// zero value unless Configure was called.
func (op *RunLoopOperation) ExecutionContext() ExecutionContext {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.ec.clone()
}

// ActualExecutionContext returns the loop and modes the hooks run in: the
// configured loop, or the default loop, and the configured modes, or
// {core.DefaultMode}.
func (op *RunLoopOperation) ActualExecutionContext() ExecutionContext {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.ec.resolve(op.defaultLoop)
}

// IsOnActualExecutionContext reports whether the caller is running on the
// actual execution context loop.
func (op *RunLoopOperation) IsOnActualExecutionContext() bool {
	return op.ActualExecutionContext().IsCurrent()
}

// MarkSubmitted freezes the configuration; queues call it when they accept
// the operation.
func (op *RunLoopOperation) MarkSubmitted() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.submitted = true
}

// IsConfigurable reports whether Configure and other pre-submission setters
// may still be called.
func (op *RunLoopOperation) IsConfigurable() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return !op.submitted && op.stateLocked() == core.StateInited
}

// State returns the current lifecycle state
func (op *RunLoopOperation) State() core.State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.stateLocked()
}

// Err returns the error the operation finished with. It is nil until the
// operation is finished and never changes afterwards.
func (op *RunLoopOperation) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

// IsCancelled reports whether Cancel was called
func (op *RunLoopOperation) IsCancelled() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.cancelled
}

// IsFinished reports whether the operation is finished
func (op *RunLoopOperation) IsFinished() bool {
	return op.State() == core.StateFinished
}

// Done is closed when the operation is finished
func (op *RunLoopOperation) Done() <-chan struct{} {
	return op.done
}

// Wait blocks until the operation finishes or ctx is done, and returns the
// operation error or ctx.Err().
func (op *RunLoopOperation) Wait(ctx context.Context) error {
	select {
	case <-op.done:
		return op.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start moves the operation to executing and schedules OnStart on the actual
// execution context. Starting an operation that was cancelled before it
// started is a no-op; starting it twice is a protocol violation.
func (op *RunLoopOperation) Start() {
	op.mu.Lock()
	if op.stateLocked() == core.StateFinished && op.cancelled && op.startedAt.IsZero() {
		op.mu.Unlock()
		return
	}
	if err := op.machine.Event(context.Background(), eventStart); err != nil {
		op.mu.Unlock()
		panic(&core.ProtocolViolation{OperationID: op.id, Reason: fmt.Sprintf("start: %v", err)})
	}
	op.startedAt = time.Now()
	ec := op.ec.resolve(op.defaultLoop)
	op.mu.Unlock()

	op.logger.Debug().
		Str("op_id", string(op.id)).
		Str("op_kind", op.kind).
		Str("loop", ec.Loop.Name()).
		Msg("operation executing")

	if err := ec.Loop.Perform(ec.Modes, op.startOnContext); err != nil {
		op.abandon(fmt.Errorf("schedule start on %s: %w", ec.Loop, err))
		return
	}
	go op.abandonOnStop(ec.Loop)
}

// abandonOnStop finishes the operation if its loop is stopped first; Stop
// drops whatever the operation still had pending there.
func (op *RunLoopOperation) abandonOnStop(loop *runloop.Loop) {
	select {
	case <-op.done:
	case <-loop.Stopped():
		op.abandon(fmt.Errorf("%s: %w", loop, runloop.ErrLoopStopped))
	}
}

// startOnContext runs on the actual execution context
func (op *RunLoopOperation) startOnContext() {
	op.publish(core.NewOperationStartedEvent(op.id, op.kind))

	if op.IsCancelled() {
		op.finish(core.ErrCancelled)
		return
	}
	op.work.OnStart(op.handle)
}

// Cancel requests cancellation; safe from any goroutine and idempotent.
//
// Before the operation starts it finishes at once with core.ErrCancelled and
// its hooks never run. While executing, cancellation is only recorded here;
// the actual finish(core.ErrCancelled) is posted to the execution context so
// loop resources are only ever torn down from their own loop. If the work
// finishes first, its own result wins.
func (op *RunLoopOperation) Cancel() {
	op.mu.Lock()
	if op.cancelled || op.stateLocked() == core.StateFinished {
		op.mu.Unlock()
		return
	}
	op.cancelled = true
	state := op.stateLocked()

	if state == core.StateInited {
		op.pendingErr = core.ErrCancelled
		op.err = core.ErrCancelled
		if err := op.machine.Event(context.Background(), eventAbort); err != nil {
			op.mu.Unlock()
			panic(&core.ProtocolViolation{OperationID: op.id, Reason: fmt.Sprintf("abort: %v", err)})
		}
		op.mu.Unlock()
		close(op.done)

		op.logger.Debug().
			Str("op_id", string(op.id)).
			Str("op_kind", op.kind).
			Msg("operation cancelled before start")
		op.publish(core.NewOperationCancelledEvent(op.id, op.kind, core.StateInited))
		op.publish(core.NewOperationFinishedEvent(op.id, op.kind, core.ErrCancelled, 0))
		return
	}

	finishRequested := op.finishRequested
	ec := op.ec.resolve(op.defaultLoop)
	op.mu.Unlock()

	op.logger.Debug().
		Str("op_id", string(op.id)).
		Str("op_kind", op.kind).
		Bool("finish_requested", finishRequested).
		Msg("operation cancellation requested")
	op.publish(core.NewOperationCancelledEvent(op.id, op.kind, state))

	if finishRequested {
		return
	}
	if err := ec.Loop.Perform(ec.Modes, func() { op.finish(core.ErrCancelled) }); err != nil {
		op.abandon(core.ErrCancelled)
	}
}

// finish is the finish primitive, reachable through Handle.
func (op *RunLoopOperation) finish(err error) bool {
	if !op.IsOnActualExecutionContext() {
		panic(&core.ProtocolViolation{
			OperationID: op.id,
			Reason:      "finish called off the actual execution context",
		})
	}

	op.mu.Lock()
	if op.finishRequested || op.stateLocked() != core.StateExecuting {
		op.mu.Unlock()
		return false
	}
	op.finishRequested = true
	op.pendingErr = err
	op.mu.Unlock()

	violation := op.callWillFinish()
	op.complete()
	if violation != nil {
		panic(violation)
	}
	return true
}

// callWillFinish runs OnWillFinish. A panicking hook must not leave the
// operation stuck in executing, so ordinary panics are logged and the
// operation still finishes; protocol violations are handed back to be
// re-raised once it has.
func (op *RunLoopOperation) callWillFinish() (violation *core.ProtocolViolation) {
	defer func() {
		if r := recover(); r != nil {
			if pv, ok := r.(*core.ProtocolViolation); ok {
				violation = pv
				return
			}
			op.logger.Error().
				Str("op_id", string(op.id)).
				Interface("panic", r).
				Msg("OnWillFinish panicked")
		}
	}()
	op.work.OnWillFinish(op.handle)
	return nil
}

// complete performs the executing -> finished transition
func (op *RunLoopOperation) complete() {
	op.mu.Lock()
	op.err = op.pendingErr
	if err := op.machine.Event(context.Background(), eventFinish); err != nil {
		op.mu.Unlock()
		panic(&core.ProtocolViolation{OperationID: op.id, Reason: fmt.Sprintf("finish: %v", err)})
	}
	err := op.err
	duration := time.Since(op.startedAt)
	op.mu.Unlock()

	close(op.done)

	event := op.logger.Debug()
	if err != nil && !core.IsCancelled(err) {
		event = op.logger.Warn()
	}
	event.
		Str("op_id", string(op.id)).
		Str("op_kind", op.kind).
		Dur("duration", duration).
		Err(err).
		Msg("operation finished")

	op.publish(core.NewOperationFinishedEvent(op.id, op.kind, err, duration))
}

// abandon finishes an executing operation whose execution context loop can no
// longer run anything. The hooks cannot run; the operation finishes anyway so
// that queues do not wait on it forever.
func (op *RunLoopOperation) abandon(err error) {
	op.mu.Lock()
	if op.finishRequested || op.stateLocked() != core.StateExecuting {
		op.mu.Unlock()
		return
	}
	op.finishRequested = true
	op.pendingErr = err
	op.mu.Unlock()

	op.logger.Warn().
		Str("op_id", string(op.id)).
		Err(err).
		Msg("execution context unavailable, finishing without hooks")
	op.complete()
}

func (op *RunLoopOperation) stateLocked() core.State {
	switch op.machine.Current() {
	case core.StateExecuting.String():
		return core.StateExecuting
	case core.StateFinished.String():
		return core.StateFinished
	default:
		return core.StateInited
	}
}

func (op *RunLoopOperation) publish(event core.Event) {
	if op.bus != nil {
		op.bus.Publish(context.Background(), event)
	}
}
