// Package reachability provides an operation that runs until a host's
// reachability flags reach a target value.
//
// The operation polls from a run loop timer. Each probe runs on its own
// goroutine and its result is posted back to the loop, so the timer and the
// probe cancellation are only ever touched from the loop.
package reachability

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/operation"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// Kind labels reachability operations in logs and events
const Kind = "reachability"

const (
	// DefaultInterval is the delay between probes
	DefaultInterval = time.Second
	// DefaultProbeTimeout bounds a single probe
	DefaultProbeTimeout = 5 * time.Second
)

// Options configures an Operation
type Options struct {
	ID     core.OperationID
	Prober Prober
	// Interval between the end of a probe and the start of the next one
	Interval time.Duration
	// ProbeTimeout bounds one probe
	ProbeTimeout time.Duration
	// OnFlagsChanged, if set, is called on the execution context whenever
	// a probe reports different flags
	OnFlagsChanged func(Flags)
	DefaultLoop    *runloop.Loop
	Logger         core.Logger
	EventBus       core.EventBus
}

// Operation is a run loop operation that finishes when
// Flags()&TargetMask() == TargetValue(). The default target is
// FlagReachable.
type Operation struct {
	*operation.RunLoopOperation

	host         string
	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration
	onChange     func(Flags)
	logger       core.Logger

	mu     sync.Mutex
	mask   Flags
	value  Flags
	flags  Flags
	probes int

	// confined to the execution context
	timer       *runloop.Timer
	cancelProbe context.CancelFunc
	done        bool
}

// New creates an operation watching host. A nil Prober means a NetProber
// with default options.
func New(host string, opts Options) *Operation {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}
	if opts.Prober == nil {
		opts.Prober = NewNetProber(ProberOptions{Logger: opts.Logger})
	}
	o := &Operation{
		host:         host,
		prober:       opts.Prober,
		interval:     lo.Ternary(opts.Interval > 0, opts.Interval, DefaultInterval),
		probeTimeout: lo.Ternary(opts.ProbeTimeout > 0, opts.ProbeTimeout, DefaultProbeTimeout),
		onChange:     opts.OnFlagsChanged,
		logger:       opts.Logger,
		mask:         FlagReachable,
		value:        FlagReachable,
	}
	o.RunLoopOperation = operation.New(&work{o: o}, operation.Options{
		ID:          opts.ID,
		Kind:        Kind,
		DefaultLoop: opts.DefaultLoop,
		Logger:      opts.Logger,
		EventBus:    opts.EventBus,
	})
	return o
}

// Host returns the watched host
func (o *Operation) Host() string {
	return o.host
}

// SetTargetMask sets the flags that are compared. It panics with a
// *core.ProtocolViolation once the operation is submitted.
func (o *Operation) SetTargetMask(mask Flags) {
	o.mustBeConfigurable("target mask")
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mask = mask
}

// SetTargetValue sets the value the masked flags must equal. It panics with
// a *core.ProtocolViolation once the operation is submitted.
func (o *Operation) SetTargetValue(value Flags) {
	o.mustBeConfigurable("target value")
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = value
}

// TargetMask returns the target mask
func (o *Operation) TargetMask() Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mask
}

// TargetValue returns the target value
func (o *Operation) TargetValue() Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Flags returns the flags of the most recent probe. It changes on the
// execution context.
func (o *Operation) Flags() Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flags
}

// Probes returns how many probe results were received
func (o *Operation) Probes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.probes
}

func (o *Operation) mustBeConfigurable(what string) {
	if !o.IsConfigurable() {
		panic(&core.ProtocolViolation{
			OperationID: o.ID(),
			Reason:      what + " set after submission",
		})
	}
}

type work struct {
	o *Operation
}

func (w *work) OnStart(h *operation.Handle) {
	w.o.logger.Debug().
		Str("op_id", string(h.ID())).
		Str("host", w.o.host).
		Str("target_mask", w.o.TargetMask().String()).
		Str("target_value", w.o.TargetValue().String()).
		Msg("watching reachability")
	w.o.probe(h)
}

func (w *work) OnWillFinish(h *operation.Handle) {
	o := w.o
	o.done = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.cancelProbe != nil {
		o.cancelProbe()
		o.cancelProbe = nil
	}
}

// probe runs on the execution context and starts one probe off-loop
func (o *Operation) probe(h *operation.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), o.probeTimeout)
	o.cancelProbe = cancel

	go func() {
		flags, err := o.prober.Probe(ctx, o.host)
		if perr := h.Perform(func() { o.handleResult(ctx, h, flags, err) }); perr != nil {
			cancel()
		}
	}()
}

// handleResult runs on the execution context
func (o *Operation) handleResult(ctx context.Context, h *operation.Handle, flags Flags, err error) {
	if o.done {
		return
	}
	if err != nil {
		o.logger.Debug().
			Str("host", o.host).
			Bool("timed_out", ctx.Err() != nil).
			Err(err).
			Msg("probe failed")
		flags = 0
	}
	o.cancelProbe()
	o.cancelProbe = nil

	o.mu.Lock()
	changed := o.probes == 0 || flags != o.flags
	o.flags = flags
	o.probes++
	mask, value := o.mask, o.value
	o.mu.Unlock()

	if changed {
		o.logger.Debug().
			Str("host", o.host).
			Str("flags", flags.String()).
			Msg("reachability changed")
		if o.onChange != nil {
			o.onChange(flags)
		}
	}

	if flags.Matches(mask, value) {
		h.Finish(nil)
		return
	}

	timer, terr := h.AfterFunc(o.interval, func() {
		o.timer = nil
		o.probe(h)
	})
	if terr != nil {
		h.Fail(terr)
		return
	}
	o.timer = timer
}
