// Package runloop provides a cooperative event loop bound to whichever
// goroutine runs it. Work reaches the loop as sources (performed callbacks and
// timers), each registered for a set of modes; a running loop only services
// the sources registered for the modes it is running in.
//
// A Loop is the unit of execution-context identity: code can ask IsCurrent to
// learn whether it is running on the loop, and anything registered with the
// loop is only ever touched from the loop goroutine.
package runloop

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

var (
	// ErrLoopStopped is returned when using a loop after Stop
	ErrLoopStopped = errors.New("run loop stopped")
	// ErrLoopBusy is returned by Run when another goroutine is already running the loop
	ErrLoopBusy = errors.New("run loop is already running on another goroutine")
)

// maxIdleWait caps how long an idle loop sleeps before re-checking its state
const maxIdleWait = 10 * time.Second

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the logger used for loop diagnostics
func WithLogger(logger core.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type performSource struct {
	modes []core.Mode
	fn    func()
}

// Loop is a cooperative event loop. The zero value is not usable; use New.
type Loop struct {
	name   string
	logger core.Logger

	mu      sync.Mutex
	pending []performSource
	timers  timerHeap
	stopped bool

	wake     chan struct{}
	owner    atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a loop. The loop does nothing until some goroutine runs it.
func New(name string, opts ...Option) *Loop {
	l := &Loop{
		name:   name,
		logger: core.NopLogger(),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the name the loop was created with
func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) String() string {
	return fmt.Sprintf("runloop(%s)", l.name)
}

// IsCurrent reports whether the calling goroutine is the one running the loop.
func (l *Loop) IsCurrent() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// IsRunning reports whether some goroutine is currently running the loop.
func (l *Loop) IsRunning() bool {
	return l.owner.Load() != 0
}

// Perform schedules fn to run on the loop the next time it runs in one of
// modes. An empty modes slice means DefaultMode. Safe for concurrent use.
func (l *Loop) Perform(modes []core.Mode, fn func()) error {
	if fn == nil {
		return nil
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.pending = append(l.pending, performSource{modes: NormalizeModes(modes), fn: fn})
	l.mu.Unlock()

	l.signal()
	return nil
}

// Run services DefaultMode sources until ctx is done or the loop is stopped.
func (l *Loop) Run(ctx context.Context) error {
	return l.RunIn(ctx, core.DefaultMode)
}

// RunIn services sources registered for any of modes until ctx is done or the
// loop is stopped. It returns nil after Stop and ctx.Err() on cancellation.
//
// A callback already running on the loop may call RunIn again to run a
// nested pass, e.g. in a private mode; the outer pass resumes when it returns.
func (l *Loop) RunIn(ctx context.Context, modes ...core.Mode) error {
	modes = NormalizeModes(modes)

	nested := l.IsCurrent()
	if !nested {
		if !l.owner.CompareAndSwap(0, goroutineID()) {
			return ErrLoopBusy
		}
		defer l.owner.Store(0)
	}

	if l.isStopped() {
		return ErrLoopStopped
	}

	l.logger.Debug().
		Str("loop", l.name).
		Strs("modes", modeStrings(modes)).
		Bool("nested", nested).
		Msg("run loop started")

	idle := time.NewTimer(maxIdleWait)
	defer idle.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.isStopped() {
			return nil
		}

		if l.runOnce(modes) {
			continue
		}

		wait := l.nextDeadline(modes)
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopCh:
			return nil
		case <-l.wake:
		case <-idle.C:
		}
	}
}

// RunOnce services every source that is ready for modes without blocking and
// reports whether anything ran. It must be called on the goroutine that owns
// the loop, or while no goroutine owns it.
func (l *Loop) RunOnce(modes ...core.Mode) bool {
	modes = NormalizeModes(modes)

	if !l.IsCurrent() {
		if !l.owner.CompareAndSwap(0, goroutineID()) {
			return false
		}
		defer l.owner.Store(0)
	}
	return l.runOnce(modes)
}

// Stop terminates all runs of the loop. Sources still pending are dropped and
// later Perform calls fail with ErrLoopStopped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		dropped := len(l.pending) + len(l.timers)
		l.pending = nil
		l.timers = nil
		l.mu.Unlock()

		close(l.stopCh)

		l.logger.Debug().
			Str("loop", l.name).
			Int("dropped_sources", dropped).
			Msg("run loop stopped")
	})
}

// Stopped is closed once Stop has been called
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopCh
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// runOnce takes the ready sources for modes out of the loop and runs them.
// Sources for other modes keep their relative order.
func (l *Loop) runOnce(modes []core.Mode) bool {
	l.mu.Lock()
	var ready []func()
	kept := l.pending[:0]
	for _, src := range l.pending {
		if matches(src.modes, modes) {
			ready = append(ready, src.fn)
		} else {
			kept = append(kept, src)
		}
	}
	for i := len(kept); i < len(l.pending); i++ {
		l.pending[i] = performSource{}
	}
	l.pending = kept

	now := time.Now()
	var skipped []*Timer
	for l.timers.Len() > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*Timer)
		if matches(t.modes, modes) {
			t.fired = true
			ready = append(ready, t.fn)
		} else {
			skipped = append(skipped, t)
		}
	}
	for _, t := range skipped {
		heap.Push(&l.timers, t)
	}
	l.mu.Unlock()

	for _, fn := range ready {
		l.safeExecute(fn)
	}
	return len(ready) > 0
}

// nextDeadline returns how long the loop may sleep before a timer for modes is due
func (l *Loop) nextDeadline(modes []core.Mode) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	wait := maxIdleWait
	now := time.Now()
	for _, t := range l.timers {
		if !matches(t.modes, modes) {
			continue
		}
		if d := t.when.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if pv, ok := r.(*core.ProtocolViolation); ok {
				panic(pv)
			}
			l.logger.Error().
				Str("loop", l.name).
				Interface("panic", r).
				Msg("run loop callback panicked")
		}
	}()
	fn()
}

// NormalizeModes returns modes without duplicates, or {DefaultMode} if empty.
func NormalizeModes(modes []core.Mode) []core.Mode {
	modes = lo.Filter(modes, func(m core.Mode, _ int) bool { return m != "" })
	if len(modes) == 0 {
		return []core.Mode{core.DefaultMode}
	}
	return lo.Uniq(modes)
}

func matches(sourceModes, runModes []core.Mode) bool {
	if lo.Contains(sourceModes, core.CommonModes) {
		return true
	}
	for _, m := range runModes {
		if lo.Contains(sourceModes, m) {
			return true
		}
	}
	return false
}

func modeStrings(modes []core.Mode) []string {
	return lo.Map(modes, func(m core.Mode, _ int) string { return string(m) })
}

// goroutineID returns the current goroutine's ID, parsed from the stack header
// "goroutine N [...]".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
