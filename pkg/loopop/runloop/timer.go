package runloop

import (
	"container/heap"
	"time"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

// Timer is a one-shot timer source registered with a Loop.
type Timer struct {
	loop  *Loop
	when  time.Time
	modes []core.Mode
	fn    func()
	index int
	fired bool
}

// AfterFunc registers fn to run on the loop once d has elapsed and the loop is
// running in one of modes. A non-positive d fires on the next pass.
func (l *Loop) AfterFunc(modes []core.Mode, d time.Duration, fn func()) (*Timer, error) {
	t := &Timer{
		loop:  l,
		when:  time.Now().Add(d),
		modes: NormalizeModes(modes),
		fn:    fn,
		index: -1,
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil, ErrLoopStopped
	}
	heap.Push(&l.timers, t)
	l.mu.Unlock()

	l.signal()
	return t, nil
}

// Stop unregisters the timer. It reports whether the timer was still pending;
// false means it already fired, was already stopped, or the loop is stopped.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || t.fired || t.index < 0 {
		return false
	}
	heap.Remove(&l.timers, t.index)
	return true
}

// When returns the time the timer is due
func (t *Timer) When() time.Time {
	return t.when
}

type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
