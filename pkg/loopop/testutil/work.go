// Package testutil holds helpers shared by the loopop package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/operation"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// RecordingWork is an operation.Work that records every hook call and
// whether it ran on the actual execution context.
type RecordingWork struct {
	// OnStartFn, when set, runs inside OnStart after the call is recorded
	OnStartFn func(h *operation.Handle)

	mu                  sync.Mutex
	starts              int
	willFinishes        int
	startOnContext      []bool
	willFinishOnContext []bool
	willFinishErrs      []error
	willFinishStates    []core.State
}

func (w *RecordingWork) OnStart(h *operation.Handle) {
	w.mu.Lock()
	w.starts++
	w.startOnContext = append(w.startOnContext, h.IsOnActualExecutionContext())
	w.mu.Unlock()

	if w.OnStartFn != nil {
		w.OnStartFn(h)
	}
}

func (w *RecordingWork) OnWillFinish(h *operation.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.willFinishes++
	w.willFinishOnContext = append(w.willFinishOnContext, h.IsOnActualExecutionContext())
	w.willFinishErrs = append(w.willFinishErrs, h.Err())
	w.willFinishStates = append(w.willFinishStates, h.Operation().State())
}

// Starts returns how many times OnStart ran
func (w *RecordingWork) Starts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.starts
}

// WillFinishes returns how many times OnWillFinish ran
func (w *RecordingWork) WillFinishes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.willFinishes
}

// AllOnContext reports whether every recorded hook call ran on the actual
// execution context
func (w *RecordingWork) AllOnContext() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ok := range append(append([]bool(nil), w.startOnContext...), w.willFinishOnContext...) {
		if !ok {
			return false
		}
	}
	return true
}

// WillFinishErrs returns the pending error seen by each OnWillFinish call
func (w *RecordingWork) WillFinishErrs() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.willFinishErrs...)
}

// WillFinishStates returns the operation state observed inside each
// OnWillFinish call
func (w *RecordingWork) WillFinishStates() []core.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.State(nil), w.willFinishStates...)
}

// SpawnLoop starts a loop on its own goroutine for the duration of the test.
func SpawnLoop(t *testing.T, name string, modes ...core.Mode) *runloop.Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := runloop.Spawn(ctx, name, modes)
	t.Cleanup(func() {
		l.Stop()
		cancel()
	})
	return l
}

// WaitDone waits for ch to close, failing the test after timeout.
func WaitDone(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v", timeout)
	}
}

// MakeTree creates files (content = their path) and directories under root.
// Entries ending in "/" are directories.
func MakeTree(t *testing.T, root string, entries ...string) {
	t.Helper()
	for _, e := range entries {
		p := filepath.Join(root, filepath.FromSlash(e))
		if e[len(e)-1] == '/' {
			if err := os.MkdirAll(p, 0755); err != nil {
				t.Fatalf("mkdir %s: %v", p, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(e), 0644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

// Exists reports whether path exists (without following a final symlink)
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
