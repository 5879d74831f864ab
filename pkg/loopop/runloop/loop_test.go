package runloop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

func TestLoop_PerformRunsInOrderOnLoop(t *testing.T) {
	l := runloop.New("test")
	var got []int
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Perform(nil, func() {
			assert.True(t, l.IsCurrent())
			got = append(got, i)
		}))
	}

	assert.False(t, l.IsCurrent())
	assert.True(t, l.RunOnce())
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.False(t, l.RunOnce(), "sources run once")
}

func TestLoop_ModesFilterSources(t *testing.T) {
	l := runloop.New("modes")
	var got []string
	record := func(s string) func() { return func() { got = append(got, s) } }

	require.NoError(t, l.Perform([]core.Mode{"tracking"}, record("tracking")))
	require.NoError(t, l.Perform(nil, record("default")))
	require.NoError(t, l.Perform([]core.Mode{core.CommonModes}, record("common")))
	require.NoError(t, l.Perform([]core.Mode{"tracking", core.DefaultMode}, record("both")))

	l.RunOnce(core.DefaultMode)
	assert.Equal(t, []string{"default", "common", "both"}, got)

	got = nil
	l.RunOnce("tracking")
	assert.Equal(t, []string{"tracking"}, got)
}

func TestLoop_Timers(t *testing.T) {
	t.Run("fires after delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		l := runloop.Spawn(ctx, "timers", nil)
		defer l.Stop()

		fired := make(chan time.Time, 1)
		start := time.Now()
		_, err := l.AfterFunc(nil, 20*time.Millisecond, func() {
			assert.True(t, l.IsCurrent())
			fired <- time.Now()
		})
		require.NoError(t, err)

		select {
		case at := <-fired:
			assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
		case <-time.After(5 * time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("stop before firing", func(t *testing.T) {
		l := runloop.New("timers")
		timer, err := l.AfterFunc(nil, 0, func() { t.Error("stopped timer fired") })
		require.NoError(t, err)

		assert.True(t, timer.Stop())
		assert.False(t, timer.Stop())
		assert.False(t, l.RunOnce())
	})

	t.Run("stop after firing", func(t *testing.T) {
		l := runloop.New("timers")
		timer, err := l.AfterFunc(nil, 0, func() {})
		require.NoError(t, err)

		assert.True(t, l.RunOnce())
		assert.False(t, timer.Stop())
	})

	t.Run("due timer waits for its mode", func(t *testing.T) {
		l := runloop.New("timers")
		var fired bool
		_, err := l.AfterFunc([]core.Mode{"tracking"}, 0, func() { fired = true })
		require.NoError(t, err)

		assert.False(t, l.RunOnce(core.DefaultMode))
		assert.False(t, fired)
		assert.True(t, l.RunOnce("tracking"))
		assert.True(t, fired)
	})
}

func TestLoop_RunStopsOnStopAndContext(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		l := runloop.New("stop")
		errCh := make(chan error, 1)
		go func() { errCh <- l.Run(context.Background()) }()

		require.Eventually(t, l.IsRunning, time.Second, time.Millisecond)
		l.Stop()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after Stop")
		}

		assert.ErrorIs(t, l.Perform(nil, func() {}), runloop.ErrLoopStopped)
		assert.ErrorIs(t, l.Run(context.Background()), runloop.ErrLoopStopped)
		_, err := l.AfterFunc(nil, time.Second, func() {})
		assert.ErrorIs(t, err, runloop.ErrLoopStopped)
	})

	t.Run("context", func(t *testing.T) {
		l := runloop.New("ctx")
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
		assert.False(t, l.IsRunning())
	})
}

func TestLoop_SingleOwner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := runloop.Spawn(ctx, "owned", nil)
	defer l.Stop()

	assert.ErrorIs(t, l.Run(ctx), runloop.ErrLoopBusy)
	assert.False(t, l.RunOnce())
}

func TestSpawn_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := runloop.Spawn(ctx, "spawned", nil)
	require.NoError(t, l.Perform(nil, func() {}))

	cancel()
	select {
	case <-l.Stopped():
	case <-time.After(5 * time.Second):
		t.Fatal("spawned loop not stopped after its context ended")
	}
	assert.ErrorIs(t, l.Perform(nil, func() {}), runloop.ErrLoopStopped)
}

func TestLoop_NestedRun(t *testing.T) {
	l := runloop.New("nested")
	var order []string

	require.NoError(t, l.Perform(nil, func() {
		order = append(order, "outer")
		inner, cancel := context.WithCancel(context.Background())
		require.NoError(t, l.Perform([]core.Mode{"modal"}, func() {
			order = append(order, "modal")
			cancel()
		}))
		assert.ErrorIs(t, l.RunIn(inner, "modal"), context.Canceled)
		assert.True(t, l.IsCurrent(), "outer pass still owns the loop")
	}))

	l.RunOnce()
	assert.Equal(t, []string{"outer", "modal"}, order)
	assert.False(t, l.IsRunning())
}

func TestLoop_PanicsAreContained(t *testing.T) {
	l := runloop.New("panics")
	var ran bool
	require.NoError(t, l.Perform(nil, func() { panic("boom") }))
	require.NoError(t, l.Perform(nil, func() { ran = true }))

	assert.NotPanics(t, func() { l.RunOnce() })
	assert.True(t, ran)

	require.NoError(t, l.Perform(nil, func() {
		panic(&core.ProtocolViolation{Reason: "misuse"})
	}))
	assert.Panics(t, func() { l.RunOnce() }, "protocol violations must not be swallowed")
}

func TestLoop_ConcurrentPerform(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := runloop.Spawn(ctx, "concurrent", nil)
	defer l.Stop()

	const n = 500
	var (
		wg    sync.WaitGroup
		count int
		done  = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Perform(nil, func() {
				count++
				if count == n {
					close(done)
				}
			}))
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not all performed sources ran")
	}
}

func TestNormalizeModes(t *testing.T) {
	assert.Equal(t, []core.Mode{core.DefaultMode}, runloop.NormalizeModes(nil))
	assert.Equal(t, []core.Mode{core.DefaultMode}, runloop.NormalizeModes([]core.Mode{""}))
	assert.Equal(t, []core.Mode{"a", "b"}, runloop.NormalizeModes([]core.Mode{"a", "b", "a"}))
}

func TestMain_IsSingleton(t *testing.T) {
	assert.Same(t, runloop.Main(), runloop.Main())
	assert.Equal(t, "main", runloop.Main().Name())
}
