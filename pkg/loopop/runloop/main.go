package runloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

var (
	mainOnce sync.Once
	mainLoop *Loop
)

// Main returns the process main loop, creating it on first use. It is the
// documented default execution context for operations that do not name one.
// Nothing runs it implicitly: the program's main goroutine (or whoever owns
// the UI/event side of the process) must call Main().Run.
func Main() *Loop {
	mainOnce.Do(func() {
		mainLoop = New("main")
	})
	return mainLoop
}

// Spawn starts a new loop on its own goroutine, running in modes (DefaultMode
// if none), and returns once the loop is being serviced. The loop runs until
// ctx is done or Stop is called; either way it ends stopped, since nothing
// else will ever service it.
func Spawn(ctx context.Context, name string, modes []core.Mode, opts ...Option) *Loop {
	l := New(name, opts...)

	ready := make(chan struct{})
	if err := l.Perform([]core.Mode{core.CommonModes}, func() { close(ready) }); err != nil {
		// a loop fresh from New is never stopped
		panic(fmt.Sprintf("runloop: spawn %s: %v", name, err))
	}

	go func() {
		defer l.Stop()
		if err := l.RunIn(ctx, modes...); err != nil && ctx.Err() == nil {
			l.logger.Error().Str("loop", name).Err(err).Msg("spawned run loop exited")
		}
	}()

	select {
	case <-ready:
	case <-ctx.Done():
	}
	return l
}
