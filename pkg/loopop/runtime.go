// Package loopop ties the loop, operation, queue and task packages together
// behind a configured Runtime, and provides the zerolog-backed logger and
// operation ID generators they share.
package loopop

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/loopop/pkg/loopop/config"
	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/deletion"
	"github.com/arthur-debert/loopop/pkg/loopop/filesystem"
	"github.com/arthur-debert/loopop/pkg/loopop/gallerycache"
	"github.com/arthur-debert/loopop/pkg/loopop/queue"
	"github.com/arthur-debert/loopop/pkg/loopop/reachability"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// Runtime holds what the operations of one process share: configuration,
// logging, an event bus and the task queue.
type Runtime struct {
	Config *config.Config
	Logger core.Logger
	Bus    *core.MemoryEventBus
	Queue  *queue.Queue
	IDs    IDGenerator

	zlog  zerolog.Logger
	probe *reachability.NetProber
}

// NewRuntime builds a runtime from cfg, logging to w (stderr when nil) at the
// configured level. Operation IDs follow cfg's id_scheme.
func NewRuntime(cfg *config.Config, w io.Writer) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := LogLevelFromString(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	ids, err := NewIDGenerator(cfg.Operations.IDScheme)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Config: cfg,
		IDs:    ids,
		zlog:   NewLogger(w, level),
	}
	r.Logger = NewLoggerAdapter(&r.zlog)
	r.Bus = core.NewMemoryEventBus(r.Logger)
	r.Queue = queue.New(queue.Options{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		Logger:        r.Logger,
		EventBus:      r.Bus,
	})
	r.probe = reachability.NewNetProber(reachability.ProberOptions{
		Timeout:  cfg.Reachability.Timeout,
		CacheTTL: cfg.Reachability.CacheTTL,
		Logger:   r.Logger,
	})

	r.Logger.Debug().
		Str("log_level", level.String()).
		Int("max_concurrent", cfg.Queue.MaxConcurrent).
		Str("id_scheme", cfg.Operations.IDScheme).
		Msg("runtime ready")
	return r, nil
}

// DeleteTask creates a batch delete of paths on fsys (the OS filesystem
// when nil)
func (r *Runtime) DeleteTask(paths []string, fsys filesystem.FileSystem, observer deletion.Observer) *deletion.Task {
	subject := ""
	if len(paths) > 0 {
		subject = paths[0]
	}
	return deletion.NewTask(paths, deletion.Options{
		ID:       r.IDs(deletion.Kind, subject),
		FS:       fsys,
		Logger:   r.Logger,
		EventBus: r.Bus,
		Observer: observer,
	})
}

// Reachability creates an operation watching host (the configured host when
// empty) whose hooks run on loop (runloop.Main() when nil). onChange may be
// nil.
func (r *Runtime) Reachability(host string, loop *runloop.Loop, onChange func(reachability.Flags)) *reachability.Operation {
	if host == "" {
		host = r.Config.Reachability.Host
	}
	return reachability.New(host, reachability.Options{
		ID:             r.IDs(reachability.Kind, host),
		Prober:         r.probe,
		Interval:       r.Config.Reachability.Interval,
		ProbeTimeout:   r.Config.Reachability.Timeout,
		OnFlagsChanged: onChange,
		DefaultLoop:    loop,
		Logger:         r.Logger,
		EventBus:       r.Bus,
	})
}

// OpenCache opens the configured gallery cache
func (r *Runtime) OpenCache() (*gallerycache.Cache, error) {
	root, err := r.Config.CacheRoot()
	if err != nil {
		return nil, err
	}
	return gallerycache.Open(root, gallerycache.Options{Logger: r.Logger})
}

// Close waits for queued tasks and releases the queue workers
func (r *Runtime) Close() {
	r.Queue.Close()
}
