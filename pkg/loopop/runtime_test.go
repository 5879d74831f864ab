package loopop_test

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/loopop/pkg/loopop"
	"github.com/arthur-debert/loopop/pkg/loopop/config"
	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/testutil"
)

func newRuntime(t *testing.T, mutate func(*config.Config)) (*loopop.Runtime, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "debug"
	cfg.Cache.Root = filepath.Join(t.TempDir(), "cache")
	cfg.Operations.IDScheme = config.IDSchemeSequence
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	rt, err := loopop.NewRuntime(cfg, &buf)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt, &buf
}

func TestNewRuntime_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "loud"
	_, err := loopop.NewRuntime(cfg, &bytes.Buffer{})
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Queue.MaxConcurrent = 0
	_, err = loopop.NewRuntime(cfg, &bytes.Buffer{})
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Operations.IDScheme = "random"
	_, err = loopop.NewRuntime(cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewRuntime_IDScheme(t *testing.T) {
	rt, _ := newRuntime(t, func(c *config.Config) { c.Operations.IDScheme = config.IDSchemeHash })
	id := string(rt.DeleteTask([]string{"/tmp/a"}, nil, nil).ID())
	assert.Regexp(t, `^recursive-delete-[0-9a-f]{8}-1$`, id)
}

func TestRuntime_DeleteTask(t *testing.T) {
	rt, logs := newRuntime(t, nil)
	root := t.TempDir()
	testutil.MakeTree(t, root, "a/b.txt")

	var finished []core.Event
	rt.Bus.Subscribe(core.EventOperationFinished, core.EventHandlerFunc(func(_ context.Context, e core.Event) error {
		finished = append(finished, e)
		return nil
	}))

	task := rt.DeleteTask([]string{filepath.Join(root, "a")}, nil, nil)
	assert.Equal(t, core.OperationID("recursive-delete-1"), task.ID())
	require.NoError(t, rt.Queue.Submit(task))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Queue.Wait(ctx))

	assert.False(t, testutil.Exists(filepath.Join(root, "a")))
	assert.Len(t, finished, 1)
	assert.Contains(t, logs.String(), "batch delete completed")
}

func TestRuntime_Reachability(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	rt, _ := newRuntime(t, func(c *config.Config) {
		c.Reachability.Host = ln.Addr().String()
		c.Reachability.Interval = 10 * time.Millisecond
	})
	loop := testutil.SpawnLoop(t, "runtime")

	op := rt.Reachability("", loop, nil)
	assert.Equal(t, ln.Addr().String(), op.Host())
	require.NoError(t, rt.Queue.Submit(op))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, op.Wait(ctx))
	assert.NotZero(t, op.Flags()&op.TargetMask())
}

func TestRuntime_OpenCache(t *testing.T) {
	rt, _ := newRuntime(t, nil)
	c, err := rt.OpenCache()
	require.NoError(t, err)
	assert.Equal(t, rt.Config.Cache.Root, c.Layout().Root)
	assert.True(t, testutil.Exists(c.Layout().PhotosDir()))
}
