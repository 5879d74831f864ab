package operation

import (
	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// ExecutionContext names the loop and modes an operation's hooks run in.
// The zero value is the default context: the operation's default loop in
// core.DefaultMode.
type ExecutionContext struct {
	Loop  *runloop.Loop
	Modes []core.Mode
}

// IsDefault reports whether no explicit loop is configured
func (ec ExecutionContext) IsDefault() bool {
	return ec.Loop == nil
}

func (ec ExecutionContext) clone() ExecutionContext {
	return ExecutionContext{
		Loop:  ec.Loop,
		Modes: append([]core.Mode(nil), ec.Modes...),
	}
}

// resolve fills in the default loop and modes
func (ec ExecutionContext) resolve(defaultLoop *runloop.Loop) ExecutionContext {
	loop := ec.Loop
	if loop == nil {
		loop = defaultLoop
	}
	if loop == nil {
		loop = runloop.Main()
	}
	return ExecutionContext{
		Loop:  loop,
		Modes: runloop.NormalizeModes(ec.Modes),
	}
}

// IsCurrent reports whether the caller is running on the context's loop
func (ec ExecutionContext) IsCurrent() bool {
	return ec.Loop != nil && ec.Loop.IsCurrent()
}
