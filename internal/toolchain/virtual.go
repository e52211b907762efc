// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualRunner interprets invocations with the built-in POSIX shell, so
// stage scripts behave the same on every host. External programs named by
// a script are still executed from PATH.
type VirtualRunner struct {
	// KillTimeout is how long an external program may run after an
	// interrupt before it is killed.
	KillTimeout time.Duration
}

// Name returns the runner name.
func (r *VirtualRunner) Name() string { return "virtual" }

// Run interprets inv.
func (r *VirtualRunner) Run(ctx context.Context, inv *Invocation) *Result {
	src, err := scriptOf(inv)
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(src), string(inv.Stage))
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("failed to parse %s script: %w", inv.Stage, err)}
	}

	killTimeout := r.KillTimeout
	if killTimeout == 0 {
		killTimeout = 2 * time.Second
	}
	runner, err := interp.New(
		interp.Dir(inv.Dir),
		interp.Env(expand.ListEnviron(hostEnv(inv.Env)...)),
		interp.StdIO(nil, inv.Stdout, inv.Stderr),
		interp.ExecHandler(interp.DefaultExecHandler(killTimeout)),
	)
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("failed to create interpreter: %w", err)}
	}

	if err := runner.Run(ctx, prog); err != nil {
		if ctx.Err() != nil {
			return &Result{ExitCode: -1, Error: ctx.Err()}
		}
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &Result{ExitCode: int(status)}
		}
		return &Result{ExitCode: 1, Error: fmt.Errorf("script execution failed: %w", err)}
	}
	return &Result{}
}

// scriptOf returns the shell source of inv, quoting Argv when no script is set.
func scriptOf(inv *Invocation) (string, error) {
	if inv.Script != "" {
		return inv.Script, nil
	}
	if len(inv.Argv) == 0 {
		return "", errors.New("invocation has neither a command nor a script")
	}
	words := make([]string, len(inv.Argv))
	for i, arg := range inv.Argv {
		q, err := syntax.Quote(arg, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote argument %q: %w", arg, err)
		}
		words[i] = q
	}
	return strings.Join(words, " "), nil
}
