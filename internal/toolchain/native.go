// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long a cancelled command may keep its output
// pipes open after it has been killed.
const DefaultWaitDelay = 10 * time.Second

// NativeRunner executes invocations as host processes.
type NativeRunner struct {
	// Shell runs scripts; "sh" from PATH when empty.
	Shell string
	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// Name returns the runner name.
func (r *NativeRunner) Name() string { return "native" }

// Run executes inv on the host.
func (r *NativeRunner) Run(ctx context.Context, inv *Invocation) *Result {
	argv, err := r.argv(inv)
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = hostEnv(inv.Env)
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &Result{ExitCode: -1, Error: ctx.Err()}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{ExitCode: exitErr.ExitCode()}
		}
		return &Result{ExitCode: 1, Error: fmt.Errorf("failed to execute %s: %w", argv[0], err)}
	}
	return &Result{}
}

func (r *NativeRunner) argv(inv *Invocation) ([]string, error) {
	if inv.Script == "" {
		if len(inv.Argv) == 0 {
			return nil, errors.New("invocation has neither a command nor a script")
		}
		return inv.Argv, nil
	}
	shell := r.Shell
	if shell == "" {
		path, err := exec.LookPath("sh")
		if err != nil {
			return nil, fmt.Errorf("no POSIX shell found for %s script: %w", inv.Stage, err)
		}
		shell = path
	}
	return []string{shell, "-c", inv.Script}, nil
}
