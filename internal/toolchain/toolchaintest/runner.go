// SPDX-License-Identifier: MPL-2.0

// Package toolchaintest provides a scriptable fake toolchain runner.
package toolchaintest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/droidpack/droidpack/internal/toolchain"
	"github.com/droidpack/droidpack/pkg/abi"
)

type (
	// Call is one recorded invocation.
	Call struct {
		Arch   abi.Arch
		Stage  toolchain.Stage
		Argv   []string
		Script string
		Env    map[string]string
	}

	stageKey struct {
		arch  abi.Arch
		stage toolchain.Stage
	}

	// Runner records every invocation it receives. Unless told otherwise
	// each invocation succeeds, and the package stage writes a deterministic
	// package to $DROIDPACK_PACKAGE_PATH.
	Runner struct {
		mu    sync.Mutex
		calls []Call
		fail  map[stageKey]int
		block map[stageKey]bool
		// Started receives the architecture of every blocked invocation once
		// it is waiting. It is created by BlockOn.
		Started chan abi.Arch
	}
)

// New returns a Runner where every invocation succeeds.
func New() *Runner {
	return &Runner{
		fail:  make(map[stageKey]int),
		block: make(map[stageKey]bool),
	}
}

// Name returns the runner name.
func (r *Runner) Name() string { return "fake" }

// FailOn makes the stage of arch exit with code.
func (r *Runner) FailOn(arch abi.Arch, stage toolchain.Stage, code int) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[stageKey{arch, stage}] = code
	return r
}

// BlockOn makes the stage of arch wait until its context is done.
func (r *Runner) BlockOn(arch abi.Arch, stage toolchain.Stage) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.block[stageKey{arch, stage}] = true
	if r.Started == nil {
		r.Started = make(chan abi.Arch, 16)
	}
	return r
}

// Run implements toolchain.Runner.
func (r *Runner) Run(ctx context.Context, inv *toolchain.Invocation) *toolchain.Result {
	key := stageKey{inv.Arch, inv.Stage}
	call := Call{
		Arch:   inv.Arch,
		Stage:  inv.Stage,
		Argv:   append([]string(nil), inv.Argv...),
		Script: inv.Script,
		Env:    toolchain.EnvToMap(inv.Env),
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	code, failing := r.fail[key]
	blocking := r.block[key]
	started := r.Started
	r.mu.Unlock()

	if inv.Stdout != nil {
		fmt.Fprintf(inv.Stdout, "fake %s %s\n", inv.Stage, inv.Arch)
	}

	if blocking {
		started <- inv.Arch
		<-ctx.Done()
		return &toolchain.Result{ExitCode: -1, Error: ctx.Err()}
	}
	if err := ctx.Err(); err != nil {
		return &toolchain.Result{ExitCode: -1, Error: err}
	}
	if failing {
		return &toolchain.Result{ExitCode: code}
	}

	if inv.Stage == toolchain.StagePackage {
		if path := call.Env[toolchain.EnvPackagePath]; path != "" {
			if err := writePackage(path, inv.Arch, call.Env[toolchain.EnvPackageID]); err != nil {
				return &toolchain.Result{ExitCode: 1, Error: err}
			}
		}
	}
	return &toolchain.Result{}
}

// Calls returns a copy of every recorded call.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsFor returns the recorded calls of arch in order.
func (r *Runner) CallsFor(arch abi.Arch) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Arch == arch {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of recorded calls.
func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func writePackage(path string, arch abi.Arch, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("package "+id+" for "+string(arch)+"\n"), 0o644)
}
