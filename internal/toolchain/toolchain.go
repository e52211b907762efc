// SPDX-License-Identifier: MPL-2.0

// Package toolchain turns one architecture's build into the external
// commands of its compile, link and package stages, and runs them on the
// host, inside a container, or in the built-in shell interpreter.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/droidpack/droidpack/internal/matrix"
	"github.com/droidpack/droidpack/pkg/abi"
)

const (
	// StageCompile builds the Python distribution and native recipes.
	StageCompile Stage = "compile"
	// StageLink places the staged native libraries into the distribution.
	StageLink Stage = "link"
	// StagePackage produces the installable package.
	StagePackage Stage = "package"
)

var (
	// ErrToolchain is the sentinel error wrapped by ToolchainError.
	ErrToolchain = errors.New("toolchain invocation failed")

	// ErrTimeout is wrapped by a ToolchainError whose invocation timed out.
	ErrTimeout = errors.New("toolchain invocation timed out")
)

type (
	// Stage is one step of an architecture pipeline.
	Stage string

	// Invocation is one command to run for one stage of one architecture.
	// Exactly one of Argv and Script is set.
	Invocation struct {
		Arch  abi.Arch
		Stage Stage
		// Argv is executed directly.
		Argv []string
		// Script is POSIX shell source.
		Script string
		// Dir is the working directory.
		Dir string
		// Env is layered over the process environment for host runners and
		// is the complete environment inside a container.
		Env []matrix.EnvVar
		// Mounts are host directories a container must see at the same path.
		Mounts []string
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result is the outcome of an Invocation.
	Result struct {
		// ExitCode is the exit status of the command.
		ExitCode int
		// Error is set when the command could not be run at all.
		Error error
	}

	// Runner executes invocations. Implementations must honour ctx: when it
	// is done the command is stopped and Run returns promptly.
	Runner interface {
		Name() string
		Run(ctx context.Context, inv *Invocation) *Result
	}

	// CommandBuilder maps a stage of a Job onto an Invocation. A nil
	// Invocation with a nil error skips the stage.
	CommandBuilder interface {
		Command(stage Stage, job *Job) (*Invocation, error)
	}

	// App holds the manifest fields the package stage needs.
	App struct {
		Title       string `yaml:"title"`
		Name        string `yaml:"name"`
		Domain      string `yaml:"domain"`
		Version     string `yaml:"version"`
		Orientation string `yaml:"orientation"`
		Fullscreen  bool   `yaml:"fullscreen"`
		Bootstrap   string `yaml:"bootstrap"`
		// Artifact is apk or aab.
		Artifact string `yaml:"artifact"`
	}

	// Job is everything the stages of one architecture work with.
	Job struct {
		Target matrix.Target
		App    App
		// Requirements are the requirement specs handed to the toolchain.
		Requirements []string
		// Wheels are prebuilt wheel paths selected for this architecture.
		Wheels []string
		// AppDir holds the staged application sources.
		AppDir string
		// WorkDir is the per-architecture scratch directory.
		WorkDir string
		// StateDir is the cached toolchain state of this architecture.
		StateDir string
		// LibsDir holds the staged native libraries.
		LibsDir string
		// Libs are the staged library file names.
		Libs []string
		// PackagePath is where the package stage should leave the artifact.
		PackagePath string
		SDKDir      string
		NDKDir      string
	}

	// ToolchainError reports a failed or timed out stage of one architecture.
	ToolchainError struct {
		Arch     abi.Arch
		Phase    Stage
		ExitCode int
		Timeout  bool
		Log      string
		Err      error
	}
)

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageCompile, StageLink, StagePackage}
}

// String returns the stage name.
func (s Stage) String() string { return string(s) }

// Failed reports whether the invocation did not succeed.
func (r *Result) Failed() bool {
	return r.Error != nil || r.ExitCode != 0
}

// PackageID returns the Android application id.
func (a App) PackageID() string {
	return a.Domain + "." + a.Name
}

// Arch returns the architecture of the job.
func (j *Job) Arch() abi.Arch { return j.Target.Arch }

// DistName names the toolchain distribution of the job.
func (j *Job) DistName() string {
	return j.App.Name + "_" + j.Target.Arch.KeySuffix()
}

// Mounts lists the host directories the job reads or writes.
func (j *Job) Mounts() []string {
	dirs := []string{j.WorkDir, j.AppDir, j.StateDir, j.LibsDir, j.SDKDir, j.NDKDir}
	for _, w := range j.Wheels {
		dirs = append(dirs, filepath.Dir(w))
	}
	var out []string
	for _, d := range dirs {
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// Error implements the error interface.
func (e *ToolchainError) Error() string {
	var msg string
	switch {
	case e.Timeout:
		msg = fmt.Sprintf("%s %s stage timed out", e.Arch, e.Phase)
	case e.Err != nil:
		msg = fmt.Sprintf("%s %s stage failed: %v", e.Arch, e.Phase, e.Err)
	default:
		msg = fmt.Sprintf("%s %s stage exited with status %d", e.Arch, e.Phase, e.ExitCode)
	}
	if e.Log != "" {
		msg += " (log: " + e.Log + ")"
	}
	return msg
}

// Unwrap returns ErrToolchain, ErrTimeout when the stage timed out, and the cause.
func (e *ToolchainError) Unwrap() []error {
	errs := []error{ErrToolchain}
	if e.Timeout {
		errs = append(errs, ErrTimeout)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Stage names the pipeline stage that produced the error.
func (e *ToolchainError) Stage() string { return string(e.Phase) }
