// SPDX-License-Identifier: MPL-2.0

package build

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/droidpack/droidpack/pkg/abi"
)

// Exit codes of a build.
const (
	ExitOK       = 0
	ExitPreBuild = 1
	ExitPartial  = 2
	ExitFailed   = 3
)

const (
	// StatusPackaged means the toolchain produced the package in this run.
	StatusPackaged Status = "packaged"
	// StatusCached means an unchanged package from an earlier run was reused.
	StatusCached Status = "cached"
	// StatusFailed means no package was produced.
	StatusFailed Status = "failed"
)

type (
	// Status is the outcome of one architecture.
	Status string

	// StageTiming is the wall time one stage took.
	StageTiming struct {
		Stage    string        `yaml:"stage"`
		Duration time.Duration `yaml:"duration"`
		Skipped  bool          `yaml:"skipped,omitempty"`
	}

	// Artifact is the outcome of one architecture: a package or a failure.
	Artifact struct {
		Arch   abi.Arch `yaml:"arch"`
		Status Status   `yaml:"status"`
		Path   string   `yaml:"path,omitempty"`
		Log    string   `yaml:"log,omitempty"`
		Digest string   `yaml:"digest,omitempty"`
		Size   int64    `yaml:"size,omitempty"`
		// FailedStage is the stage label of a failure: a toolchain stage,
		// bundle, timeout or cancelled.
		FailedStage string `yaml:"failed_stage,omitempty"`
		// PreBuild marks failures detected before any toolchain invocation.
		PreBuild bool          `yaml:"pre_build,omitempty"`
		Error    string        `yaml:"error,omitempty"`
		Duration time.Duration `yaml:"duration"`
		Stages   []StageTiming `yaml:"stages,omitempty"`

		err error
	}

	// Report aggregates the artifacts of one build.
	Report struct {
		ID        string        `yaml:"id"`
		Manifest  string        `yaml:"manifest"`
		OutputDir string        `yaml:"output_dir"`
		Started   time.Time     `yaml:"started"`
		Duration  time.Duration `yaml:"duration"`
		Artifacts []*Artifact   `yaml:"artifacts"`
	}
)

// Err returns the error that failed the architecture, or nil.
func (a *Artifact) Err() error { return a.err }

// OK reports whether the architecture has a package.
func (a *Artifact) OK() bool {
	return a.Status == StatusPackaged || a.Status == StatusCached
}

func (a *Artifact) failWith(stage string, preBuild bool, err error) {
	a.Status = StatusFailed
	a.FailedStage = stage
	a.PreBuild = preBuild
	a.err = err
	if err != nil {
		a.Error = err.Error()
	}
}

// Succeeded returns the artifacts that have a package.
func (r *Report) Succeeded() []*Artifact {
	var out []*Artifact
	for _, a := range r.Artifacts {
		if a.OK() {
			out = append(out, a)
		}
	}
	return out
}

// Failed returns the artifacts without a package.
func (r *Report) Failed() []*Artifact {
	var out []*Artifact
	for _, a := range r.Artifacts {
		if !a.OK() {
			out = append(out, a)
		}
	}
	return out
}

// Artifact returns the outcome of arch.
func (r *Report) Artifact(arch abi.Arch) (*Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Arch == arch {
			return a, true
		}
	}
	return nil, false
}

// ExitCode maps the report onto the process exit status: 0 when every
// architecture has a package, 2 when some do, 1 when none does and every
// failure happened before the toolchain ran, 3 otherwise.
func (r *Report) ExitCode() int {
	ok, failed := len(r.Succeeded()), r.Failed()
	switch {
	case len(r.Artifacts) == 0:
		return ExitPreBuild
	case len(failed) == 0:
		return ExitOK
	case ok > 0:
		return ExitPartial
	}
	for _, a := range failed {
		if !a.PreBuild {
			return ExitFailed
		}
	}
	return ExitPreBuild
}

// Encode writes the report as YAML to w.
func (r *Report) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode build report: %w", err)
	}
	return enc.Close()
}

// WriteFile stores the report as YAML.
func (r *Report) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write build report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse build report %s: %w", path, err)
	}
	return &r, nil
}
