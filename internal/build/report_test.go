// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/droidpack/droidpack/pkg/abi"
)

func TestReportExitCode(t *testing.T) {
	t.Parallel()

	packaged := func(arch abi.Arch) *Artifact { return &Artifact{Arch: arch, Status: StatusPackaged} }
	cached := func(arch abi.Arch) *Artifact { return &Artifact{Arch: arch, Status: StatusCached} }
	failed := func(arch abi.Arch, stage string, preBuild bool) *Artifact {
		a := &Artifact{Arch: arch}
		a.failWith(stage, preBuild, errors.New("boom"))
		return a
	}

	tests := []struct {
		name      string
		artifacts []*Artifact
		want      int
	}{
		{"no architectures", nil, ExitPreBuild},
		{"all packaged", []*Artifact{packaged(abi.ARM64), cached(abi.ARMv7)}, ExitOK},
		{"partial", []*Artifact{packaged(abi.ARM64), failed(abi.ARMv7, FailedBundle, true)}, ExitPartial},
		{"partial after toolchain failure", []*Artifact{cached(abi.ARM64), failed(abi.ARMv7, "link", false)}, ExitPartial},
		{"all rejected before build", []*Artifact{failed(abi.ARM64, FailedBundle, true), failed(abi.ARMv7, FailedBundle, true)}, ExitPreBuild},
		{"all failed", []*Artifact{failed(abi.ARM64, FailedBundle, true), failed(abi.ARMv7, FailedTimeout, false)}, ExitFailed},
		{"all cancelled", []*Artifact{failed(abi.ARM64, FailedCancelled, false)}, ExitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &Report{Artifacts: tt.artifacts}
			if got := r.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReportWriteAndRead(t *testing.T) {
	t.Parallel()

	failure := &Artifact{Arch: abi.ARMv7, Log: "/out/scorereader-1.0-armeabi-v7a.log"}
	failure.failWith("link", false, errors.New("armeabi-v7a link stage exited with code 2"))
	r := &Report{
		ID:        "3f8a",
		Manifest:  "abcd",
		OutputDir: "/out",
		Started:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Artifacts: []*Artifact{
			{Arch: abi.ARM64, Status: StatusPackaged, Path: "/out/scorereader-1.0-arm64-v8a.apk", Size: 42, Stages: []StageTiming{{Stage: "link", Skipped: true}}},
			failure,
		},
	}

	path := filepath.Join(t.TempDir(), "report.yaml")
	if err := r.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	got, err := ReadReport(path)
	if err != nil {
		t.Fatal(err)
	}

	if got.ExitCode() != ExitPartial || !got.Started.Equal(r.Started) {
		t.Errorf("read report = %+v", got)
	}
	v7, ok := got.Artifact(abi.ARMv7)
	if !ok || v7.FailedStage != "link" || v7.Error != failure.Error {
		t.Errorf("armv7 = %+v", v7)
	}
	if a, _ := got.Artifact(abi.ARM64); len(a.Stages) != 1 || !a.Stages[0].Skipped {
		t.Errorf("arm64 stages = %+v", a.Stages)
	}
}
