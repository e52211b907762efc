// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/bundle"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/container"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/internal/resolve"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
)

func TestExplain(t *testing.T) {
	t.Parallel()

	envErr := &manifest.ValidationError{}
	envErr.Add(build.SectionEnvironment, "ANDROIDSDK", manifest.Origin{}, "Android SDK location is not set")
	fieldErr := &manifest.ValidationError{}
	fieldErr.Add(manifest.SectionApp, manifest.KeyMinAPI, manifest.Origin{}, "android.minapi must not exceed android.api")
	mixedErr := &manifest.ValidationError{Fields: append(envErr.Fields, fieldErr.Fields...)}

	tests := []struct {
		name string
		err  error
		want issue.Id
		op   string
	}{
		{"missing manifest", fmt.Errorf("read manifest: %w", fs.ErrNotExist), issue.ManifestNotFoundId, "load manifest"},
		{"parse", &manifest.ParseError{Source: "buildozer.spec", Line: 3, Msg: "bad"}, issue.ManifestInvalidId, "parse manifest"},
		{"environment", envErr, issue.SDKRootMissingId, "locate the Android toolchain"},
		{"validation", fieldErr, issue.ManifestInvalidId, "validate manifest"},
		{"mixed validation", mixedErr, issue.ManifestInvalidId, "validate manifest"},
		{"resolution", &resolve.ResolutionError{Failures: []resolve.Failure{{Requirement: "numpy", Arch: abi.X86, Reason: "unsupported"}}}, issue.RequirementUnavailableId, "resolve requirements"},
		{"native library", &bundle.AssetError{Arch: abi.ARM64, Missing: []string{"libfoo.so"}}, issue.NativeLibraryMissingId, "stage native libraries"},
		{"entry point", &bundle.AssetError{Dir: "/app", Missing: []string{"main.py"}}, 0, "stage application sources"},
		{"engine", &container.EngineNotAvailableError{Engine: "podman", Reason: "not installed"}, issue.ContainerEngineNotFoundId, "select a container engine"},
		{"binary", &exec.Error{Name: "p4a", Err: exec.ErrNotFound}, issue.ToolchainNotFoundId, "locate the toolchain"},
		{"other", errors.New("disk full"), 0, "prepare build"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := explain(tt.err, nil)
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("explain() = %T, want *issue.ActionableError", err)
			}
			if ae.Operation != tt.op {
				t.Errorf("Operation = %q, want %q", ae.Operation, tt.op)
			}
			if ae.Issue != tt.want {
				t.Errorf("Issue = %d, want %d", ae.Issue, tt.want)
			}
			if ae.Resource != manifest.DefaultFileName {
				t.Errorf("Resource = %q, want %q", ae.Resource, manifest.DefaultFileName)
			}
			if !errors.Is(err, tt.err) {
				t.Error("explain() lost the cause")
			}
		})
	}
}

func TestExplainKeepsActionableErrors(t *testing.T) {
	t.Parallel()

	orig := issue.NewErrorContext().WithOperation("pull toolchain image").Wrap(errors.New("timeout")).BuildError()
	if got := explain(orig, []string{"a.spec"}); got != orig {
		t.Errorf("explain() = %v, want the original error", got)
	}
}

func TestGlamourStyle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scheme config.ColorScheme
		tty    bool
		want   string
	}{
		{config.ColorSchemeAuto, false, "notty"},
		{config.ColorSchemeLight, false, "notty"},
		{config.ColorSchemeAuto, true, "dark"},
		{config.ColorSchemeDark, true, "dark"},
		{config.ColorSchemeLight, true, "light"},
	}
	for _, tt := range tests {
		if got := glamourStyle(tt.scheme, tt.tty); got != tt.want {
			t.Errorf("glamourStyle(%q, %v) = %q, want %q", tt.scheme, tt.tty, got, tt.want)
		}
	}
}

func TestFormatMB(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		0:               "0.00 MB",
		1024 * 1024:     "1.00 MB",
		25_690_112:      "24.50 MB",
		3 * 1024 * 1024: "3.00 MB",
	}
	for size, want := range tests {
		if got := formatMB(size); got != want {
			t.Errorf("formatMB(%d) = %q, want %q", size, got, want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	r := &build.Report{
		Duration: 90 * time.Second,
		Artifacts: []*build.Artifact{
			{Arch: abi.ARM64, Status: build.StatusPackaged, Path: "/out/app-1.0-arm64-v8a.apk", Size: 2 * 1024 * 1024},
			{Arch: abi.X86, Status: build.StatusCached, Path: "/out/app-1.0-x86.apk", Size: 1024 * 1024},
			{Arch: abi.ARMv7, Status: build.StatusFailed, FailedStage: "link", Error: "link stage failed", Log: "/out/app-1.0-armeabi-v7a.log"},
			{Arch: abi.X8664, Status: build.StatusFailed, FailedStage: "bundle", PreBuild: true, Error: "missing native libraries", Log: "/out/app-1.0-x86_64.log"},
		},
	}
	var sb strings.Builder
	renderSummary(&sb, r)
	out := sb.String()

	for _, want := range []string{
		"/out/app-1.0-arm64-v8a.apk (2.00 MB)",
		"reused from cache",
		"failed(link): link stage failed",
		"failed(bundle) before build: missing native libraries",
		"log: /out/app-1.0-armeabi-v7a.log",
		"adb install -r /out/app-1.0-arm64-v8a.apk",
		"adb install -r /out/app-1.0-x86.apk",
		"Total time: 1m30s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "adb install -r /out/app-1.0-armeabi-v7a") {
		t.Error("summary suggests installing a failed architecture")
	}
	if strings.Contains(out, "failed(link) before build") || strings.Contains(out, "app-1.0-x86_64.log") {
		t.Error("summary mislabels when an architecture failed")
	}
}
