// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/container"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/internal/toolchain"
)

// fakeEngine is a container.Engine that records pulls.
type fakeEngine struct {
	name   string
	images map[string]bool
	pulled []string
}

func (e *fakeEngine) Name() string                               { return e.name }
func (e *fakeEngine) Available() bool                            { return true }
func (e *fakeEngine) Version(context.Context) (string, error)    { return "5.0.0", nil }
func (e *fakeEngine) Remove(context.Context, string, bool) error { return nil }

func (e *fakeEngine) Run(context.Context, container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

func (e *fakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	return e.images[image], nil
}

func (e *fakeEngine) Pull(_ context.Context, image string, _ io.Writer) error {
	e.pulled = append(e.pulled, image)
	return nil
}

// swapEngine replaces newEngine for the rest of the test.
func swapEngine(t *testing.T, fn func(container.EngineType) (container.Engine, error)) {
	t.Helper()
	orig := newEngine
	newEngine = fn
	t.Cleanup(func() { newEngine = orig })
}

func TestSelectRunner(t *testing.T) {
	// Not parallel: mutates the package-level engine constructor.

	engine := &fakeEngine{name: "podman", images: map[string]bool{}}
	var requested container.EngineType
	swapEngine(t, func(et container.EngineType) (container.Engine, error) {
		requested = et
		return engine, nil
	})

	cfg := config.DefaultConfig()
	cfg.ContainerEngine = config.ContainerEnginePodman
	cfg.Toolchain.Image = "ghcr.io/example/p4a:2024.01"

	tests := []struct {
		mode config.RuntimeMode
		want string
	}{
		{"", "native"},
		{config.RuntimeNative, "native"},
		{config.RuntimeVirtual, "virtual"},
		{config.RuntimeContainer, "container"},
	}
	for _, tt := range tests {
		runner, err := selectRunner(t.Context(), cfg, tt.mode, io.Discard)
		if err != nil {
			t.Fatalf("selectRunner(%q) error: %v", tt.mode, err)
		}
		if runner.Name() != tt.want {
			t.Errorf("selectRunner(%q) = %s, want %s", tt.mode, runner.Name(), tt.want)
		}
	}

	if requested != container.EngineTypePodman {
		t.Errorf("requested engine = %q, want podman", requested)
	}
	if len(engine.pulled) != 1 || engine.pulled[0] != cfg.Toolchain.Image {
		t.Errorf("pulled = %v, want [%s]", engine.pulled, cfg.Toolchain.Image)
	}
}

func TestSelectRunnerSkipsPullForLocalImage(t *testing.T) {
	engine := &fakeEngine{name: "docker", images: map[string]bool{config.DefaultImage: true}}
	swapEngine(t, func(container.EngineType) (container.Engine, error) { return engine, nil })

	cfg := config.DefaultConfig()
	runner, err := selectRunner(t.Context(), cfg, config.RuntimeContainer, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cr, ok := runner.(*toolchain.ContainerRunner); !ok || cr.Image() != config.DefaultImage {
		t.Errorf("runner = %#v", runner)
	}
	if len(engine.pulled) != 0 {
		t.Errorf("pulled = %v, want none", engine.pulled)
	}
}

func TestSelectRunnerErrors(t *testing.T) {
	swapEngine(t, func(et container.EngineType) (container.Engine, error) {
		return nil, &container.EngineNotAvailableError{Engine: string(et), Reason: "not installed"}
	})

	cfg := config.DefaultConfig()
	_, err := selectRunner(t.Context(), cfg, config.RuntimeContainer, io.Discard)
	if !errors.Is(err, container.ErrEngineNotAvailable) {
		t.Fatalf("error = %v, want ErrEngineNotAvailable", err)
	}
	if page, ok := issue.IssueOf(err); !ok || page.Id() != issue.ContainerEngineNotFoundId {
		t.Errorf("IssueOf() = %v, %v; want the container engine page", page, ok)
	}

	if _, err := selectRunner(t.Context(), cfg, "qemu", io.Discard); !errors.Is(err, config.ErrInvalidRuntimeMode) {
		t.Errorf("unknown runtime error = %v, want ErrInvalidRuntimeMode", err)
	}

	cfg.Toolchain.Image = "Not A Valid Reference"
	swapEngine(t, func(container.EngineType) (container.Engine, error) { return &fakeEngine{name: "podman"}, nil })
	if _, err := selectRunner(t.Context(), cfg, config.RuntimeContainer, io.Discard); err == nil {
		t.Error("invalid image reference accepted")
	}
}
