// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/container"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/internal/toolchain"
)

// newEngine is swapped in tests.
var newEngine = func(t container.EngineType) (container.Engine, error) {
	return container.NewEngine(t)
}

// selectRunner builds the toolchain runner for mode. The container runner
// pulls its image before returning so a missing image fails before any
// architecture starts.
func selectRunner(ctx context.Context, cfg *config.Config, mode config.RuntimeMode, pullOut io.Writer) (toolchain.Runner, error) {
	switch mode {
	case config.RuntimeNative, "":
		return &toolchain.NativeRunner{}, nil
	case config.RuntimeVirtual:
		return &toolchain.VirtualRunner{}, nil
	case config.RuntimeContainer:
		engineType, err := container.ParseEngineType(string(cfg.ContainerEngine))
		if err != nil {
			return nil, err
		}
		engine, err := newEngine(engineType)
		if err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("select a container engine").
				WithResource(string(engineType)).
				WithIssue(issue.ContainerEngineNotFoundId).
				WithSuggestion("Install podman or docker, or use --runtime native").
				Wrap(err).
				BuildError()
		}
		runner, err := toolchain.NewContainerRunner(engine, cfg.Toolchain.Image)
		if err != nil {
			return nil, err
		}
		if err := runner.EnsureImage(ctx, pullOut); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("pull toolchain image").
				WithResource(runner.Image()).
				Wrap(err).
				BuildError()
		}
		return runner, nil
	default:
		return nil, fmt.Errorf("%w: %q (valid: native, virtual, container)", config.ErrInvalidRuntimeMode, mode)
	}
}
