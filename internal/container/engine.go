// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// EngineTypePodman selects the Podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the Docker CLI.
	EngineTypeDocker EngineType = "docker"
)

// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
var ErrEngineNotAvailable = errors.New("container engine not available")

type (
	// Engine defines the container operations the toolchain runner needs.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is usable on this host.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// Run runs a command in a new container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// Remove removes a container by name or id.
		Remove(ctx context.Context, name string, force bool) error
		// ImageExists checks if an image is present locally.
		ImageExists(ctx context.Context, image string) (bool, error)
		// Pull fetches an image from its registry.
		Pull(ctx context.Context, image string, out io.Writer) error
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run.
		Image string
		// Command is the command to run.
		Command []string
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env contains environment variables.
		Env map[string]string
		// Volumes are the bind mounts.
		Volumes []VolumeMount
		// Name is the container name, used to remove it on cancellation.
		Name string
		// Remove automatically removes the container after exit.
		Remove bool
		// User is passed as --user when set.
		User string
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// Name is the container name.
		Name string
		// ExitCode is the exit code of the contained command.
		ExitCode int
		// Error is set when the engine itself failed to run the container.
		Error error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// EngineNotAvailableError is returned when no requested engine can be used.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// ParseEngineType converts a configuration value into an EngineType.
func ParseEngineType(s string) (EngineType, error) {
	switch t := EngineType(s); t {
	case EngineTypePodman, EngineTypeDocker:
		return t, nil
	default:
		return "", fmt.Errorf("unknown container engine type: %q (valid: podman, docker)", s)
	}
}

// NewEngine creates a container engine of the preferred type, falling back to
// the other type when the preferred one is unavailable.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	var first, second Engine
	switch preferredType {
	case EngineTypePodman:
		first, second = NewPodmanEngine(opts...), NewDockerEngine(opts...)
	case EngineTypeDocker:
		first, second = NewDockerEngine(opts...), NewPodmanEngine(opts...)
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}

	if first.Available() {
		return first, nil
	}
	if second.Available() {
		return second, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: string(preferredType),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", first.Name(), second.Name()),
	}
}

// AutoDetectEngine returns the first available engine, trying Podman first.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	engine, err := NewEngine(EngineTypePodman, opts...)
	if err != nil {
		return nil, &EngineNotAvailableError{
			Engine: "any",
			Reason: "no container engine (podman or docker) is available on this system",
		}
	}
	return engine, nil
}
