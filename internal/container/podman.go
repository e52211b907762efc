// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
)

// podmanBinaryNames are tried in order; podman-remote serves hosts that talk
// to a podman machine.
var podmanBinaryNames = []string{"podman", "podman-remote"}

// runFlagsWithValue are the run flags emitted by RunArgs that consume the
// following argument.
var runFlagsWithValue = []string{"--name", "-w", "--user", "-e", "-v"}

// PodmanEngine implements the Engine interface using Podman CLI.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine. Containers run with
// --userns=keep-id so files written into bind mounts keep the invoking
// user's ownership, and mounts get the :z label when SELinux is enforcing.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	all := append([]BaseCLIEngineOption{
		WithName(string(EngineTypePodman)),
		WithVolumeFormatter(selinuxVolumeFormatter(isSELinuxEnabled)),
		WithRunArgsTransformer(makeUsernsKeepIDAdder()),
	}, opts...)
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(findPodmanBinary(), all...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Version}}")
	return cmd.Run() == nil
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ImageExists checks if an image exists.
func (e *PodmanEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "exists", image)
	return err == nil, nil
}

func findPodmanBinary() string {
	for _, name := range podmanBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// makeUsernsKeepIDAdder inserts --userns=keep-id right before the image of a
// run command. Other commands are returned unchanged.
func makeUsernsKeepIDAdder() RunArgsTransformer {
	return func(args []string) []string {
		if len(args) == 0 || args[0] != "run" {
			return args
		}
		i := 1
		for i < len(args) && strings.HasPrefix(args[i], "-") {
			if slices.Contains(runFlagsWithValue, args[i]) {
				i++
			}
			i++
		}
		out := make([]string, 0, len(args)+1)
		out = append(out, args[:i]...)
		out = append(out, "--userns=keep-id")
		return append(out, args[i:]...)
	}
}

func isSELinuxEnabled() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// selinuxVolumeFormatter labels unlabeled mounts with :z when enabled reports true.
func selinuxVolumeFormatter(enabled func() bool) VolumeFormatFunc {
	return func(v VolumeMount) string {
		if v.SELinux == SELinuxLabelNone && enabled() {
			v.SELinux = SELinuxLabelShared
		}
		return v.String()
	}
}
