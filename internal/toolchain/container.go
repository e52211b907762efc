// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/uuid"

	"github.com/droidpack/droidpack/internal/container"
)

const (
	// DefaultImage is the build image used by the container runner.
	DefaultImage = "docker.io/kivy/buildozer:latest"

	pullAttempts = 3
	pullBackoff  = 2 * time.Second
	removeGrace  = 30 * time.Second
)

// ContainerRunner executes invocations inside a build image. Every mounted
// host directory appears at the same path inside the container, so paths
// in commands and environment variables need no translation.
type ContainerRunner struct {
	engine container.Engine
	image  string
	// User is passed to the engine, for example "1000:1000".
	User string
}

// NewContainerRunner validates image and returns a runner using engine.
func NewContainerRunner(engine container.Engine, image string) (*ContainerRunner, error) {
	if image == "" {
		image = DefaultImage
	}
	if _, err := name.ParseReference(image); err != nil {
		return nil, fmt.Errorf("invalid toolchain image %q: %w", image, err)
	}
	r := &ContainerRunner{engine: engine, image: image}
	if uid := os.Getuid(); uid > 0 && engine.Name() == string(container.EngineTypeDocker) {
		r.User = strconv.Itoa(uid) + ":" + strconv.Itoa(os.Getgid())
	}
	return r, nil
}

// Name returns the runner name.
func (r *ContainerRunner) Name() string { return "container" }

// Image returns the image reference.
func (r *ContainerRunner) Image() string { return r.image }

// EnsureImage pulls the image when it is not present locally, retrying
// transient registry failures.
func (r *ContainerRunner) EnsureImage(ctx context.Context, out io.Writer) error {
	ok, err := r.engine.ImageExists(ctx, r.image)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return container.RetryWithBackoff(ctx, pullAttempts, pullBackoff, func(int) (bool, error) {
		err := r.engine.Pull(ctx, r.image, out)
		return container.IsTransientError(err), err
	})
}

// Run executes inv in a fresh container that is removed when it exits. On
// cancellation the container is force-removed so it does not outlive the build.
func (r *ContainerRunner) Run(ctx context.Context, inv *Invocation) *Result {
	argv := inv.Argv
	if inv.Script != "" {
		argv = []string{"/bin/sh", "-c", inv.Script}
	}
	if len(argv) == 0 {
		return &Result{ExitCode: 1, Error: fmt.Errorf("invocation has neither a command nor a script")}
	}

	volumes := make([]container.VolumeMount, 0, len(inv.Mounts))
	for _, dir := range inv.Mounts {
		volumes = append(volumes, container.VolumeMount{HostPath: dir, ContainerPath: dir})
	}

	cname := fmt.Sprintf("droidpack-%s-%s-%s", inv.Arch.KeySuffix(), inv.Stage, uuid.NewString()[:8])
	res, err := r.engine.Run(ctx, container.RunOptions{
		Image:   r.image,
		Command: argv,
		WorkDir: inv.Dir,
		Env:     EnvToMap(inv.Env),
		Volumes: volumes,
		Name:    cname,
		Remove:  true,
		User:    r.User,
		Stdout:  inv.Stdout,
		Stderr:  inv.Stderr,
	})
	if ctx.Err() != nil {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeGrace)
		defer cancel()
		_ = r.engine.Remove(rmCtx, cname, true)
		return &Result{ExitCode: -1, Error: ctx.Err()}
	}
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}
	return &Result{ExitCode: res.ExitCode, Error: res.Error}
}
