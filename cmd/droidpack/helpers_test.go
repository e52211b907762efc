// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/testutil"
)

const scoreReader = `[app]
title = Score Reader
package.name = scorereader
package.domain = org.example
version = 1.0
requirements = python3, kivy
android.archs = arm64-v8a, armeabi-v7a
`

// scripted replaces every p4a stage with a shell script the virtual
// runtime can interpret.
const scripted = `
[toolchain]
compile = echo "compiling $DROIDPACK_ARCH"
link =
package = printf '%s' "$DROIDPACK_PACKAGE_ID $DROIDPACK_ARCH" > "$DROIDPACK_WORK_DIR/out.apk"
`

// staticConfig is a config.Provider returning a fixed configuration.
type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	return &cfg, nil
}

// cliResult captures one in-process run of the CLI.
type cliResult struct {
	stdout string
	stderr string
	err    error
}

// exitCode returns the process exit status the run would produce.
func (r cliResult) exitCode() int {
	var exitErr *ExitError
	switch {
	case r.err == nil:
		return 0
	case errors.As(r.err, &exitErr):
		return exitErr.Code
	default:
		return 1
	}
}

// testConfig returns a configuration using the virtual runtime and a cache
// inside p.
func testConfig(p *testutil.Project) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Toolchain.Runtime = config.RuntimeVirtual
	cfg.CacheDir = p.Cache()
	cfg.Build.Jobs = 2
	return cfg
}

// lookPath finds exactly the named programs.
func lookPath(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
}

// runCLI executes the root command with args against p.
func runCLI(t *testing.T, p *testutil.Project, cfg *config.Config, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config:    staticConfig{cfg: cfg},
		LookupEnv: p.Lookup,
		LookPath:  lookPath("p4a", "java"),
		Stdout:    &stdout,
		Stderr:    &stderr,
	})
	root := NewRootCommand(app)
	root.SilenceErrors = true
	root.SilenceUsage = true
	root.SetArgs(append([]string{"--manifest", p.Manifest()}, args...))
	err := root.ExecuteContext(t.Context())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
