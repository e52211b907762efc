// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"

	"github.com/droidpack/droidpack/internal/config"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reads configuration, output streams and the
	// environment through it.
	App struct {
		Config    config.Provider
		LookupEnv func(string) (string, bool)
		LookPath  func(string) (string, error)
		stdout    io.Writer
		stderr    io.Writer

		// Global flag values, bound by the root command.
		verbose   bool
		cfgFile   string
		manifests []string
		profile   string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    config.Provider
		LookupEnv func(string) (string, bool)
		LookPath  func(string) (string, error)
		Stdout    io.Writer
		Stderr    io.Writer
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.LookupEnv == nil {
		deps.LookupEnv = os.LookupEnv
	}
	if deps.LookPath == nil {
		deps.LookPath = exec.LookPath
	}
	return &App{
		Config:    deps.Config,
		LookupEnv: deps.LookupEnv,
		LookPath:  deps.LookPath,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}
}

// loadConfig loads the tool configuration honoring --config. ui.verbose
// turns on verbose output unless --verbose was already given.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.cfgFile,
		LookupEnv:      a.LookupEnv,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UI.Verbose {
		a.verbose = true
	}
	return cfg, nil
}

// logger returns the terminal logger. Toolchain output never goes through
// it; it lands in the per-architecture build logs.
func (a *App) logger() *log.Logger {
	logger := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "droidpack",
		ReportTimestamp: a.verbose,
	})
	if a.verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// manifestPaths returns the --manifest values, or nil to let the driver
// fall back to ./buildozer.spec.
func (a *App) manifestPaths() []string {
	if len(a.manifests) == 0 {
		return nil
	}
	return a.manifests
}
