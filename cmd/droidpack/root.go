// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for droidpack.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "droidpack",
		Short: "Declarative Android packaging for Kivy applications",
		Long: TitleStyle.Render("droidpack") + SubtitleStyle.Render(" - Declarative Android packaging for Kivy applications") + `

droidpack reads a buildozer.spec manifest, resolves the Python
requirements for every target architecture, bundles prebuilt native
libraries and drives python-for-android once per architecture.

` + SubtitleStyle.Render("Examples:") + `
  droidpack doctor                         Check build prerequisites
  droidpack validate                       Check the manifest without building
  droidpack build                          Build every architecture
  droidpack build --arch arm64-v8a         Build one architecture
  droidpack install --report r.yaml        Install on a connected device
  droidpack build -m buildozer.spec -m release.toml --profile release`,
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.cfgFile, "config", "", "config file (default is $HOME/.config/droidpack/config.cue)")
	flags.StringArrayVarP(&app.manifests, "manifest", "m", nil, "manifest fragment, repeatable, merged in order (default buildozer.spec)")
	flags.StringVar(&app.profile, "profile", "", "manifest profile to apply, as in [app@<profile>] sections")

	rootCmd.AddCommand(
		newBuildCommand(app),
		newValidateCommand(app),
		newPlanCommand(app),
		newDoctorCommand(app),
		newCleanCommand(app),
		newPublishCommand(app),
		newInstallCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// handleError prints err unless it is an ExitError whose failure the
// command already rendered.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}
