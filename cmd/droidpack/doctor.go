// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/bundle"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/container"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/pkg/manifest"
)

// check is the outcome of one prerequisite check. Optional checks never
// fail the command.
type check struct {
	name     string
	detail   string
	ok       bool
	optional bool
	issue    issue.Id
}

func newDoctorCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check build prerequisites",
		Long: `Check everything a build needs: the manifest and the application entry
point, the toolchain for the configured runtime, java and git, and the
Android SDK and NDK roots.

Exits 0 when every required check passes, 1 otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				app.renderError(err, config.ColorSchemeAuto)
				return &ExitError{Code: 1}
			}
			checks := app.doctor(cmd.Context(), cfg)
			failed := renderChecks(app.stdout, checks)
			if failed == nil {
				fmt.Fprintln(app.stdout, SuccessStyle.Render("\nReady to build."))
				return nil
			}
			if failed.issue != 0 {
				app.renderIssue(issue.Get(failed.issue), cfg.UI.ColorScheme)
			}
			return &ExitError{Code: 1}
		},
	}
}

// doctor runs every check in display order.
func (a *App) doctor(ctx context.Context, cfg *config.Config) []check {
	var checks []check

	paths := a.manifestPaths()
	if len(paths) == 0 {
		paths = []string{manifest.DefaultFileName}
	}
	missing := false
	for _, p := range paths {
		c := check{name: "manifest " + p, issue: issue.ManifestNotFoundId}
		if _, err := os.Stat(p); err != nil {
			c.detail = "not found"
			missing = true
		} else {
			c.ok = true
		}
		checks = append(checks, c)
	}

	var loaded *manifest.Loaded
	if !missing {
		var err error
		loaded, err = manifest.Load(paths, manifest.LoadOptions{Profile: a.profile, LookupEnv: a.LookupEnv})
		c := check{name: "manifest is valid", ok: err == nil, issue: issue.ManifestInvalidId}
		var verr *manifest.ValidationError
		if errors.As(err, &verr) {
			c.detail = fmt.Sprintf("%d problem(s); run droidpack validate", len(verr.Fields))
		} else if err != nil {
			c.detail = err.Error()
		}
		checks = append(checks, c)
	}

	if loaded != nil {
		dir := bundle.SourceSpecFrom(loaded.Manifest, loaded.Dir).Dir
		entry := filepath.Join(dir, bundle.EntryPoint)
		c := check{name: bundle.EntryPoint + " in " + dir}
		if _, err := os.Stat(entry); err == nil {
			c.ok = true
		} else {
			c.detail = "missing application entry point"
		}
		checks = append(checks, c)
	}

	checks = append(checks, a.toolchainCheck(ctx, cfg))
	checks = append(checks,
		a.pathCheck("java", false),
		a.pathCheck("git", true),
	)

	if loaded != nil {
		c := check{name: "Android SDK and NDK", issue: issue.SDKRootMissingId}
		sdk, ndk, err := build.ToolchainRoots(loaded, a.LookupEnv)
		if err != nil {
			c.detail = err.Error()
		} else {
			c.ok = true
			c.detail = fmt.Sprintf("sdk %s, ndk %s", sdk, ndk)
		}
		checks = append(checks, c)
	}
	return checks
}

func (a *App) toolchainCheck(ctx context.Context, cfg *config.Config) check {
	if cfg.Toolchain.Runtime != config.RuntimeContainer {
		c := a.pathCheck(cfg.Toolchain.Binary, false)
		c.name = "toolchain " + c.name
		return c
	}

	c := check{name: "container engine " + string(cfg.ContainerEngine), issue: issue.ContainerEngineNotFoundId}
	engineType, err := container.ParseEngineType(string(cfg.ContainerEngine))
	if err != nil {
		c.detail = err.Error()
		return c
	}
	engine, err := newEngine(engineType)
	if err != nil {
		c.detail = err.Error()
		return c
	}
	version, err := engine.Version(ctx)
	if err != nil {
		c.detail = err.Error()
		return c
	}
	c.ok = true
	c.detail = fmt.Sprintf("%s %s", engine.Name(), version)
	return c
}

func (a *App) pathCheck(name string, optional bool) check {
	c := check{name: name + " on PATH", optional: optional, issue: issue.ToolchainNotFoundId}
	path, err := a.LookPath(name)
	if err != nil {
		c.detail = "not found"
		return c
	}
	c.ok = true
	c.detail = path
	return c
}

// renderChecks prints checks and returns the first failed required check.
func renderChecks(w io.Writer, checks []check) *check {
	var failed *check
	fmt.Fprintln(w, TitleStyle.Render("droidpack doctor"))
	for i, c := range checks {
		mark := SuccessStyle.Render("✓")
		switch {
		case c.ok:
		case c.optional:
			mark = WarningStyle.Render("!")
		default:
			mark = ErrorStyle.Render("✗")
			if failed == nil {
				failed = &checks[i]
			}
		}
		line := fmt.Sprintf("  %s %s", mark, c.name)
		if c.detail != "" {
			line += SubtitleStyle.Render(" (" + c.detail + ")")
		}
		fmt.Fprintln(w, line)
	}
	return failed
}
