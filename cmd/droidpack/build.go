// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/issue"
)

// buildFlags are the flags of `droidpack build`.
type buildFlags struct {
	archs       []string
	output      string
	jobs        int
	timeout     time.Duration
	clean       bool
	report      string
	metricsFile string
	runtime     string
	verifyVCS   bool
}

func newBuildCommand(app *App) *cobra.Command {
	flags := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a package for every target architecture",
		Long: `Build one Android package per target architecture.

The manifest is parsed, merged and validated, every requirement is
resolved for every architecture and the native libraries are staged
before any toolchain runs. Architectures then build in parallel.

Exit codes:
  0  every architecture was packaged
  1  the manifest or environment is invalid; no toolchain ran
  2  some architectures failed while at least one was packaged
  3  every architecture failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, app, flags)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&flags.archs, "arch", "a", nil, "architectures to build (default android.archs)")
	f.StringVarP(&flags.output, "output", "o", "", "output directory (default [buildozer] bin_dir or ./bin)")
	f.IntVarP(&flags.jobs, "jobs", "j", 0, "architectures built concurrently (default one per CPU)")
	f.DurationVar(&flags.timeout, "timeout", 0, "time limit for the toolchain stages of one architecture (default 1h)")
	f.BoolVar(&flags.clean, "clean", false, "discard cached toolchain state before building")
	f.StringVar(&flags.report, "report", "", "write the build report as YAML to this file")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus text metrics to this file")
	f.StringVar(&flags.runtime, "runtime", "", "toolchain runtime: native, virtual or container")
	f.BoolVar(&flags.verifyVCS, "verify-vcs", false, "check VCS requirement refs against their remotes")
	return cmd
}

func runBuild(cmd *cobra.Command, app *App, flags *buildFlags) error {
	ctx := cmd.Context()
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		app.renderError(err, config.ColorSchemeAuto)
		return &ExitError{Code: build.ExitPreBuild}
	}
	scheme := cfg.UI.ColorScheme
	logger := app.logger()

	mode := cfg.Toolchain.Runtime
	if cmd.Flags().Changed("runtime") {
		mode = config.RuntimeMode(flags.runtime)
	}
	runner, err := selectRunner(ctx, cfg, mode, app.stderr)
	if err != nil {
		app.renderError(err, scheme)
		return &ExitError{Code: build.ExitPreBuild}
	}

	opts := build.Options{
		Manifests: app.manifestPaths(),
		Profile:   app.profile,
		Archs:     flags.archs,
		OutputDir: cfg.Build.OutputDir,
		CacheDir:  cfg.CacheDir,
		Jobs:      cfg.Build.Jobs,
		Timeout:   cfg.Build.Timeout,
		Clean:     flags.clean,
		VerifyVCS: flags.verifyVCS,
		LookupEnv: app.LookupEnv,
		Runner:    runner,
		Binary:    cfg.Toolchain.Binary,
		Logger:    logger,
	}
	if flags.output != "" {
		opts.OutputDir = flags.output
	}
	if cmd.Flags().Changed("jobs") {
		opts.Jobs = flags.jobs
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = flags.timeout
	}
	if opts.CacheDir == "" {
		if opts.CacheDir, err = config.DefaultCacheDir(); err != nil {
			app.renderError(err, scheme)
			return &ExitError{Code: build.ExitPreBuild}
		}
	}

	prog := newProgress(app.stderr, logger)
	opts.Observer = prog
	driver := build.New(opts)

	plan, err := driver.Prepare(ctx)
	renderDiagnostics(app.stderr, driver.Diagnostics())
	if err != nil {
		app.renderError(explain(err, app.manifests), scheme)
		return &ExitError{Code: build.ExitPreBuild}
	}
	logger.Info("building", "app", plan.App.PackageID(), "archs", plan.Archs(), "runtime", runner.Name())

	prog.start(len(plan.Targets))
	report, err := driver.Execute(ctx, plan)
	prog.finish()
	if err != nil {
		app.renderError(explain(err, app.manifests), scheme)
		return &ExitError{Code: build.ExitPreBuild}
	}

	renderSummary(app.stdout, report)
	rendered := map[issue.Id]bool{}
	for _, art := range report.Failed() {
		if id := issueForArtifact(art); id != 0 && !rendered[id] {
			rendered[id] = true
			app.renderIssue(issue.Get(id), scheme)
		}
	}

	// The packages exist at this point, so a failed write never changes
	// the exit code.
	if flags.report != "" {
		if err := report.WriteFile(flags.report); err != nil {
			logger.Error("could not write build report", "path", flags.report, "err", err)
		}
	}
	if flags.metricsFile != "" {
		metrics := build.NewMetrics()
		metrics.Observe(report)
		if err := metrics.WriteFile(flags.metricsFile); err != nil {
			logger.Error("could not write build metrics", "path", flags.metricsFile, "err", err)
		}
	}

	if code := report.ExitCode(); code != build.ExitOK {
		return &ExitError{Code: code}
	}
	fmt.Fprintln(app.stdout, SuccessStyle.Render("All architectures packaged."))
	return nil
}
