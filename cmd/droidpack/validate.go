// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/resolve"
)

// prepareFlags are shared by validate and plan.
type prepareFlags struct {
	archs     []string
	output    string
	verifyVCS bool
}

func (f *prepareFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.archs, "arch", "a", nil, "architectures to check (default android.archs)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory (default [buildozer] bin_dir or ./bin)")
	cmd.Flags().BoolVar(&f.verifyVCS, "verify-vcs", false, "check VCS requirement refs against their remotes")
}

func newValidateCommand(app *App) *cobra.Command {
	flags := &prepareFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the manifest and resolve requirements without building",
		Long: `Parse, merge and validate the manifest, locate the Android SDK and NDK
and resolve every requirement for every target architecture.

No toolchain is invoked and nothing is written to disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := app.prepare(cmd, flags)
			if err != nil {
				return err
			}
			renderResolution(app.stdout, plan.Resolution)
			fmt.Fprintln(app.stdout, SuccessStyle.Render(fmt.Sprintf("Manifest is valid for %d architecture(s).", len(plan.Targets))))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// prepare loads the configuration and runs the pre-build pipeline. Errors
// are rendered here and returned as a silent ExitError.
func (a *App) prepare(cmd *cobra.Command, flags *prepareFlags) (*build.Plan, error) {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		a.renderError(err, config.ColorSchemeAuto)
		return nil, &ExitError{Code: build.ExitPreBuild}
	}

	out := cfg.Build.OutputDir
	if flags.output != "" {
		out = flags.output
	}
	driver := build.New(build.Options{
		Manifests: a.manifestPaths(),
		Profile:   a.profile,
		Archs:     flags.archs,
		OutputDir: out,
		CacheDir:  cfg.CacheDir,
		VerifyVCS: flags.verifyVCS,
		LookupEnv: a.LookupEnv,
		Binary:    cfg.Toolchain.Binary,
		Logger:    a.logger(),
	})
	plan, err := driver.Prepare(ctx)
	renderDiagnostics(a.stderr, driver.Diagnostics())
	if err != nil {
		a.renderError(explain(err, a.manifests), cfg.UI.ColorScheme)
		return nil, &ExitError{Code: build.ExitPreBuild}
	}
	return plan, nil
}

// renderResolution prints one line per requirement with its status on
// every architecture.
func renderResolution(w io.Writer, r *resolve.Report) {
	if r == nil || len(r.Entries) == 0 {
		return
	}
	fmt.Fprintln(w, TitleStyle.Render("Requirements"))
	for _, e := range r.Entries {
		name := e.Requirement.String()
		if e.Transitive {
			name += VerboseStyle.Render(" (via " + e.RequiredBy + ")")
		}
		statuses := make([]string, 0, len(e.Archs))
		for _, as := range e.Archs {
			statuses = append(statuses, fmt.Sprintf("%s=%s", as.Arch, statusLabel(as)))
		}
		fmt.Fprintf(w, "  %-28s %s\n", name, strings.Join(statuses, " "))
	}
	if len(r.BuildOrder) > 0 {
		fmt.Fprintf(w, "  %s %s\n", SubtitleStyle.Render("recipe build order:"), strings.Join(r.BuildOrder, " → "))
	}
	fmt.Fprintln(w)
}

func statusLabel(as resolve.ArchStatus) string {
	switch as.Status {
	case resolve.StatusResolved:
		label := string(as.Source)
		if label == "" {
			label = string(as.Status)
		}
		return SuccessStyle.Render(label)
	case resolve.StatusNeedsNativeBuild:
		return CmdStyle.Render("recipe")
	default:
		return ErrorStyle.Render(string(as.Status))
	}
}
