// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/bundle"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/container"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/internal/resolve"
	"github.com/droidpack/droidpack/internal/toolchain"
	"github.com/droidpack/droidpack/pkg/manifest"
)

// formatErrorForDisplay formats an error for user display. ActionableErrors
// use their Format method; verbose mode shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// explain turns a pre-build error into an ActionableError linked to the
// troubleshooting page of its class. Errors that already are actionable
// pass through.
func explain(err error, manifests []string) error {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}
	resource := strings.Join(manifests, ", ")
	if resource == "" {
		resource = manifest.DefaultFileName
	}
	ctx := issue.NewErrorContext().WithResource(resource).Wrap(err)

	var (
		verr   *manifest.ValidationError
		perr   *manifest.ParseError
		rerr   *resolve.ResolutionError
		aerr   *bundle.AssetError
		engErr *container.EngineNotAvailableError
	)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !errors.As(err, &aerr):
		ctx.WithOperation("load manifest").
			WithIssue(issue.ManifestNotFoundId).
			WithSuggestion("Run droidpack from the application directory or pass --manifest")
	case errors.As(err, &perr):
		ctx.WithOperation("parse manifest").WithIssue(issue.ManifestInvalidId)
	case errors.As(err, &verr) && environmentOnly(verr):
		ctx.WithOperation("locate the Android toolchain").
			WithIssue(issue.SDKRootMissingId).
			WithSuggestions("Export ANDROIDSDK and ANDROIDNDK", "Or set android.sdk_path and android.ndk_path in [app]")
	case errors.As(err, &verr):
		ctx.WithOperation("validate manifest").WithIssue(issue.ManifestInvalidId)
	case errors.As(err, &rerr):
		ctx.WithOperation("resolve requirements").WithIssue(issue.RequirementUnavailableId)
	case errors.As(err, &aerr) && aerr.Arch == "":
		ctx.WithOperation("stage application sources").
			WithSuggestion("Create " + bundle.EntryPoint + " in the source.dir of [app]")
	case errors.As(err, &aerr):
		ctx.WithOperation("stage native libraries").WithIssue(issue.NativeLibraryMissingId)
	case errors.As(err, &engErr):
		ctx.WithOperation("select a container engine").WithIssue(issue.ContainerEngineNotFoundId)
	case errors.Is(err, exec.ErrNotFound):
		ctx.WithOperation("locate the toolchain").WithIssue(issue.ToolchainNotFoundId)
	default:
		ctx.WithOperation("prepare build")
	}
	return ctx.BuildError()
}

// issueForArtifact returns the troubleshooting page for a failed
// architecture, or zero.
func issueForArtifact(a *build.Artifact) issue.Id {
	err := a.Err()
	var terr *toolchain.ToolchainError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bundle.ErrAsset):
		return issue.NativeLibraryMissingId
	case errors.Is(err, toolchain.ErrTimeout):
		return issue.BuildTimedOutId
	case errors.Is(err, exec.ErrNotFound):
		return issue.ToolchainNotFoundId
	case errors.As(err, &terr) && terr.ExitCode == 127:
		return issue.ToolchainNotFoundId
	}
	return 0
}

func environmentOnly(verr *manifest.ValidationError) bool {
	return len(verr.Fields) > 0 && !slices.ContainsFunc(verr.Fields, func(f manifest.FieldError) bool {
		return f.Section != build.SectionEnvironment
	})
}

// glamourStyle picks the rendering style for troubleshooting pages.
func glamourStyle(scheme config.ColorScheme, tty bool) string {
	switch {
	case !tty:
		return "notty"
	case scheme == config.ColorSchemeLight:
		return "light"
	default:
		return "dark"
	}
}

// renderError writes err and, when it links one, its troubleshooting page.
func (a *App) renderError(err error, scheme config.ColorScheme) {
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.verbose))
	if page, ok := issue.IssueOf(err); ok {
		a.renderIssue(page, scheme)
	}
}

func (a *App) renderIssue(page *issue.Issue, scheme config.ColorScheme) {
	rendered, err := page.Render(glamourStyle(scheme, isTerminal(a.stderr)))
	if err != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// renderDiagnostics prints manifest warnings.
func renderDiagnostics(w io.Writer, diags []manifest.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(w, WarningStyle.Render("warning: ")+d.String())
	}
}

// renderSummary prints one line per architecture, install hints for the
// produced packages and the total duration.
func renderSummary(w io.Writer, r *build.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Build summary"))
	for _, art := range r.Artifacts {
		switch {
		case art.OK():
			fmt.Fprintf(w, "  %s %-12s %s (%s)\n",
				SuccessStyle.Render("✓"), art.Arch, CmdStyle.Render(art.Path), formatMB(art.Size))
			if art.Status == build.StatusCached {
				fmt.Fprintf(w, "    %s\n", VerboseStyle.Render("reused from cache"))
			}
		default:
			when := ""
			if art.PreBuild {
				when = " " + WarningStyle.Render("before build")
			}
			fmt.Fprintf(w, "  %s %-12s failed(%s)%s: %s\n",
				ErrorStyle.Render("✗"), art.Arch, art.FailedStage, when, art.Error)
			if art.Log != "" && !art.PreBuild {
				fmt.Fprintf(w, "    %s %s\n", SubtitleStyle.Render("log:"), art.Log)
			}
		}
	}

	if ok := r.Succeeded(); len(ok) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, SubtitleStyle.Render("Install on a connected device:"))
		for _, art := range ok {
			fmt.Fprintf(w, "  %s\n", CmdStyle.Render("adb install -r "+art.Path))
		}
	}
	fmt.Fprintf(w, "\n%s %s\n", SubtitleStyle.Render("Total time:"), r.Duration.Round(time.Millisecond))
}

// formatMB renders a size in megabytes with two decimals.
func formatMB(size int64) string {
	return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
}
