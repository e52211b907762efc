// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/internal/toolchain"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
)

// launchActivity is the entry activity of every python-for-android package.
const launchActivity = "org.kivy.android.PythonActivity"

// newDeviceRunner runs adb; swapped in tests.
var newDeviceRunner = func() toolchain.Runner { return &toolchain.NativeRunner{} }

type installFlags struct {
	report string
	arch   string
	serial string
	launch bool
	logcat bool
}

func newInstallCommand(app *App) *cobra.Command {
	flags := &installFlags{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a built package on a connected device",
		Long: `Install the package of a build report on a device reachable through adb.

Without --arch the package matching the device's preferred ABI is chosen.
--launch starts the application once installed and --logcat then follows
its Python output until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, app, flags)
		},
	}
	cmd.Flags().StringVar(&flags.report, "report", "", "build report written by droidpack build --report (required)")
	cmd.Flags().StringVar(&flags.arch, "arch", "", "architecture to install (default: the device ABI)")
	cmd.Flags().StringVarP(&flags.serial, "serial", "s", "", "device serial, as listed by adb devices")
	cmd.Flags().BoolVar(&flags.launch, "launch", false, "start the application after installing")
	cmd.Flags().BoolVar(&flags.logcat, "logcat", false, "follow the application log after installing")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

// device issues adb commands against one device.
type device struct {
	runner toolchain.Runner
	serial string
	stdout *bytes.Buffer
	app    *App
}

func (d *device) adb(ctx context.Context, args ...string) error {
	argv := []string{"adb"}
	if d.serial != "" {
		argv = append(argv, "-s", d.serial)
	}
	argv = append(argv, args...)

	var stderr bytes.Buffer
	inv := &toolchain.Invocation{Argv: argv, Stdout: d.app.stdout, Stderr: &stderr}
	if d.stdout != nil {
		inv.Stdout = d.stdout
	}
	res := d.runner.Run(ctx, inv)
	if !res.Failed() {
		return nil
	}
	if res.Error != nil {
		return res.Error
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return fmt.Errorf("%s: %s", strings.Join(argv, " "), msg)
}

// abis returns the device ABIs in preference order.
func (d *device) abis(ctx context.Context) ([]string, error) {
	var out bytes.Buffer
	query := &device{runner: d.runner, serial: d.serial, stdout: &out, app: d.app}
	if err := query.adb(ctx, "shell", "getprop", "ro.product.cpu.abilist"); err != nil {
		return nil, err
	}
	var abis []string
	for _, f := range strings.Split(strings.TrimSpace(out.String()), ",") {
		if f = strings.TrimSpace(f); f != "" {
			abis = append(abis, f)
		}
	}
	if len(abis) == 0 {
		return nil, errors.New("device reported no ABI")
	}
	return abis, nil
}

func runInstall(cmd *cobra.Command, app *App, flags *installFlags) error {
	ctx := cmd.Context()
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		app.renderError(err, config.ColorSchemeAuto)
		return &ExitError{Code: 1}
	}
	fail := func(err error) error {
		app.renderError(err, cfg.UI.ColorScheme)
		return &ExitError{Code: 1}
	}

	paths := app.manifestPaths()
	if len(paths) == 0 {
		paths = []string{manifest.DefaultFileName}
	}
	loaded, err := manifest.Load(paths, manifest.LoadOptions{Profile: app.profile, LookupEnv: app.LookupEnv})
	if loaded == nil {
		return fail(explain(err, app.manifests))
	}
	meta := build.AppFrom(loaded.Manifest)

	report, err := build.ReadReport(flags.report)
	if err != nil {
		return fail(err)
	}

	dev := &device{runner: newDeviceRunner(), serial: flags.serial, app: app}
	wrap := func(op string, err error) error {
		return issue.NewErrorContext().
			WithOperation(op).
			WithResource(flags.serial).
			WithSuggestions("Check that the device is listed by 'adb devices'", "Enable USB debugging on the device").
			Wrap(err).
			BuildError()
	}

	art, err := pickArtifact(ctx, report, flags.arch, dev)
	if err != nil {
		return fail(wrap("select a package for the device", err))
	}

	logger := app.logger()
	logger.Info("installing", "arch", art.Arch, "path", art.Path)
	if err := dev.adb(ctx, "install", "-r", art.Path); err != nil {
		return fail(wrap("install "+art.Path, err))
	}
	fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Installed"), CmdStyle.Render(meta.PackageID()))

	if flags.launch {
		if err := dev.adb(ctx, "shell", "am", "start", "-n", meta.PackageID()+"/"+launchActivity); err != nil {
			return fail(wrap("launch "+meta.PackageID(), err))
		}
	}
	if flags.logcat {
		if err := dev.adb(ctx, "logcat", "-c"); err != nil {
			return fail(wrap("clear the device log", err))
		}
		err := dev.adb(ctx, "logcat", "-s", "python:*", meta.Name+":*", "AndroidRuntime:E")
		if err != nil && ctx.Err() == nil {
			return fail(wrap("follow the device log", err))
		}
	}
	return nil
}

// pickArtifact returns the packaged artifact for arch, or for the first
// device ABI the report has a package for.
func pickArtifact(ctx context.Context, report *build.Report, arch string, dev *device) (*build.Artifact, error) {
	if arch != "" {
		a, err := abi.Parse(arch)
		if err != nil {
			return nil, err
		}
		art, ok := report.Artifact(a)
		if !ok || !art.OK() {
			return nil, fmt.Errorf("build %s has no package for %s", report.ID, a)
		}
		return art, nil
	}

	abis, err := dev.abis(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range abis {
		a, err := abi.Parse(name)
		if err != nil {
			continue
		}
		if art, ok := report.Artifact(a); ok && art.OK() {
			return art, nil
		}
	}
	return nil, fmt.Errorf("build %s has no package for the device ABIs %s", report.ID, strings.Join(abis, ", "))
}
