// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/cache"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
)

type cleanFlags struct {
	all      bool
	packages bool
	output   string
}

func newCleanCommand(app *App) *cobra.Command {
	flags := &cleanFlags{}
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Discard cached toolchain state and intermediate files",
		Long: `Discard the cached toolchain state of the manifest and the intermediate
files under <output>/.droidpack. The next build starts from scratch.

--all empties the whole cache; --packages also deletes the produced
packages and their logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd, app, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.all, "all", false, "empty the whole cache, not just this manifest's entries")
	cmd.Flags().BoolVar(&flags.packages, "packages", false, "also delete the output directory")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output directory (default [buildozer] bin_dir or ./bin)")
	return cmd
}

func runClean(cmd *cobra.Command, app *App, flags *cleanFlags) error {
	cfg, err := app.loadConfig(cmd.Context())
	if err != nil {
		app.renderError(err, config.ColorSchemeAuto)
		return &ExitError{Code: 1}
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		if cacheDir, err = config.DefaultCacheDir(); err != nil {
			return err
		}
	}
	store := cache.New(cacheDir)

	if flags.all {
		size, _ := store.Size()
		if err := store.Purge(); err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "%s %s (%s)\n", SuccessStyle.Render("Removed cache"), CmdStyle.Render(cacheDir), formatMB(size))
	}

	paths := app.manifestPaths()
	if len(paths) == 0 {
		paths = []string{manifest.DefaultFileName}
	}
	loaded, err := manifest.Load(paths, manifest.LoadOptions{Profile: app.profile, LookupEnv: app.LookupEnv})
	if loaded == nil {
		if flags.all {
			return nil
		}
		app.renderError(explain(err, app.manifests), cfg.UI.ColorScheme)
		return &ExitError{Code: 1}
	}

	if !flags.all {
		hash := loaded.Manifest.Hash()
		for _, arch := range abi.Known() {
			if err := store.Invalidate(cache.Key{Manifest: hash, Arch: arch}); err != nil {
				return err
			}
		}
		fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Removed cached toolchain state of"), hash)
	}

	out := flags.output
	if out == "" {
		out = cfg.Build.OutputDir
	}
	out = build.OutputDir(loaded, out)
	target := filepath.Join(out, build.WorkDirName)
	if flags.packages {
		target = out
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove %s: %w", target, err)
	}
	fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Removed"), CmdStyle.Render(target))
	return nil
}
