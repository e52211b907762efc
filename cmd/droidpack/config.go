// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/config"
)

// newConfigCommand creates the `droidpack config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage droidpack configuration",
		Long: `Manage droidpack configuration.

Configuration is read from, in order of precedence:
  - the file given with --config
  - ./droidpack.cue
  - Linux: ~/.config/droidpack/config.cue
  - macOS: ~/Library/Application Support/droidpack/config.cue
  - Windows: %APPDATA%\droidpack\config.cue

Every key can be overridden with a DROIDPACK_ environment variable, for
example DROIDPACK_BUILD_JOBS=2 or DROIDPACK_TOOLCHAIN_RUNTIME=container.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, err := config.LoadWithSource(cmd.Context(), config.LoadOptions{
				ConfigFilePath: app.cfgFile,
				LookupEnv:      app.LookupEnv,
			})
			if err != nil {
				app.renderError(err, config.ColorSchemeAuto)
				return &ExitError{Code: 1}
			}
			if source == "" {
				source = SubtitleStyle.Render("(using defaults)")
			}
			fmt.Fprintf(app.stdout, "%s: %s\n\n", CmdStyle.Render("Config file"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			if _, err := os.Stat(filepath.Join(dir, config.ConfigFileName)); err == nil && !force {
				fmt.Fprintf(app.stdout, "%s %s\n", WarningStyle.Render("Configuration already exists:"), filepath.Join(dir, config.ConfigFileName))
				return nil
			}
			path, err := config.CreateDefaultConfig(force)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName))
			return nil
		},
	})

	return cfgCmd
}
