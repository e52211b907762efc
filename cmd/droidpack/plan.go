// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

func newPlanCommand(app *App) *cobra.Command {
	flags := &prepareFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the build plan as YAML",
		Long: `Print the immutable build plan: the merged application settings, the
architecture matrix, the resolved requirements and the directories a build
would use. No toolchain is invoked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := app.prepare(cmd, flags)
			if err != nil {
				return err
			}
			data, err := plan.YAML()
			if err != nil {
				return err
			}
			_, err = app.stdout.Write(data)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}
