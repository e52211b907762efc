// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/issue"
	"github.com/droidpack/droidpack/internal/publish"
)

const (
	// accessKeyEnv and secretKeyEnv hold static object storage credentials;
	// without them the AWS default credential chain applies.
	accessKeyEnv = "DROIDPACK_PUBLISH_ACCESS_KEY"
	secretKeyEnv = "DROIDPACK_PUBLISH_SECRET_KEY"
)

// newPublisher is swapped in tests.
var newPublisher = func(ctx context.Context, opts publish.Options, logger *log.Logger) (*publish.Publisher, error) {
	return publish.New(ctx, opts, logger)
}

type publishFlags struct {
	report string
	bucket string
	prefix string
}

func newPublishCommand(app *App) *cobra.Command {
	flags := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the packages of a build report to object storage",
		Long: `Upload every package of a build report, its compressed build log and
the report itself to an S3-compatible bucket, under
<prefix>/<build id>/.

The bucket, prefix, region and endpoint come from the publish section of
the configuration unless overridden by flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, app, flags)
		},
	}
	cmd.Flags().StringVar(&flags.report, "report", "", "build report written by droidpack build --report (required)")
	cmd.Flags().StringVar(&flags.bucket, "bucket", "", "destination bucket (default publish.bucket)")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "object key prefix (default publish.prefix)")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func runPublish(cmd *cobra.Command, app *App, flags *publishFlags) error {
	ctx := cmd.Context()
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		app.renderError(err, config.ColorSchemeAuto)
		return &ExitError{Code: 1}
	}

	report, err := build.ReadReport(flags.report)
	if err != nil {
		app.renderError(err, cfg.UI.ColorScheme)
		return &ExitError{Code: 1}
	}

	opts := publish.Options{
		Bucket:   cfg.Publish.Bucket,
		Prefix:   cfg.Publish.Prefix,
		Region:   cfg.Publish.Region,
		Endpoint: cfg.Publish.Endpoint,
	}
	if flags.bucket != "" {
		opts.Bucket = flags.bucket
	}
	if cmd.Flags().Changed("prefix") {
		opts.Prefix = flags.prefix
	}
	opts.AccessKey, _ = app.LookupEnv(accessKeyEnv)
	opts.SecretKey, _ = app.LookupEnv(secretKeyEnv)

	publisher, err := newPublisher(ctx, opts, app.logger())
	var objects []publish.Object
	if err == nil {
		objects, err = publisher.Publish(ctx, report)
	}
	if err != nil {
		app.renderError(issue.NewErrorContext().
			WithOperation("publish build "+report.ID).
			WithResource(opts.Bucket).
			WithIssue(issue.PublishFailedId).
			Wrap(err).
			BuildError(), cfg.UI.ColorScheme)
		return &ExitError{Code: 1}
	}

	for _, o := range objects {
		fmt.Fprintf(app.stdout, "  %s s3://%s/%s (%s)\n", SuccessStyle.Render("↑"), publisher.Bucket, o.Key, formatMB(o.Size))
	}
	fmt.Fprintln(app.stdout, SuccessStyle.Render(fmt.Sprintf("Published %d object(s).", len(objects))))
	return nil
}
