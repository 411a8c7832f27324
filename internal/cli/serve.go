package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"meetcap/internal/output"
	"meetcap/internal/usecase"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and meeting detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.API == nil {
				return errors.New("HTTP API is disabled; set MEETCAP_HTTP_ENABLED=true or [http] enabled = true")
			}
			formatter := output.NewFormatter(cmd.OutOrStdout())
			g, ctx := errgroup.WithContext(cmd.Context())

			if record {
				startAutoRecord(ctx, g, deps)
			}
			usecase.WatchSources(ctx, deps.Catalog, deps.SourceRefresh, deps.logger())
			deps.Meetings.StartMonitoring(ctx)
			defer deps.Meetings.StopMonitoring()

			formatter.Listening(deps.Config.HTTP.Addr)
			g.Go(func() error {
				return deps.API.Serve(ctx)
			})
			return ignoreCanceled(g.Wait())
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "Record meetings automatically")

	return cmd
}
