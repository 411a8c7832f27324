package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"meetcap/internal/domain"
	"meetcap/internal/output"
	"meetcap/internal/usecase"
)

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print meetings as they start and end",
		Long:  "Poll visible windows for meetings and print each change.\nWith --record, the meeting application's audio is recorded while the meeting lasts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			g, ctx := errgroup.WithContext(cmd.Context())

			events, unsubscribe := deps.Meetings.Subscribe()
			defer unsubscribe()
			if record {
				startAutoRecord(ctx, g, deps)
			}

			usecase.WatchSources(ctx, deps.Catalog, deps.SourceRefresh, deps.logger())
			deps.Meetings.StartMonitoring(ctx)
			defer deps.Meetings.StopMonitoring()

			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case event, ok := <-events:
						if !ok {
							return nil
						}
						formatter.Meeting(event)
					}
				}
			})
			return ignoreCanceled(g.Wait())
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "Record meetings automatically")

	return cmd
}

// meetingSources refreshes the catalog and joins it with a detected meeting.
type meetingSources struct {
	catalog  Catalog
	meetings Meetings
}

func (m meetingSources) ResolveSource(ctx context.Context, info domain.ActiveMeetingInfo) (*domain.AudioSource, error) {
	if _, err := m.catalog.Enumerate(ctx); err != nil {
		return nil, err
	}
	return m.meetings.MatchSource(info.AppName), nil
}

func startAutoRecord(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	events, unsubscribe := deps.Meetings.Subscribe()
	auto := usecase.NewAutoRecorder(deps.Recorder, deps.Config.Recording.EnableMicrophone, deps.Config.Recording.OutputDir, deps.logger()).
		WithSourceResolver(meetingSources{catalog: deps.Catalog, meetings: deps.Meetings}, deps.SourceRefresh)
	g.Go(func() error {
		defer unsubscribe()
		return auto.Run(ctx, events)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
