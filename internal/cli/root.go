package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"meetcap/internal/config"
	"meetcap/internal/domain"
	"meetcap/internal/usecase"
	"meetcap/internal/version"
)

type Catalog interface {
	Enumerate(ctx context.Context) ([]domain.AudioSource, error)
	Lookup(pid int) (domain.AudioSource, bool)
}

type Recorder interface {
	usecase.Recorder
	Levels() domain.AudioLevels
}

type Meetings interface {
	StartMonitoring(ctx context.Context)
	StopMonitoring()
	Subscribe() (<-chan domain.MeetingEvent, func())
	MatchSource(appName string) *domain.AudioSource
}

type Server interface {
	Serve(ctx context.Context) error
}

type Dependencies struct {
	Config   config.Config
	Catalog  Catalog
	Recorder Recorder
	Meetings Meetings
	// API is nil when the HTTP API is disabled.
	API    Server
	Logger *log.Logger
	// SourceRefresh is how often sources are re-enumerated while meetings
	// are watched. Zero means usecase.DefaultSourceRefresh.
	SourceRefresh time.Duration
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetcapctl",
		Short:         "Detect meetings and record their audio",
		Long:          "A CLI that lists audio sources, records an application's audio together with the microphone, and follows meetings as they start and end.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewSourcesCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

func (d *Dependencies) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}
