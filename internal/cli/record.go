package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meetcap/internal/domain"
	"meetcap/internal/output"
	"meetcap/internal/usecase"
)

const levelInterval = 100 * time.Millisecond

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var pid int
	var mic bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an application's audio",
		Long:  "Record system audio, or a single application's audio with --pid, optionally together with the microphone.\nRecording stops after --duration or on Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			formatter := output.NewFormatter(cmd.OutOrStdout())

			target, err := resolveTarget(ctx, deps.Catalog, pid)
			if err != nil {
				return err
			}
			enableMic := deps.Config.Recording.EnableMicrophone
			if cmd.Flags().Changed("mic") {
				enableMic = mic
			}

			cfg := usecase.NewRecordingConfiguration(target, enableMic, deps.Config.Recording.OutputDir)
			files, err := deps.Recorder.StartRecording(ctx, cfg)
			if err != nil {
				return err
			}
			formatter.RecordingStarted(files)
			started := time.Now()

			waitCtx := ctx
			if duration > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			showLevels(waitCtx, deps.Recorder, output.NewLevelMeter(cmd.ErrOrStderr()))

			result, stopErr := deps.Recorder.StopRecording(context.WithoutCancel(ctx))
			formatter.RecordingStopped(time.Since(started))
			if result != nil {
				formatter.RecordedFiles(result.Files)
				if result.TranscriptPath != "" {
					formatter.TranscriptSaved(result.TranscriptPath)
				}
			}
			return stopErr
		},
	}

	cmd.Flags().IntVar(&pid, "pid", domain.SystemWidePID, "Process id of the application to record (default: all system audio)")
	cmd.Flags().BoolVar(&mic, "mic", false, "Also record the microphone (default from config)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (default: until Ctrl+C)")

	return cmd
}

func resolveTarget(ctx context.Context, catalog Catalog, pid int) (domain.AudioSource, error) {
	if pid == domain.SystemWidePID {
		return domain.SystemWideSource(), nil
	}
	if _, err := catalog.Enumerate(ctx); err != nil {
		return domain.AudioSource{}, err
	}
	source, ok := catalog.Lookup(pid)
	if !ok {
		return domain.AudioSource{}, fmt.Errorf("no audio source with pid %d", pid)
	}
	return source, nil
}

func showLevels(ctx context.Context, recorder Recorder, meter *output.LevelMeter) {
	ticker := time.NewTicker(levelInterval)
	defer ticker.Stop()
	defer meter.Finish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			meter.Update(recorder.Levels())
		}
	}
}
