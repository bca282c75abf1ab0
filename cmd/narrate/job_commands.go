package main

import (
	"fmt"
	"time"

	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/core"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/spf13/cobra"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "analyze <chapter-id>",
		Short: "Analyze one chapter and print its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			result, err := app.JobManager().AnalyzeChapter(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Ignore cached results")
	return cmd
}

func newAnalyzeAllCommand(ctx *commandContext) *cobra.Command {
	var force, watch bool

	cmd := &cobra.Command{
		Use:   "analyze-all",
		Short: "Start batch analysis of every chapter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if watch {
				if err := openChannel(app, channelWait); err != nil {
					return err
				}
			}
			if err := app.JobManager().StartBatch(cmd.Context(), force); err != nil {
				return err
			}
			if !watch {
				fmt.Fprintln(cmd.OutOrStdout(), "Batch analysis started.")
				return nil
			}
			return runWatch(cmd, ctx, app, models.BatchJobID, true)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-analyze chapters that already have results")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow batch progress until it completes")
	return cmd
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "generate <chapter-id>",
		Short: "Start audio generation for a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			chapterID := args[0]
			if watch {
				if err := openChannel(app, channelWait); err != nil {
					return err
				}
			}
			if err := app.JobManager().GenerateAudio(cmd.Context(), chapterID); err != nil {
				return err
			}
			if !watch {
				fmt.Fprintf(cmd.OutOrStdout(), "Audio generation for %s started.\n", chapterID)
				return nil
			}
			if err := runWatch(cmd, ctx, app, chapterID, true); err != nil {
				return err
			}
			status, err := app.JobManager().AudioStatus(cmd.Context(), chapterID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, status)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow generation progress until it completes")
	return cmd
}

func newGenerateAllCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "generate-all",
		Short: "Start audio generation for every chapter without audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if watch {
				if err := openChannel(app, channelWait); err != nil {
					return err
				}
			}
			resp, err := app.JobManager().StartBatchGenerate(cmd.Context())
			if err != nil {
				return err
			}
			if !watch {
				fmt.Fprintf(cmd.OutOrStdout(), "Batch audio generation started for %d chapter(s).\n", resp.TotalChapters)
				return nil
			}
			return runWatch(cmd, ctx, app, models.BatchGenerateJobID, true)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow batch progress until it completes")
	return cmd
}

func newAudioStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audio-status <chapter-id>",
		Short: "Show whether a chapter's audio has been rendered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			status, err := app.JobManager().AudioStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, status)
		},
	}
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <target> <source>...",
		Short: "Merge characters into target and drop cached analyses",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			resp, err := app.JobManager().MergeCharacters(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			return writeJSON(cmd, resp)
		},
	}
}

const channelWait = 10 * time.Second

// openChannel connects the app and waits until the channel is open, so a
// job submitted next cannot report progress before anyone listens.
func openChannel(app *core.App, timeout time.Duration) error {
	app.Start()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if app.Connection().State() == channel.StateOpen {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("channel to %s did not open within %v", app.Connection().URL(), timeout)
}
