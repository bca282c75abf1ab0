package main

import (
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/core"
	"github.com/narrate-go/narrate/internal/tui"
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var exitOnDone bool

	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: `Follow a job's progress and model output ("batch" for batch analysis)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			app.Start()
			return runWatch(cmd, ctx, app, args[0], exitOnDone)
		},
	}
	cmd.Flags().BoolVar(&exitOnDone, "exit-on-done", false, "Quit when the job reaches 100%")
	return cmd
}

// runWatch runs the terminal view for jobID until the user quits or, with
// exitOnDone, the job completes.
func runWatch(cmd *cobra.Command, ctx *commandContext, app *core.App, jobID string, exitOnDone bool) error {
	// Log lines would tear the alt screen.
	if ctx.logFile != "" {
		f, err := tea.LogToFile(ctx.logFile, "narrate")
		if err != nil {
			return err
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	model := tui.NewWatchModel(jobID, app.Tracker(), app.Reassembler(), exitOnDone).
		WithConnectionState(app.Connection().State())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()), tea.WithOutput(cmd.OutOrStdout()))

	cancel := tui.Subscribe(jobID, app.Tracker(), app.Reassembler(), p.Send)
	defer cancel()
	app.Connection().OnStateChange(func(s channel.State) { p.Send(tui.StateMsg(s)) })

	_, err := p.Run()
	return err
}
