package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/narrate-go/narrate/internal/api"
	"github.com/narrate-go/narrate/internal/jobs"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console: channel, relay server and audio status poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if port == 0 {
				port = app.Config().Port
			}

			app.Start()
			scheduler := jobs.StartJobs(app)
			defer scheduler.Stop()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return api.NewServer(app).ListenAndServe(runCtx, fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Relay port (defaults to the configured port)")
	return cmd
}
