package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/narrate-go/narrate/internal/api"
	"github.com/narrate-go/narrate/internal/config"
	"github.com/narrate-go/narrate/internal/core"
	"github.com/narrate-go/narrate/internal/jobs"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	// Open the job event channel and start relaying it
	app.Start()

	// Start the audio status poller
	scheduler := jobs.StartJobs(app)
	defer scheduler.Stop()

	config.Watch(func(cfg *config.Config) {
		if cfg.ChannelURL() != app.Connection().URL() {
			log.Printf("Backend endpoint changed to %s; restart to apply.", cfg.ChannelURL())
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(app)
	if err := server.ListenAndServe(ctx, fmt.Sprintf(":%d", app.Config().Port)); err != nil {
		log.Fatalf("%v", err)
	}
}
