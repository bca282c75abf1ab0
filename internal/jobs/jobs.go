package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/narrate-go/narrate/internal/config"
)

// JobContext provides the dependencies the scheduled jobs need.
// core.App implements it.
type JobContext interface {
	Config() *config.Config
	JobManager() *Manager
}

// StartJobs starts the background job scheduler. The returned scheduler is
// stopped by the caller on shutdown.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startAudioPollJob(s, app)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func startAudioPollJob(s *gocron.Scheduler, app JobContext) {
	interval := app.Config().Jobs.AudioPollInterval
	if interval <= 0 {
		log.Println("Audio poll interval is 0, scheduled audio status checks are disabled.")
		return
	}

	jobID := "audio-status-poll"
	log.Printf("Scheduling job: '%s' to run every %d seconds.", jobID, interval)

	_, err := s.Every(interval).Seconds().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(interval)*time.Second)
		defer cancel()
		app.JobManager().PollAudio(ctx)
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobID, err)
	}
}
