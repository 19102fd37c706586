package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers the daily detection run and chains recommendation
// generation after it. On-demand runs go straight to the Runner through the
// HTTP trigger surface.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler registers the daily pass on the given cron spec.
func NewScheduler(runner *Runner, spec string, log zerolog.Logger) (*Scheduler, error) {
	log = log.With().Str("component", "scheduler").Logger()

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()

		if _, err := runner.RunDetection(ctx, ""); err != nil {
			log.Error().Err(err).Msg("scheduled detection failed")
			return
		}
		if _, err := runner.RunRecommendations(ctx, ""); err != nil {
			log.Error().Err(err).Msg("scheduled recommendation run failed")
		}
	})
	if err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}
