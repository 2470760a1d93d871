package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler polls for scheduled campaigns that are due and starts them.
type Scheduler struct {
	runner *Runner
	poll   time.Duration
	now    func() time.Time
	log    zerolog.Logger

	mu sync.Mutex
	c  *cron.Cron
}

// NewScheduler creates a Scheduler that checks every poll interval.
func NewScheduler(runner *Runner, poll time.Duration, log zerolog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("campaign: scheduler: runner is required")
	}
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Scheduler{
		runner: runner,
		poll:   poll,
		now:    time.Now,
		log:    log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start registers the poll job and starts the cron loop. It is a no-op if
// already started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.poll.String(), func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("campaign: scheduler: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info().Dur("poll", s.poll).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}

// Tick starts every due campaign once and returns how many were started.
// Campaigns whose account is not ready stay scheduled for the next tick.
func (s *Scheduler) Tick(ctx context.Context) int {
	due, err := s.runner.store.DueCampaigns(s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("load due campaigns")
		return 0
	}
	started := 0
	for _, c := range due {
		err := s.runner.Start(ctx, c.ID)
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrSessionNotReady), errors.Is(err, ErrAlreadyRunning):
			s.log.Debug().Uint("campaign", c.ID).Err(err).Msg("due campaign deferred")
		default:
			s.log.Error().Uint("campaign", c.ID).Err(err).Msg("start due campaign")
		}
	}
	return started
}
