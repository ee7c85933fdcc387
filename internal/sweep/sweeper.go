// Package sweep runs the periodic expiry cleanup on a cron schedule.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"crewdock.org/internal/auth"
	"crewdock.org/internal/obs"
)

// DefaultSchedule runs the sweep hourly.
const DefaultSchedule = "@hourly"

// Cleaner is the slice of the auth service the sweeper needs.
type Cleaner interface {
	Sweep(ctx context.Context) (auth.SweepResult, error)
}

// Sweeper schedules periodic sweeps.
type Sweeper struct {
	cleaner  Cleaner
	schedule string
	cron     *cron.Cron
	timeout  time.Duration
}

// New builds a sweeper; schedule accepts cron expressions and the
// @every/@hourly descriptors.
func New(cleaner Cleaner, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		cleaner:  cleaner,
		schedule: schedule,
		cron:     cron.New(),
		timeout:  5 * time.Minute,
	}
}

// Start registers the job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	obs.Info("sweeper started", map[string]any{"schedule": s.schedule})
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes a single sweep pass, logging and counting the
// removals.
func (s *Sweeper) RunOnce(ctx context.Context) (auth.SweepResult, error) {
	res, err := s.cleaner.Sweep(ctx)
	if err != nil {
		obs.Error("sweep failed", map[string]any{"error": err.Error()})
		return res, err
	}
	obs.SweepRemoved("magic_links", res.LinksRemoved)
	obs.SweepRemoved("sessions", res.SessionsRemoved)
	obs.Info("sweep completed", map[string]any{
		"links_removed":    res.LinksRemoved,
		"sessions_removed": res.SessionsRemoved,
	})
	return res, nil
}
