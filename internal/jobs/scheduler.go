package jobs

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"
)

// Scheduler drives the three housekeeping jobs on their own clocks:
// draft expiration on a fixed interval, status promotion on the hour and
// no-show marking once a day at a fixed UTC hour.
type Scheduler struct {
	Jobs           *Jobs
	ExpireInterval time.Duration
	NoShowHourUTC  int
	Logger         *logger.Logger
}

func NewScheduler(jobs *Jobs, expireInterval time.Duration, noShowHourUTC int, log *logger.Logger) *Scheduler {
	return &Scheduler{
		Jobs:           jobs,
		ExpireInterval: expireInterval,
		NoShowHourUTC:  noShowHourUTC,
		Logger:         log,
	}
}

// Start launches one goroutine per job and returns immediately. All loops
// stop when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runInterval(ctx, "expire-draft-bookings", s.ExpireInterval, s.Jobs.ExpireDraftBookings)
	go s.runAligned(ctx, "update-booking-statuses", nextHour, s.Jobs.UpdateBookingStatuses)
	go s.runAligned(ctx, "mark-no-shows", s.nextDailyRun, s.Jobs.MarkNoShows)

	s.Logger.Info("JOBS", fmt.Sprintf("scheduler started (expire every %s, promote hourly, no-show daily %02d:00 UTC)", s.ExpireInterval, s.NoShowHourUTC))
}

func (s *Scheduler) runInterval(ctx context.Context, name string, interval time.Duration, run func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.LogJob(name, "stopped")
			return
		case <-ticker.C:
			s.tick(ctx, name, run)
		}
	}
}

// runAligned sleeps until the next boundary computed by next, runs the job
// and repeats. Recomputing after every run keeps the loop on the boundary
// even when a pass runs long.
func (s *Scheduler) runAligned(ctx context.Context, name string, next func(time.Time) time.Time, run func(context.Context) (int, error)) {
	for {
		timer := time.NewTimer(time.Until(next(time.Now().UTC())))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Logger.LogJob(name, "stopped")
			return
		case <-timer.C:
			s.tick(ctx, name, run)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, name string, run func(context.Context) (int, error)) {
	applied, err := run(ctx)
	if err != nil {
		s.Logger.Error("JOBS", fmt.Sprintf("%s: %v", name, err))
		return
	}
	if applied > 0 {
		s.Logger.LogJob(name, fmt.Sprintf("transitioned %d bookings", applied))
	}
}

// nextHour returns the next top of the hour strictly after now.
func nextHour(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}

// nextDailyRun returns the next occurrence of the configured UTC hour
// strictly after now.
func (s *Scheduler) nextDailyRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.NoShowHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
