// Package worker runs periodic jobs against the command bus.
package worker

import (
	"context"
	"log/slog"
	"time"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	bookingapp "staysane/internal/app/handlers/booking"
)

// Sweeper expires unpaid bookings and completes finished stays on a ticker.
type Sweeper struct {
	Commands commands.Bus
	Interval time.Duration
	Limit    int
	Logger   *slog.Logger
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs both sweeps and returns their results. Failures are logged.
func (s *Sweeper) RunOnce(ctx context.Context) (expired, completed dto.SweepResult) {
	var err error
	expired, err = commands.Dispatch[bookingapp.ExpireBookingsCommand, dto.SweepResult](ctx, s.Commands,
		bookingapp.ExpireBookingsCommand{Limit: s.Limit})
	s.report("expire", expired, err)

	completed, err = commands.Dispatch[bookingapp.CompleteBookingsCommand, dto.SweepResult](ctx, s.Commands,
		bookingapp.CompleteBookingsCommand{Limit: s.Limit})
	s.report("complete", completed, err)
	return expired, completed
}

func (s *Sweeper) report(sweep string, res dto.SweepResult, err error) {
	log := s.logger()
	if err != nil {
		log.Error("booking sweep failed", "sweep", sweep, "error", err)
		return
	}
	if res.Changed > 0 || res.Failed > 0 || res.Conflicts > 0 {
		log.Info("booking sweep finished", "sweep", sweep,
			"scanned", res.Scanned, "changed", res.Changed, "conflicts", res.Conflicts, "failed", res.Failed)
	}
}

func (s *Sweeper) interval() time.Duration {
	if s.Interval <= 0 {
		return time.Minute
	}
	return s.Interval
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
