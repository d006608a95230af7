package recurring

import (
	"context"
	"time"

	"foodtruck-preorder/internal/timeutil"
	"foodtruck-preorder/pkg/logger"
)

// Scheduler is the in-process daily trigger. Run one per deployment; several
// instances are safe only because each template carries a per-day marker.
type Scheduler struct {
	svc *Service
	at  timeutil.TimeOfDay
	loc *time.Location
	log *logger.Logger
	now func() time.Time
}

// NewScheduler fires at runAt ("HH:MM") every day in loc.
func NewScheduler(svc *Service, runAt string, loc *time.Location, log *logger.Logger) (*Scheduler, error) {
	at, err := timeutil.ParseTimeOfDay(runAt)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{svc: svc, at: at, loc: loc, log: log.WithComponent("scheduler"), now: time.Now}, nil
}

// NextRun is the first firing time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	now = now.In(s.loc)
	candidate := s.at.On(timeutil.StartOfDay(now))
	if !candidate.After(now) {
		candidate = s.at.On(timeutil.StartOfDay(now).AddDate(0, 0, 1))
	}
	return candidate
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.NextRun(s.now())
		s.log.Info("next materialization scheduled", "at", next)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := s.svc.MaterializeDueTemplates(ctx, next); err != nil {
			s.log.Error("scheduled materialization failed", "error", err)
		}
	}
}
