package application

import (
	"context"
	"log"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
)

// Scheduler triggers daily snapshot generation on schedule.
type Scheduler struct {
	service *Service
	dailyAt string
	loc     *time.Location
	logger  *log.Logger
}

// NewScheduler constructs a Scheduler. dailyAt is a "15:04" wall time
// in the given location.
func NewScheduler(service *Service, dailyAt string, loc *time.Location, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		service: service,
		dailyAt: dailyAt,
		loc:     loc,
		logger:  logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.service == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			local := now.In(s.loc)
			if !s.shouldRun(local) {
				continue
			}
			s.runOnce(ctx, local)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	if _, err := s.service.Generate(ctx, now, false, alarms.Filter{}); err != nil && s.logger != nil {
		s.logger.Printf("snapshot schedule error: %v", err)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
