package application

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/jsontime"
	"gasmonitor-cloud/internal/observability/metrics"
	snapshots "gasmonitor-cloud/internal/snapshots/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// AlarmLister supplies the alarms a snapshot aggregates over.
type AlarmLister interface {
	ListAlarms(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error)
}

// Service computes and persists daily alarm snapshots.
type Service struct {
	lister AlarmLister
	store  snapshots.Store
	loc    *time.Location
	clock  Clock
	logger *log.Logger
}

// ServiceOption customizes the snapshot service.
type ServiceOption func(*Service)

// WithLocation sets the calendar-day boundary timezone.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a snapshot service.
func NewService(lister AlarmLister, store snapshots.Store, opts ...ServiceOption) (*Service, error) {
	if lister == nil {
		return nil, errors.New("snapshots: nil alarm lister")
	}
	if store == nil {
		return nil, errors.New("snapshots: nil store")
	}
	service := &Service{
		lister: lister,
		store:  store,
		loc:    time.UTC,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// BuildSummary aggregates the alarms created on the reference day. The
// base filter may narrow by gas type or states; its time window is
// replaced by the day bounds. The alarm list is attached only when
// requested; its entries are stripped of the gas-type relation.
func (s *Service) BuildSummary(ctx context.Context, referenceDate time.Time, includeList bool, base alarms.Filter) (snapshots.Summary, error) {
	if s == nil {
		return snapshots.Summary{}, errors.New("snapshots: nil service")
	}
	start := snapshots.StartOfDay(referenceDate, s.loc)
	end := snapshots.EndOfDay(referenceDate, s.loc)
	base.Start = &start
	base.End = &end

	dayAlarms, err := s.lister.ListAlarms(ctx, base)
	if err != nil {
		return snapshots.Summary{}, err
	}

	summary := snapshots.Summary{
		TotalActivations: len(dayAlarms),
		CountsByGas:      make(map[string]snapshots.GasCount),
	}
	for _, alarm := range dayAlarms {
		key := strconv.FormatInt(alarm.GasTypeID, 10)
		bucket := summary.CountsByGas[key]
		bucket.Count++
		if bucket.Name == nil && alarm.GasType != nil {
			name := alarm.GasType.Name
			bucket.Name = &name
		}
		summary.CountsByGas[key] = bucket
	}
	if includeList {
		summary.AlarmList = make([]alarms.Alarm, 0, len(dayAlarms))
		for _, alarm := range dayAlarms {
			summary.AlarmList = append(summary.AlarmList, alarm.StripGasType())
		}
	}
	return summary, nil
}

// Generate computes the summary for the reference day and upserts the
// snapshot row for that day, overwriting any earlier run.
func (s *Service) Generate(ctx context.Context, referenceDate time.Time, includeList bool, base alarms.Filter) (*snapshots.DailySnapshot, error) {
	if s == nil {
		return nil, errors.New("snapshots: nil service")
	}
	started := time.Now()
	snap, err := s.generate(ctx, referenceDate, includeList, base)
	if err != nil {
		metrics.ObserveSnapshotRun("error", time.Since(started))
		return nil, err
	}
	metrics.ObserveSnapshotRun("success", time.Since(started))
	return snap, nil
}

func (s *Service) generate(ctx context.Context, referenceDate time.Time, includeList bool, base alarms.Filter) (*snapshots.DailySnapshot, error) {
	summary, err := s.BuildSummary(ctx, referenceDate, includeList, base)
	if err != nil {
		return nil, err
	}
	snap := &snapshots.DailySnapshot{
		ReferenceDate: jsontime.At(snapshots.StartOfDay(referenceDate, s.loc)),
		Summary:       summary,
		GeneratedAt:   jsontime.At(s.clock.Now().UTC()),
	}
	if err := s.store.Upsert(ctx, snap); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Printf("snapshot generated for %s: %d activation(s)", snap.ReferenceDate.Format("2006-01-02"), summary.TotalActivations)
	}
	return snap, nil
}

// FindByDay returns the persisted snapshot for the reference day, nil
// when none was generated yet.
func (s *Service) FindByDay(ctx context.Context, day time.Time) (*snapshots.DailySnapshot, error) {
	if s == nil {
		return nil, errors.New("snapshots: nil service")
	}
	return s.store.FindByDay(ctx, snapshots.StartOfDay(day, s.loc))
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
