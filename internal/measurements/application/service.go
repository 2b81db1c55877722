package application

import (
	"context"
	"errors"
	"log"
	"time"

	alarmapp "gasmonitor-cloud/internal/alarms/application"
	"gasmonitor-cloud/internal/jsontime"
	measurements "gasmonitor-cloud/internal/measurements/domain"
	"gasmonitor-cloud/internal/observability/metrics"
	"gasmonitor-cloud/internal/storage"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Reading is one sensor sample submitted for ingestion.
type Reading struct {
	GasTypeID  int64
	Value      float64
	Threshold  float64
	MeasuredAt time.Time
}

// BatchResult summarizes an ingestion run.
type BatchResult struct {
	Inserted        int `json:"inserted"`
	AlarmsTriggered int `json:"alarmsTriggered"`
}

// Service runs the measurement ingestion pipeline and measurement queries.
type Service struct {
	uow       storage.UnitOfWork
	store     measurements.Store
	lifecycle *alarmapp.Manager
	clock     Clock
	logger    *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

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

// NewService constructs a measurement service. The store is the live
// (non-transactional) view used for reads; writes go through the unit
// of work.
func NewService(uow storage.UnitOfWork, store measurements.Store, lifecycle *alarmapp.Manager, opts ...ServiceOption) (*Service, error) {
	if uow == nil {
		return nil, errors.New("measurements: nil unit of work")
	}
	if store == nil {
		return nil, errors.New("measurements: nil store")
	}
	if lifecycle == nil {
		return nil, errors.New("measurements: nil alarm manager")
	}
	service := &Service{
		uow:       uow,
		store:     store,
		lifecycle: lifecycle,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RegisterBatch ingests a batch of readings atomically. A reading whose
// value strictly exceeds its threshold counts as a breach and feeds the
// alarm lifecycle. Non-breaching readings are persisted only when
// storeAll is set. Readings are processed in slice order.
func (s *Service) RegisterBatch(ctx context.Context, readings []Reading, storeAll bool) (BatchResult, error) {
	if s == nil {
		return BatchResult{}, errors.New("measurements: nil service")
	}
	start := time.Now()
	result, err := s.registerBatch(ctx, readings, storeAll)
	if err != nil {
		metrics.ObserveIngest(metrics.IngestResultError, time.Since(start))
		return BatchResult{}, err
	}
	metrics.ObserveIngest(metrics.IngestResultSuccess, time.Since(start))
	metrics.AddMeasurementsInserted(result.Inserted)
	return result, nil
}

func (s *Service) registerBatch(ctx context.Context, readings []Reading, storeAll bool) (BatchResult, error) {
	if len(readings) == 0 {
		return BatchResult{}, nil
	}

	var result BatchResult
	armed := make(map[int64]int64)

	err := s.uow.Do(ctx, func(ctx context.Context, stores storage.Stores) error {
		result = BatchResult{}
		for k := range armed {
			delete(armed, k)
		}
		for _, reading := range readings {
			if reading.GasTypeID <= 0 {
				return errors.New("measurements: reading missing gas type id")
			}
			breached := reading.Value > reading.Threshold
			if !breached && !storeAll {
				continue
			}

			measuredAt := reading.MeasuredAt
			if measuredAt.IsZero() {
				measuredAt = s.clock.Now()
			}
			m := &measurements.Measurement{
				GasTypeID:  reading.GasTypeID,
				Value:      reading.Value,
				Threshold:  reading.Threshold,
				MeasuredAt: jsontime.At(measuredAt),
			}
			if err := stores.Measurements().Create(ctx, m); err != nil {
				return err
			}
			result.Inserted++

			if !breached {
				continue
			}
			breach, err := s.lifecycle.RegisterBreach(ctx, stores.Alarms(), reading.GasTypeID, m.ID, reading.Threshold)
			if err != nil {
				return err
			}
			result.AlarmsTriggered++
			armed[reading.GasTypeID] = breach.AlarmID
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	// Timers are armed only once the batch is committed, so a timer can
	// never observe an alarm that later rolls back.
	for gasTypeID, alarmID := range armed {
		s.lifecycle.ScheduleAutoClose(gasTypeID, alarmID)
	}
	return result, nil
}

// DeleteMeasurement removes a measurement and repairs every alarm that
// referenced it. An alarm whose measurement list empties is closed.
func (s *Service) DeleteMeasurement(ctx context.Context, id int64) error {
	if s == nil {
		return errors.New("measurements: nil service")
	}
	closedByExhaustion := 0
	err := s.uow.Do(ctx, func(ctx context.Context, stores storage.Stores) error {
		closedByExhaustion = 0
		existing, err := stores.Measurements().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return measurements.ErrNotFound
		}
		if _, err := stores.Measurements().Delete(ctx, id); err != nil {
			return err
		}

		referencing, err := stores.Alarms().ListReferencing(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		for i := range referencing {
			alarm := referencing[i]
			if alarm.RemoveMeasurement(id, now) {
				closedByExhaustion++
			}
			if err := stores.Alarms().Update(ctx, &alarm); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := 0; i < closedByExhaustion; i++ {
		metrics.IncAlarmEvent(metrics.AlarmClosedExhausted)
	}
	if closedByExhaustion > 0 && s.logger != nil {
		s.logger.Printf("measurement %d deleted, %d alarm(s) closed on empty list", id, closedByExhaustion)
	}
	return nil
}

// GetMeasurement returns one measurement by id.
func (s *Service) GetMeasurement(ctx context.Context, id int64) (*measurements.Measurement, error) {
	if s == nil {
		return nil, errors.New("measurements: nil service")
	}
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, measurements.ErrNotFound
	}
	return m, nil
}

// ListMeasurements returns measurements matching the filter, newest first.
func (s *Service) ListMeasurements(ctx context.Context, filter measurements.Filter) ([]measurements.Measurement, error) {
	if s == nil {
		return nil, errors.New("measurements: nil service")
	}
	return s.store.List(ctx, filter)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
