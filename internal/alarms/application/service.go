package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/jsontime"
	"gasmonitor-cloud/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// DefaultInactivityWindow closes an open alarm when no new breach
// arrives for its gas type within this duration.
const DefaultInactivityWindow = 2 * time.Second

// Breach reports the outcome of registering a threshold breach.
type Breach struct {
	AlarmID int64
	Opened  bool
}

// AlarmNotifier publishes alarm lifecycle events.
type AlarmNotifier interface {
	Notify(ctx context.Context, event AlarmEvent)
}

// AlarmEvent represents a lifecycle update.
type AlarmEvent struct {
	Type  string
	Alarm alarms.Alarm
}

// Lifecycle event types delivered to notifiers.
const (
	EventOpened   = "opened"
	EventExtended = "extended"
	EventClosed   = "closed"
	EventDeleted  = "deleted"
)

// Manager owns the alarm lifecycle: opening and extending alarms on
// threshold breaches, closing them on inactivity, and serving queries.
type Manager struct {
	store    alarms.Store
	closer   *autoCloser
	clock    Clock
	logger   *log.Logger
	notifier AlarmNotifier

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithClock assigns a clock.
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithInactivityWindow overrides the auto-close window.
func WithInactivityWindow(window time.Duration) ManagerOption {
	return func(m *Manager) {
		if window > 0 {
			m.closer.window = window
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNotifier attaches a lifecycle event notifier.
func WithNotifier(notifier AlarmNotifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// NewManager constructs an alarm lifecycle manager.
func NewManager(store alarms.Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("alarms: nil store")
	}
	manager := &Manager{
		store: store,
		clock: systemClock{},
		locks: make(map[int64]*sync.Mutex),
	}
	manager.closer = newAutoCloser(DefaultInactivityWindow, manager.closeOnInactivity)
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// InactivityWindow reports the configured auto-close window.
func (m *Manager) InactivityWindow() time.Duration {
	if m == nil || m.closer == nil {
		return 0
	}
	return m.closer.window
}

// RegisterBreach records a threshold breach for a gas type. It extends
// the newest open alarm for that gas, or opens a new one when none
// exists. The given store is used for persistence so the caller can
// pass a transaction-bound view.
func (m *Manager) RegisterBreach(ctx context.Context, store alarms.Store, gasTypeID, measurementID int64, threshold float64) (Breach, error) {
	if m == nil {
		return Breach{}, errors.New("alarms: nil manager")
	}
	if store == nil {
		store = m.store
	}
	if gasTypeID <= 0 {
		return Breach{}, errors.New("alarms: gas type id required")
	}

	lock := m.gasLock(gasTypeID)
	lock.Lock()
	defer lock.Unlock()

	now := m.clock.Now().UTC()

	open, err := store.FindOpenByGas(ctx, gasTypeID)
	if err != nil {
		return Breach{}, err
	}
	if open != nil {
		open.AddMeasurement(measurementID, now)
		if err := store.Update(ctx, open); err != nil {
			return Breach{}, err
		}
		metrics.IncAlarmEvent(metrics.AlarmExtended)
		m.emit(EventExtended, *open)
		return Breach{AlarmID: open.ID, Opened: false}, nil
	}

	alarm := &alarms.Alarm{
		GasTypeID:      gasTypeID,
		Status:         alarms.StatusOpen,
		Count:          1,
		MeasurementIDs: []int64{measurementID},
		RefThreshold:   threshold,
		CreatedAt:      jsontime.At(now),
		UpdatedAt:      jsontime.At(now),
	}
	if err := store.Create(ctx, alarm); err != nil {
		return Breach{}, err
	}
	metrics.IncAlarmEvent(metrics.AlarmOpened)
	m.emit(EventOpened, *alarm)
	return Breach{AlarmID: alarm.ID, Opened: true}, nil
}

// ScheduleAutoClose arms (or re-arms) the inactivity timer for a gas
// type, targeting the given alarm. Call only after the breach that
// produced the alarm is durably committed.
func (m *Manager) ScheduleAutoClose(gasTypeID, alarmID int64) {
	if m == nil || m.closer == nil {
		return
	}
	m.closer.Arm(gasTypeID, alarmID)
}

// ListAlarms returns alarms matching the filter, newest first.
func (m *Manager) ListAlarms(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	if m == nil {
		return nil, errors.New("alarms: nil manager")
	}
	return m.store.List(ctx, filter)
}

// GetAlarm returns one alarm by id.
func (m *Manager) GetAlarm(ctx context.Context, id int64) (*alarms.Alarm, error) {
	if m == nil {
		return nil, errors.New("alarms: nil manager")
	}
	alarm, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, alarms.ErrNotFound
	}
	return alarm, nil
}

// DeleteAlarm removes an alarm permanently.
func (m *Manager) DeleteAlarm(ctx context.Context, id int64) error {
	if m == nil {
		return errors.New("alarms: nil manager")
	}
	var snapshot *alarms.Alarm
	if m.notifier != nil {
		snapshot, _ = m.store.GetByID(ctx, id)
	}
	deleted, err := m.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return alarms.ErrNotFound
	}
	metrics.IncAlarmEvent(metrics.AlarmDeleted)
	if snapshot != nil {
		m.emit(EventDeleted, *snapshot)
	}
	return nil
}

// Shutdown stops all pending inactivity timers.
func (m *Manager) Shutdown() {
	if m == nil || m.closer == nil {
		return
	}
	m.closer.Shutdown()
}

func (m *Manager) closeOnInactivity(gasTypeID, alarmID int64) {
	// Runs without the per-gas lock: a unit of work registering a
	// breach for this gas holds that lock while it owns the store, so
	// taking it here would invert the lock order. The conditional
	// close below is the guard; it only succeeds while the alarm is
	// still open under this id.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	closed, err := m.store.CloseIfOpen(ctx, alarmID, m.clock.Now().UTC())
	if err != nil {
		if m.logger != nil {
			m.logger.Printf("alarm auto-close failed gas=%d alarm=%d: %v", gasTypeID, alarmID, err)
		}
		return
	}
	if !closed {
		return
	}
	metrics.IncAlarmEvent(metrics.AlarmClosedTimeout)
	if m.logger != nil {
		m.logger.Printf("alarm %d closed after inactivity window (gas %d)", alarmID, gasTypeID)
	}
	if m.notifier != nil {
		if closedAlarm, err := m.store.GetByID(ctx, alarmID); err == nil && closedAlarm != nil {
			m.emit(EventClosed, *closedAlarm)
		}
	}
}

func (m *Manager) emit(eventType string, alarm alarms.Alarm) {
	if m == nil || m.notifier == nil {
		return
	}
	// Delivery is best effort and must not hold up the caller.
	go m.notifier.Notify(context.Background(), AlarmEvent{Type: eventType, Alarm: alarm})
}

func (m *Manager) gasLock(gasTypeID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[gasTypeID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[gasTypeID] = lock
	}
	return lock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
