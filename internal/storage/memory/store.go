// Package memory is an in-memory storage backend. A unit of work clones the
// whole state, runs against the clone, and swaps it in on success, so failed
// work leaves no trace, matching the all-or-nothing contract the Postgres
// backend gets from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/jsontime"
	measurements "gasmonitor-cloud/internal/measurements/domain"
	snapshots "gasmonitor-cloud/internal/snapshots/domain"
	"gasmonitor-cloud/internal/storage"
)

// Store holds all in-memory state.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New constructs an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Do implements storage.UnitOfWork with clone-and-swap atomicity.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, stores storage.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, stateStores{work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Measurements returns the live (non-transactional) measurement store.
func (s *Store) Measurements() measurements.Store { return liveMeasurements{s} }

// Alarms returns the live (non-transactional) alarm store.
func (s *Store) Alarms() alarms.Store { return liveAlarms{s} }

// Snapshots returns the live snapshot store.
func (s *Store) Snapshots() snapshots.Store { return liveSnapshots{s} }

type state struct {
	measurements      map[int64]measurements.Measurement
	alarms            map[int64]alarms.Alarm
	snapshots         map[string]snapshots.DailySnapshot
	nextMeasurementID int64
	nextAlarmID       int64
	nextSnapshotID    int64
}

func newState() *state {
	return &state{
		measurements:      map[int64]measurements.Measurement{},
		alarms:            map[int64]alarms.Alarm{},
		snapshots:         map[string]snapshots.DailySnapshot{},
		nextMeasurementID: 1,
		nextAlarmID:       1,
		nextSnapshotID:    1,
	}
}

func (st *state) clone() *state {
	copied := &state{
		measurements:      make(map[int64]measurements.Measurement, len(st.measurements)),
		alarms:            make(map[int64]alarms.Alarm, len(st.alarms)),
		snapshots:         make(map[string]snapshots.DailySnapshot, len(st.snapshots)),
		nextMeasurementID: st.nextMeasurementID,
		nextAlarmID:       st.nextAlarmID,
		nextSnapshotID:    st.nextSnapshotID,
	}
	for id, m := range st.measurements {
		copied.measurements[id] = m
	}
	for id, alarm := range st.alarms {
		copied.alarms[id] = cloneAlarm(alarm)
	}
	for key, snap := range st.snapshots {
		copied.snapshots[key] = cloneSnapshot(snap)
	}
	return copied
}

func cloneAlarm(alarm alarms.Alarm) alarms.Alarm {
	alarm.MeasurementIDs = append([]int64(nil), alarm.MeasurementIDs...)
	return alarm
}

func cloneSnapshot(snap snapshots.DailySnapshot) snapshots.DailySnapshot {
	counts := make(map[string]snapshots.GasCount, len(snap.CountsByGas))
	for key, count := range snap.CountsByGas {
		counts[key] = count
	}
	snap.CountsByGas = counts
	if snap.AlarmList != nil {
		list := make([]alarms.Alarm, len(snap.AlarmList))
		for i, alarm := range snap.AlarmList {
			list[i] = cloneAlarm(alarm)
		}
		snap.AlarmList = list
	}
	return snap
}

// stateStores binds the store interfaces to one state without locking; it is
// only handed out while the unit-of-work lock is held.
type stateStores struct {
	st *state
}

func (s stateStores) Measurements() measurements.Store { return (*measurementState)(s.st) }

func (s stateStores) Alarms() alarms.Store { return (*alarmState)(s.st) }

// ---- measurements ----

type measurementState state

func (st *measurementState) Create(_ context.Context, m *measurements.Measurement) error {
	m.ID = st.nextMeasurementID
	st.nextMeasurementID++
	st.measurements[m.ID] = *m
	return nil
}

func (st *measurementState) GetByID(_ context.Context, id int64) (*measurements.Measurement, error) {
	m, ok := st.measurements[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (st *measurementState) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := st.measurements[id]; !ok {
		return false, nil
	}
	delete(st.measurements, id)
	return true, nil
}

func (st *measurementState) List(_ context.Context, filter measurements.Filter) ([]measurements.Measurement, error) {
	var result []measurements.Measurement
	for _, m := range st.measurements {
		if matchesMeasurement(m, filter) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].MeasuredAt.Equal(result[j].MeasuredAt.Time) {
			return result[i].MeasuredAt.After(result[j].MeasuredAt.Time)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func matchesMeasurement(m measurements.Measurement, filter measurements.Filter) bool {
	if filter.GasTypeID != nil && m.GasTypeID != *filter.GasTypeID {
		return false
	}
	if filter.Start != nil && m.MeasuredAt.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && m.MeasuredAt.After(*filter.End) {
		return false
	}
	if filter.Threshold != nil && !compare(m.Threshold, *filter.Threshold, filter.ThresholdOp) {
		return false
	}
	if filter.Value != nil && !compare(m.Value, *filter.Value, filter.ValueOp) {
		return false
	}
	return true
}

func compare(value, bound float64, op measurements.Op) bool {
	switch op {
	case measurements.OpGTE:
		return value >= bound
	case measurements.OpLTE:
		return value <= bound
	case measurements.OpEQ:
		return value == bound
	default:
		return false
	}
}

// ---- alarms ----

type alarmState state

func (st *alarmState) FindOpenByGas(_ context.Context, gasTypeID int64) (*alarms.Alarm, error) {
	var newest *alarms.Alarm
	for id := range st.alarms {
		alarm := st.alarms[id]
		if alarm.GasTypeID != gasTypeID || alarm.Status != alarms.StatusOpen {
			continue
		}
		if newest == nil || alarm.CreatedAt.After(newest.CreatedAt.Time) ||
			(alarm.CreatedAt.Equal(newest.CreatedAt.Time) && alarm.ID > newest.ID) {
			copied := cloneAlarm(alarm)
			newest = &copied
		}
	}
	return newest, nil
}

func (st *alarmState) GetByID(_ context.Context, id int64) (*alarms.Alarm, error) {
	alarm, ok := st.alarms[id]
	if !ok {
		return nil, nil
	}
	copied := cloneAlarm(alarm)
	return &copied, nil
}

func (st *alarmState) Create(_ context.Context, alarm *alarms.Alarm) error {
	alarm.ID = st.nextAlarmID
	st.nextAlarmID++
	st.alarms[alarm.ID] = cloneAlarm(*alarm)
	return nil
}

func (st *alarmState) Update(_ context.Context, alarm *alarms.Alarm) error {
	existing, ok := st.alarms[alarm.ID]
	if !ok {
		return alarms.ErrNotFound
	}
	existing.Status = alarm.Status
	existing.Count = alarm.Count
	existing.MeasurementIDs = append([]int64(nil), alarm.MeasurementIDs...)
	existing.UpdatedAt = alarm.UpdatedAt
	st.alarms[alarm.ID] = existing
	return nil
}

func (st *alarmState) CloseIfOpen(_ context.Context, id int64, at time.Time) (bool, error) {
	alarm, ok := st.alarms[id]
	if !ok || alarm.Status != alarms.StatusOpen {
		return false, nil
	}
	alarm.Status = alarms.StatusClosed
	alarm.UpdatedAt = jsontime.At(at)
	st.alarms[id] = alarm
	return true, nil
}

func (st *alarmState) List(_ context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	var result []alarms.Alarm
	for id := range st.alarms {
		alarm := st.alarms[id]
		if matchesAlarm(alarm, filter) {
			result = append(result, cloneAlarm(alarm))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt.Time) {
			return result[i].CreatedAt.After(result[j].CreatedAt.Time)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func matchesAlarm(alarm alarms.Alarm, filter alarms.Filter) bool {
	if filter.GasTypeID != nil && alarm.GasTypeID != *filter.GasTypeID {
		return false
	}
	if filter.Start != nil && alarm.CreatedAt.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && alarm.CreatedAt.After(*filter.End) {
		return false
	}
	if len(filter.States) > 0 {
		found := false
		for _, state := range filter.States {
			if alarm.Status == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (st *alarmState) ListReferencing(_ context.Context, measurementID int64) ([]alarms.Alarm, error) {
	var result []alarms.Alarm
	for id := range st.alarms {
		alarm := st.alarms[id]
		for _, ref := range alarm.MeasurementIDs {
			if ref == measurementID {
				result = append(result, cloneAlarm(alarm))
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (st *alarmState) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := st.alarms[id]; !ok {
		return false, nil
	}
	delete(st.alarms, id)
	return true, nil
}

// ---- live (lock-per-operation) wrappers ----

type liveMeasurements struct{ s *Store }

func (l liveMeasurements) Create(ctx context.Context, m *measurements.Measurement) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*measurementState)(l.s.state).Create(ctx, m)
}

func (l liveMeasurements) GetByID(ctx context.Context, id int64) (*measurements.Measurement, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*measurementState)(l.s.state).GetByID(ctx, id)
}

func (l liveMeasurements) Delete(ctx context.Context, id int64) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*measurementState)(l.s.state).Delete(ctx, id)
}

func (l liveMeasurements) List(ctx context.Context, filter measurements.Filter) ([]measurements.Measurement, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*measurementState)(l.s.state).List(ctx, filter)
}

type liveAlarms struct{ s *Store }

func (l liveAlarms) FindOpenByGas(ctx context.Context, gasTypeID int64) (*alarms.Alarm, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).FindOpenByGas(ctx, gasTypeID)
}

func (l liveAlarms) GetByID(ctx context.Context, id int64) (*alarms.Alarm, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).GetByID(ctx, id)
}

func (l liveAlarms) Create(ctx context.Context, alarm *alarms.Alarm) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).Create(ctx, alarm)
}

func (l liveAlarms) Update(ctx context.Context, alarm *alarms.Alarm) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).Update(ctx, alarm)
}

func (l liveAlarms) CloseIfOpen(ctx context.Context, id int64, at time.Time) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).CloseIfOpen(ctx, id, at)
}

func (l liveAlarms) List(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).List(ctx, filter)
}

func (l liveAlarms) ListReferencing(ctx context.Context, measurementID int64) ([]alarms.Alarm, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).ListReferencing(ctx, measurementID)
}

func (l liveAlarms) Delete(ctx context.Context, id int64) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (*alarmState)(l.s.state).Delete(ctx, id)
}

type liveSnapshots struct{ s *Store }

func (l liveSnapshots) Upsert(_ context.Context, snap *snapshots.DailySnapshot) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	key := snap.ReferenceDate.Format("2006-01-02")
	if existing, ok := l.s.state.snapshots[key]; ok {
		snap.ID = existing.ID
	} else {
		snap.ID = l.s.state.nextSnapshotID
		l.s.state.nextSnapshotID++
	}
	l.s.state.snapshots[key] = cloneSnapshot(*snap)
	return nil
}

func (l liveSnapshots) FindByDay(_ context.Context, day time.Time) (*snapshots.DailySnapshot, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	snap, ok := l.s.state.snapshots[day.Format("2006-01-02")]
	if !ok {
		return nil, nil
	}
	copied := cloneSnapshot(snap)
	return &copied, nil
}
