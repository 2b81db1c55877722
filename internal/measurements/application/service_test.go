package application

import (
	"context"
	"errors"
	"testing"
	"time"

	alarmapp "gasmonitor-cloud/internal/alarms/application"
	alarms "gasmonitor-cloud/internal/alarms/domain"
	measurements "gasmonitor-cloud/internal/measurements/domain"
	"gasmonitor-cloud/internal/storage"
	"gasmonitor-cloud/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	manager, err := alarmapp.NewManager(store.Alarms(), alarmapp.WithInactivityWindow(time.Hour))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(manager.Shutdown)
	service, err := NewService(store, store.Measurements(), manager)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, store
}

func TestRegisterBatchPersistsOnlyBreaches(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	result, err := service.RegisterBatch(ctx, []Reading{
		{GasTypeID: 1, Value: 120, Threshold: 100},
		{GasTypeID: 1, Value: 80, Threshold: 100},
		{GasTypeID: 2, Value: 50, Threshold: 50},
	}, false)
	if err != nil {
		t.Fatalf("register batch: %v", err)
	}
	if result.Inserted != 1 || result.AlarmsTriggered != 1 {
		t.Fatalf("expected inserted=1 triggered=1, got %+v", result)
	}

	list, err := store.Measurements().List(ctx, measurements.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 stored measurement, got %d", len(list))
	}
	if list[0].Value != 120 {
		t.Fatalf("stored the wrong reading: %+v", list[0])
	}
}

func TestRegisterBatchStoreAllKeepsEverything(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	result, err := service.RegisterBatch(ctx, []Reading{
		{GasTypeID: 1, Value: 120, Threshold: 100},
		{GasTypeID: 1, Value: 80, Threshold: 100},
		{GasTypeID: 2, Value: 49, Threshold: 50},
	}, true)
	if err != nil {
		t.Fatalf("register batch: %v", err)
	}
	if result.Inserted != 3 || result.AlarmsTriggered != 1 {
		t.Fatalf("expected inserted=3 triggered=1, got %+v", result)
	}

	list, err := store.Measurements().List(ctx, measurements.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 stored measurements, got %d", len(list))
	}
}

func TestRegisterBatchValueEqualToThresholdIsNotABreach(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	result, err := service.RegisterBatch(ctx, []Reading{
		{GasTypeID: 1, Value: 100, Threshold: 100},
	}, true)
	if err != nil {
		t.Fatalf("register batch: %v", err)
	}
	if result.AlarmsTriggered != 0 {
		t.Fatalf("value == threshold must not trigger, got %+v", result)
	}
	open, err := store.Alarms().FindOpenByGas(ctx, 1)
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open != nil {
		t.Fatal("no alarm may exist for a non-breaching batch")
	}
}

func TestRegisterBatchExtendsAcrossBatches(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	if _, err := service.RegisterBatch(ctx, []Reading{{GasTypeID: 4, Value: 300, Threshold: 200}}, false); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if _, err := service.RegisterBatch(ctx, []Reading{{GasTypeID: 4, Value: 310, Threshold: 200}}, false); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	open, err := store.Alarms().FindOpenByGas(ctx, 4)
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open == nil {
		t.Fatal("expected an open alarm")
	}
	if open.Count != 2 {
		t.Fatalf("expected the alarm to span both batches, count=%d", open.Count)
	}
}

func TestRegisterBatchEmptyIsNoOp(t *testing.T) {
	service, _ := newTestService(t)

	result, err := service.RegisterBatch(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if result.Inserted != 0 || result.AlarmsTriggered != 0 {
		t.Fatalf("empty batch must report zeros, got %+v", result)
	}
}

// failingUnitOfWork runs the real work, then reports failure so the
// clone-and-swap backend discards it.
type failingUnitOfWork struct {
	inner storage.UnitOfWork
}

func (f failingUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, stores storage.Stores) error) error {
	err := f.inner.Do(ctx, func(ctx context.Context, stores storage.Stores) error {
		if err := fn(ctx, stores); err != nil {
			return err
		}
		return errors.New("forced failure")
	})
	return err
}

func TestRegisterBatchIsAtomic(t *testing.T) {
	store := memory.New()
	manager, err := alarmapp.NewManager(store.Alarms(), alarmapp.WithInactivityWindow(time.Hour))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(manager.Shutdown)
	service, err := NewService(failingUnitOfWork{inner: store}, store.Measurements(), manager)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	_, err = service.RegisterBatch(ctx, []Reading{
		{GasTypeID: 1, Value: 150, Threshold: 100},
		{GasTypeID: 2, Value: 250, Threshold: 200},
	}, true)
	if err == nil {
		t.Fatal("expected the batch to fail")
	}

	list, listErr := store.Measurements().List(ctx, measurements.Filter{})
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(list) != 0 {
		t.Fatalf("failed batch must leave no measurements, found %d", len(list))
	}
	open, findErr := store.Alarms().FindOpenByGas(ctx, 1)
	if findErr != nil {
		t.Fatalf("find open: %v", findErr)
	}
	if open != nil {
		t.Fatal("failed batch must leave no alarms")
	}
}

func TestDeleteMeasurementRepairsAlarm(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	if _, err := service.RegisterBatch(ctx, []Reading{
		{GasTypeID: 3, Value: 500, Threshold: 400},
		{GasTypeID: 3, Value: 520, Threshold: 400},
	}, false); err != nil {
		t.Fatalf("batch: %v", err)
	}

	open, err := store.Alarms().FindOpenByGas(ctx, 3)
	if err != nil || open == nil {
		t.Fatalf("expected open alarm, err=%v", err)
	}
	victim := open.MeasurementIDs[0]

	if err := service.DeleteMeasurement(ctx, victim); err != nil {
		t.Fatalf("delete: %v", err)
	}

	repaired, err := store.Alarms().GetByID(ctx, open.ID)
	if err != nil {
		t.Fatalf("get alarm: %v", err)
	}
	if repaired.Count != 1 {
		t.Fatalf("expected count 1 after repair, got %d", repaired.Count)
	}
	if repaired.Status != alarms.StatusOpen {
		t.Fatal("alarm with remaining measurements must stay open")
	}
	for _, id := range repaired.MeasurementIDs {
		if id == victim {
			t.Fatal("deleted measurement id still referenced")
		}
	}
}

func TestDeleteLastMeasurementClosesAlarm(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	if _, err := service.RegisterBatch(ctx, []Reading{
		{GasTypeID: 6, Value: 90, Threshold: 60},
	}, false); err != nil {
		t.Fatalf("batch: %v", err)
	}
	open, err := store.Alarms().FindOpenByGas(ctx, 6)
	if err != nil || open == nil {
		t.Fatalf("expected open alarm, err=%v", err)
	}

	if err := service.DeleteMeasurement(ctx, open.MeasurementIDs[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	closed, err := store.Alarms().GetByID(ctx, open.ID)
	if err != nil {
		t.Fatalf("get alarm: %v", err)
	}
	if closed.Status != alarms.StatusClosed {
		t.Fatal("alarm must close when its measurement list empties")
	}
	if closed.Count != 0 {
		t.Fatalf("expected count 0, got %d", closed.Count)
	}
}

func TestDeleteMeasurementNotFound(t *testing.T) {
	service, _ := newTestService(t)

	err := service.DeleteMeasurement(context.Background(), 9999)
	if !errors.Is(err, measurements.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
