package application

import (
	"context"
	"errors"
	"testing"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/storage"
	"gasmonitor-cloud/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	manager, err := NewManager(store.Alarms(), opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(manager.Shutdown)
	return manager, store
}

func TestRegisterBreachOpensThenExtends(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.January, 26, 10, 0, 0, 0, time.UTC)}
	manager, store := newTestManager(t, WithClock(clock))
	ctx := context.Background()

	first, err := manager.RegisterBreach(ctx, nil, 3, 101, 400)
	if err != nil {
		t.Fatalf("first breach: %v", err)
	}
	if !first.Opened {
		t.Fatal("first breach must open a new alarm")
	}

	clock.now = clock.now.Add(time.Second)
	second, err := manager.RegisterBreach(ctx, nil, 3, 102, 450)
	if err != nil {
		t.Fatalf("second breach: %v", err)
	}
	if second.Opened {
		t.Fatal("second breach must extend, not open")
	}
	if second.AlarmID != first.AlarmID {
		t.Fatalf("expected same alarm, got %d and %d", first.AlarmID, second.AlarmID)
	}

	alarm, err := store.Alarms().GetByID(ctx, first.AlarmID)
	if err != nil {
		t.Fatalf("get alarm: %v", err)
	}
	if alarm.Count != 2 {
		t.Fatalf("expected count 2, got %d", alarm.Count)
	}
	if alarm.MeasurementIDs[0] != 101 || alarm.MeasurementIDs[1] != 102 {
		t.Fatalf("unexpected measurement ids: %v", alarm.MeasurementIDs)
	}
	if alarm.RefThreshold != 400 {
		t.Fatalf("reference threshold must keep the opening value, got %v", alarm.RefThreshold)
	}
	if !alarm.UpdatedAt.After(alarm.CreatedAt.Time) {
		t.Fatal("extension must refresh the update timestamp")
	}
}

func TestBreachesForDifferentGasesOpenSeparateAlarms(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	first, err := manager.RegisterBreach(ctx, nil, 1, 10, 100)
	if err != nil {
		t.Fatalf("gas 1 breach: %v", err)
	}
	second, err := manager.RegisterBreach(ctx, nil, 2, 11, 200)
	if err != nil {
		t.Fatalf("gas 2 breach: %v", err)
	}
	if !first.Opened || !second.Opened {
		t.Fatal("each gas type must get its own alarm")
	}
	if first.AlarmID == second.AlarmID {
		t.Fatal("alarms for different gas types must be distinct")
	}
}

func TestAutoCloseAfterInactivity(t *testing.T) {
	manager, store := newTestManager(t, WithInactivityWindow(30*time.Millisecond))
	ctx := context.Background()

	breach, err := manager.RegisterBreach(ctx, nil, 5, 201, 300)
	if err != nil {
		t.Fatalf("breach: %v", err)
	}
	manager.ScheduleAutoClose(5, breach.AlarmID)

	deadline := time.Now().Add(time.Second)
	for {
		alarm, err := store.Alarms().GetByID(ctx, breach.AlarmID)
		if err != nil {
			t.Fatalf("get alarm: %v", err)
		}
		if alarm.Status == alarms.StatusClosed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("alarm was not closed after the inactivity window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A later breach for the same gas opens a fresh alarm.
	next, err := manager.RegisterBreach(ctx, nil, 5, 202, 300)
	if err != nil {
		t.Fatalf("post-close breach: %v", err)
	}
	if !next.Opened {
		t.Fatal("breach after auto-close must open a new alarm")
	}
	if next.AlarmID == breach.AlarmID {
		t.Fatal("closed alarms must never be reopened")
	}
}

func TestRearmRestartsInactivityWindow(t *testing.T) {
	manager, store := newTestManager(t, WithInactivityWindow(60*time.Millisecond))
	ctx := context.Background()

	breach, err := manager.RegisterBreach(ctx, nil, 7, 301, 250)
	if err != nil {
		t.Fatalf("breach: %v", err)
	}
	manager.ScheduleAutoClose(7, breach.AlarmID)

	time.Sleep(35 * time.Millisecond)
	if _, err := manager.RegisterBreach(ctx, nil, 7, 302, 250); err != nil {
		t.Fatalf("second breach: %v", err)
	}
	manager.ScheduleAutoClose(7, breach.AlarmID)

	// Shortly after the original window would have expired the alarm
	// must still be open because the timer was re-armed.
	time.Sleep(35 * time.Millisecond)
	alarm, err := store.Alarms().GetByID(ctx, breach.AlarmID)
	if err != nil {
		t.Fatalf("get alarm: %v", err)
	}
	if alarm.Status != alarms.StatusOpen {
		t.Fatal("re-armed alarm closed too early")
	}
}

func TestStaleTimerCannotTouchSuccessorAlarm(t *testing.T) {
	manager, store := newTestManager(t, WithInactivityWindow(25*time.Millisecond))
	ctx := context.Background()

	first, err := manager.RegisterBreach(ctx, nil, 9, 401, 500)
	if err != nil {
		t.Fatalf("breach: %v", err)
	}
	manager.ScheduleAutoClose(9, first.AlarmID)

	// Close the alarm out of band, then open a successor before the
	// stale timer fires.
	if _, err := store.Alarms().CloseIfOpen(ctx, first.AlarmID, time.Now().UTC()); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := manager.RegisterBreach(ctx, nil, 9, 402, 500)
	if err != nil {
		t.Fatalf("successor breach: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	alarm, err := store.Alarms().GetByID(ctx, second.AlarmID)
	if err != nil {
		t.Fatalf("get successor: %v", err)
	}
	if alarm.Status != alarms.StatusOpen {
		t.Fatal("stale timer must not close the successor alarm")
	}
}

func TestAutoCloseDoesNotBlockUnitOfWork(t *testing.T) {
	manager, store := newTestManager(t, WithInactivityWindow(20*time.Millisecond))
	ctx := context.Background()

	breach, err := manager.RegisterBreach(ctx, nil, 5, 501, 300)
	if err != nil {
		t.Fatalf("breach: %v", err)
	}
	manager.ScheduleAutoClose(5, breach.AlarmID)

	// Hold a unit of work open across the inactivity window so the
	// timer fires while the batch still owns the store, then register
	// a breach for the same gas from inside it.
	done := make(chan error, 1)
	go func() {
		done <- store.Do(ctx, func(ctx context.Context, stores storage.Stores) error {
			time.Sleep(60 * time.Millisecond)
			_, err := manager.RegisterBreach(ctx, stores.Alarms(), 5, 502, 300)
			return err
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unit of work: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unit of work never completed while the timer was firing")
	}
}

func TestDeleteAlarm(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	breach, err := manager.RegisterBreach(ctx, nil, 2, 77, 120)
	if err != nil {
		t.Fatalf("breach: %v", err)
	}
	if err := manager.DeleteAlarm(ctx, breach.AlarmID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := manager.DeleteAlarm(ctx, breach.AlarmID); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
