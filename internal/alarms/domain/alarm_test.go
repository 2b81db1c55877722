package alarms

import (
	"testing"
	"time"
)

func TestAddMeasurementKeepsDetectionOrder(t *testing.T) {
	now := time.Date(2026, time.January, 26, 10, 0, 0, 0, time.UTC)
	alarm := Alarm{Status: StatusOpen}

	alarm.AddMeasurement(101, now)
	alarm.AddMeasurement(102, now.Add(time.Second))
	alarm.AddMeasurement(103, now.Add(2*time.Second))

	if alarm.Count != 3 {
		t.Fatalf("expected count 3, got %d", alarm.Count)
	}
	want := []int64{101, 102, 103}
	for i, id := range want {
		if alarm.MeasurementIDs[i] != id {
			t.Fatalf("expected id %d at position %d, got %d", id, i, alarm.MeasurementIDs[i])
		}
	}
	if !alarm.UpdatedAt.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("expected updated at to follow the last breach, got %v", alarm.UpdatedAt)
	}
}

func TestRemoveMeasurementRecounts(t *testing.T) {
	now := time.Now().UTC()
	alarm := Alarm{Status: StatusOpen, MeasurementIDs: []int64{1, 2, 3}, Count: 3}

	closed := alarm.RemoveMeasurement(2, now)
	if closed {
		t.Fatal("removing one of three must not close the alarm")
	}
	if alarm.Count != 2 {
		t.Fatalf("expected count 2, got %d", alarm.Count)
	}
	if alarm.MeasurementIDs[0] != 1 || alarm.MeasurementIDs[1] != 3 {
		t.Fatalf("unexpected ids after removal: %v", alarm.MeasurementIDs)
	}
}

func TestRemoveLastMeasurementClosesAlarm(t *testing.T) {
	now := time.Now().UTC()
	alarm := Alarm{Status: StatusOpen, MeasurementIDs: []int64{7}, Count: 1}

	closed := alarm.RemoveMeasurement(7, now)
	if !closed {
		t.Fatal("expected the alarm to close on empty measurement list")
	}
	if alarm.Status != StatusClosed {
		t.Fatalf("expected status %q, got %q", StatusClosed, alarm.Status)
	}
	if alarm.Count != 0 {
		t.Fatalf("expected count 0, got %d", alarm.Count)
	}
}

func TestRemoveMeasurementFromClosedAlarmStaysClosed(t *testing.T) {
	now := time.Now().UTC()
	alarm := Alarm{Status: StatusClosed, MeasurementIDs: []int64{9}, Count: 1}

	closed := alarm.RemoveMeasurement(9, now)
	if closed {
		t.Fatal("an already closed alarm must not report a transition")
	}
	if alarm.Status != StatusClosed {
		t.Fatalf("expected status %q, got %q", StatusClosed, alarm.Status)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"abierta": StatusOpen,
		"cerrada": StatusClosed,
		"open":    StatusOpen,
		"closed":  StatusClosed,
		"weird":   "weird",
	}
	for input, want := range cases {
		if got := NormalizeStatus(input); got != want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", input, got, want)
		}
	}
}
