package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	alarms "gasmonitor-cloud/internal/alarms/domain"
)

func TestFindOpenByGasScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, time.January, 26, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "gas_type_id", "status", "measurement_count", "measurement_ids",
		"ref_threshold", "created_at", "updated_at",
	}).AddRow(int64(7), int64(4), alarms.StatusOpen, 2, []byte(`[101,102]`), 400.0, now, now.Add(time.Second))

	mock.ExpectQuery("SELECT id, gas_type_id, status, measurement_count, measurement_ids").
		WithArgs(int64(4), alarms.StatusOpen).
		WillReturnRows(rows)

	repo := NewAlarmRepository(db)
	alarm, err := repo.FindOpenByGas(context.Background(), 4)
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if alarm == nil {
		t.Fatal("expected an alarm")
	}
	if alarm.ID != 7 || alarm.GasTypeID != 4 || alarm.Count != 2 {
		t.Fatalf("unexpected alarm: %+v", alarm)
	}
	if len(alarm.MeasurementIDs) != 2 || alarm.MeasurementIDs[0] != 101 {
		t.Fatalf("measurement ids not decoded: %v", alarm.MeasurementIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindOpenByGasNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, gas_type_id, status").
		WithArgs(int64(9), alarms.StatusOpen).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "gas_type_id", "status", "measurement_count", "measurement_ids",
			"ref_threshold", "created_at", "updated_at",
		}))

	repo := NewAlarmRepository(db)
	alarm, err := repo.FindOpenByGas(context.Background(), 9)
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if alarm != nil {
		t.Fatalf("expected nil when no open alarm, got %+v", alarm)
	}
}

func TestCloseIfOpenGuardsOnStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE alarms").
		WithArgs(alarms.StatusClosed, at, int64(7), alarms.StatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlarmRepository(db)
	closed, err := repo.CloseIfOpen(context.Background(), 7, at)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatal("expected the open alarm to close")
	}

	// Second attempt hits no row because the status guard fails.
	mock.ExpectExec("UPDATE alarms").
		WithArgs(alarms.StatusClosed, at, int64(7), alarms.StatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 0))

	closed, err = repo.CloseIfOpen(context.Background(), 7, at)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closed {
		t.Fatal("an already closed alarm must not report a transition")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAssignsGeneratedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO alarms").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	repo := NewAlarmRepository(db)
	alarm := &alarms.Alarm{
		GasTypeID:      4,
		Status:         alarms.StatusOpen,
		Count:          1,
		MeasurementIDs: []int64{101},
		RefThreshold:   400,
	}
	if err := repo.Create(context.Background(), alarm); err != nil {
		t.Fatalf("create: %v", err)
	}
	if alarm.ID != 42 {
		t.Fatalf("expected generated id 42, got %d", alarm.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
