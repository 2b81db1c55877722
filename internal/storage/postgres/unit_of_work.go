package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	alarmpg "gasmonitor-cloud/internal/alarms/infrastructure/postgres"
	measurements "gasmonitor-cloud/internal/measurements/domain"
	measurementpg "gasmonitor-cloud/internal/measurements/infrastructure/postgres"
	"gasmonitor-cloud/internal/storage"
)

// UnitOfWork runs work inside one database transaction, handing the callback
// transaction-bound repositories.
type UnitOfWork struct {
	db           *sql.DB
	measurements *measurementpg.MeasurementRepository
	alarms       *alarmpg.AlarmRepository
}

// NewUnitOfWork constructs a unit of work over the shared pool.
func NewUnitOfWork(db *sql.DB, measurementRepo *measurementpg.MeasurementRepository, alarmRepo *alarmpg.AlarmRepository) (*UnitOfWork, error) {
	if db == nil {
		return nil, errors.New("unit of work: nil db")
	}
	if measurementRepo == nil || alarmRepo == nil {
		return nil, errors.New("unit of work: nil repository")
	}
	return &UnitOfWork{db: db, measurements: measurementRepo, alarms: alarmRepo}, nil
}

// Do begins a transaction, runs fn against transaction-bound stores, and
// commits. Any error from fn rolls the whole transaction back.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, stores storage.Stores) error) error {
	if u == nil || u.db == nil {
		return errors.New("unit of work: nil db")
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unit of work: begin: %w", err)
	}
	bound := txStores{
		measurements: u.measurements.WithTx(tx),
		alarms:       u.alarms.WithTx(tx),
	}
	if err := fn(ctx, bound); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unit of work: commit: %w", err)
	}
	return nil
}

type txStores struct {
	measurements *measurementpg.MeasurementRepository
	alarms       *alarmpg.AlarmRepository
}

func (s txStores) Measurements() measurements.Store { return s.measurements }

func (s txStores) Alarms() alarms.Store { return s.alarms }
