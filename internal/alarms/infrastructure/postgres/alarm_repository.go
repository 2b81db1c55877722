package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	gases "gasmonitor-cloud/internal/gases/domain"
	"gasmonitor-cloud/internal/jsontime"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const alarmColumns = `a.id, a.gas_type_id, a.status, a.measurement_count, a.measurement_ids,
	a.ref_threshold, a.created_at, a.updated_at,
	g.id, g.name, g.formula, g.unit, g.sensor_code`

// AlarmRepository is a Postgres repository for alarms. The measurement id
// list is stored as a JSONB array so membership queries stay index-friendly.
type AlarmRepository struct {
	q Querier
}

// NewAlarmRepository constructs a repository over the shared pool.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{q: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *AlarmRepository) WithTx(tx *sql.Tx) *AlarmRepository {
	return &AlarmRepository{q: tx}
}

// FindOpenByGas returns the newest open alarm for a gas type, locking the
// row for the duration of the enclosing transaction.
func (r *AlarmRepository) FindOpenByGas(ctx context.Context, gasTypeID int64) (*alarms.Alarm, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if gasTypeID <= 0 {
		return nil, errors.New("alarm repo: invalid gas type id")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT id, gas_type_id, status, measurement_count, measurement_ids,
	ref_threshold, created_at, updated_at
FROM alarms
WHERE gas_type_id = $1 AND status = $2
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE`, gasTypeID, alarms.StatusOpen)
	alarm, err := scanAlarmBare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alarm, nil
}

// GetByID fetches an alarm by id with its gas-type relation. Nil when absent.
func (r *AlarmRepository) GetByID(ctx context.Context, id int64) (*alarms.Alarm, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	row := r.q.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM alarms a
LEFT JOIN gas_types g ON g.id = a.gas_type_id
WHERE a.id = $1`, alarmColumns), id)
	alarm, err := scanAlarmJoined(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alarm, nil
}

// Create inserts a new alarm and assigns its generated id.
func (r *AlarmRepository) Create(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.q == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	if alarm.GasTypeID <= 0 {
		return errors.New("alarm repo: missing gas type id")
	}
	ids, err := encodeIDs(alarm.MeasurementIDs)
	if err != nil {
		return err
	}
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = jsontime.Now()
	}
	if alarm.UpdatedAt.IsZero() {
		alarm.UpdatedAt = alarm.CreatedAt
	}
	return r.q.QueryRowContext(ctx, `
INSERT INTO alarms (gas_type_id, status, measurement_count, measurement_ids, ref_threshold, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		alarm.GasTypeID,
		alarm.Status,
		alarm.Count,
		ids,
		alarm.RefThreshold,
		alarm.CreatedAt.UTC(),
		alarm.UpdatedAt.UTC(),
	).Scan(&alarm.ID)
}

// Update rewrites the mutable alarm fields. The reference threshold and
// creation timestamp are immutable after insert.
func (r *AlarmRepository) Update(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.q == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil || alarm.ID == 0 {
		return errors.New("alarm repo: missing alarm id")
	}
	ids, err := encodeIDs(alarm.MeasurementIDs)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
UPDATE alarms
SET status = $1, measurement_count = $2, measurement_ids = $3, updated_at = $4
WHERE id = $5`,
		alarm.Status,
		alarm.Count,
		ids,
		alarm.UpdatedAt.UTC(),
		alarm.ID,
	)
	return err
}

// CloseIfOpen flips the alarm to closed only while it is still open. The
// guard keeps stale inactivity timers from clobbering anything newer.
func (r *AlarmRepository) CloseIfOpen(ctx context.Context, id int64, at time.Time) (bool, error) {
	if r == nil || r.q == nil {
		return false, errors.New("alarm repo: nil db")
	}
	result, err := r.q.ExecContext(ctx, `
UPDATE alarms
SET status = $1, updated_at = $2
WHERE id = $3 AND status = $4`,
		alarms.StatusClosed, at.UTC(), id, alarms.StatusOpen)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// List returns alarms matching the filter, newest created first, with the
// joined gas-type relation.
func (r *AlarmRepository) List(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("alarm repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM alarms a
LEFT JOIN gas_types g ON g.id = a.gas_type_id
WHERE 1=1`, alarmColumns)
	var args []any

	if filter.GasTypeID != nil {
		args = append(args, *filter.GasTypeID)
		query += fmt.Sprintf(" AND a.gas_type_id = $%d", len(args))
	}
	if filter.Start != nil {
		args = append(args, filter.Start.UTC())
		query += fmt.Sprintf(" AND a.created_at >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, filter.End.UTC())
		query += fmt.Sprintf(" AND a.created_at <= $%d", len(args))
	}
	if len(filter.States) > 0 {
		placeholders := ""
		for i, state := range filter.States {
			args = append(args, state)
			if i > 0 {
				placeholders += ", "
			}
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND a.status IN (%s)", placeholders)
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		alarm, err := scanAlarmJoined(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListReferencing returns every alarm whose measurement list contains the id.
func (r *AlarmRepository) ListReferencing(ctx context.Context, measurementID int64) ([]alarms.Alarm, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT id, gas_type_id, status, measurement_count, measurement_ids,
	ref_threshold, created_at, updated_at
FROM alarms
WHERE measurement_ids @> to_jsonb($1::bigint)
ORDER BY id
FOR UPDATE`, measurementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		alarm, err := scanAlarmBare(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes an alarm and reports whether a row existed.
func (r *AlarmRepository) Delete(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.q == nil {
		return false, errors.New("alarm repo: nil db")
	}
	result, err := r.q.ExecContext(ctx, `DELETE FROM alarms WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func encodeIDs(ids []int64) ([]byte, error) {
	if ids == nil {
		ids = []int64{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("alarm repo: encode measurement ids: %w", err)
	}
	return encoded, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarmBare(row rowScanner) (*alarms.Alarm, error) {
	var (
		alarm     alarms.Alarm
		rawIDs    []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&alarm.ID,
		&alarm.GasTypeID,
		&alarm.Status,
		&alarm.Count,
		&rawIDs,
		&alarm.RefThreshold,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeAlarmTail(&alarm, rawIDs, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &alarm, nil
}

func scanAlarmJoined(row rowScanner) (*alarms.Alarm, error) {
	var (
		alarm      alarms.Alarm
		rawIDs     []byte
		createdAt  time.Time
		updatedAt  time.Time
		gasID      sql.NullInt64
		gasName    sql.NullString
		gasFormula sql.NullString
		gasUnit    sql.NullString
		sensorCode sql.NullString
	)
	if err := row.Scan(
		&alarm.ID,
		&alarm.GasTypeID,
		&alarm.Status,
		&alarm.Count,
		&rawIDs,
		&alarm.RefThreshold,
		&createdAt,
		&updatedAt,
		&gasID,
		&gasName,
		&gasFormula,
		&gasUnit,
		&sensorCode,
	); err != nil {
		return nil, err
	}
	if err := decodeAlarmTail(&alarm, rawIDs, createdAt, updatedAt); err != nil {
		return nil, err
	}
	if gasID.Valid {
		gasType := gases.GasType{ID: gasID.Int64, Name: gasName.String, Formula: gasFormula.String}
		if gasUnit.Valid {
			gasType.Unit = &gasUnit.String
		}
		if sensorCode.Valid {
			gasType.SensorCode = &sensorCode.String
		}
		alarm.GasType = &gasType
	}
	return &alarm, nil
}

func decodeAlarmTail(alarm *alarms.Alarm, rawIDs []byte, createdAt, updatedAt time.Time) error {
	alarm.MeasurementIDs = []int64{}
	if len(rawIDs) > 0 {
		if err := json.Unmarshal(rawIDs, &alarm.MeasurementIDs); err != nil {
			return fmt.Errorf("alarm repo: decode measurement ids: %w", err)
		}
	}
	alarm.CreatedAt = jsontime.At(createdAt.UTC())
	alarm.UpdatedAt = jsontime.At(updatedAt.UTC())
	return nil
}
