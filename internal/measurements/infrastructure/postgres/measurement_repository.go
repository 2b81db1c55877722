package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gases "gasmonitor-cloud/internal/gases/domain"
	"gasmonitor-cloud/internal/jsontime"
	measurements "gasmonitor-cloud/internal/measurements/domain"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MeasurementRepository is a Postgres repository for measurements.
type MeasurementRepository struct {
	q Querier
}

// NewMeasurementRepository constructs a repository over the shared pool.
func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{q: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *MeasurementRepository) WithTx(tx *sql.Tx) *MeasurementRepository {
	return &MeasurementRepository{q: tx}
}

// Create inserts a measurement and assigns its generated id.
func (r *MeasurementRepository) Create(ctx context.Context, m *measurements.Measurement) error {
	if r == nil || r.q == nil {
		return errors.New("measurement repo: nil db")
	}
	if m == nil {
		return errors.New("measurement repo: nil measurement")
	}
	if m.GasTypeID <= 0 || m.MeasuredAt.IsZero() {
		return errors.New("measurement repo: missing fields")
	}
	return r.q.QueryRowContext(ctx, `
INSERT INTO measurements (gas_type_id, value, threshold, measured_at)
VALUES ($1, $2, $3, $4)
RETURNING id`,
		m.GasTypeID,
		m.Value,
		m.Threshold,
		m.MeasuredAt.UTC(),
	).Scan(&m.ID)
}

// GetByID fetches a measurement by id. Nil when absent.
func (r *MeasurementRepository) GetByID(ctx context.Context, id int64) (*measurements.Measurement, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("measurement repo: nil db")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT m.id, m.gas_type_id, m.value, m.threshold, m.measured_at,
	g.id, g.name, g.formula, g.unit, g.sensor_code
FROM measurements m
LEFT JOIN gas_types g ON g.id = m.gas_type_id
WHERE m.id = $1`, id)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a measurement and reports whether a row existed.
func (r *MeasurementRepository) Delete(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.q == nil {
		return false, errors.New("measurement repo: nil db")
	}
	result, err := r.q.ExecContext(ctx, `DELETE FROM measurements WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// List returns measurements matching the filter, newest capture first, with
// the joined gas-type record.
func (r *MeasurementRepository) List(ctx context.Context, filter measurements.Filter) ([]measurements.Measurement, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("measurement repo: nil db")
	}

	query := `
SELECT m.id, m.gas_type_id, m.value, m.threshold, m.measured_at,
	g.id, g.name, g.formula, g.unit, g.sensor_code
FROM measurements m
LEFT JOIN gas_types g ON g.id = m.gas_type_id
WHERE 1=1`
	var args []any

	if filter.GasTypeID != nil {
		args = append(args, *filter.GasTypeID)
		query += fmt.Sprintf(" AND m.gas_type_id = $%d", len(args))
	}
	if filter.Start != nil {
		args = append(args, filter.Start.UTC())
		query += fmt.Sprintf(" AND m.measured_at >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, filter.End.UTC())
		query += fmt.Sprintf(" AND m.measured_at <= $%d", len(args))
	}
	if filter.Threshold != nil {
		op, err := sqlOp(filter.ThresholdOp)
		if err != nil {
			return nil, err
		}
		args = append(args, *filter.Threshold)
		query += fmt.Sprintf(" AND m.threshold %s $%d", op, len(args))
	}
	if filter.Value != nil {
		op, err := sqlOp(filter.ValueOp)
		if err != nil {
			return nil, err
		}
		args = append(args, *filter.Value)
		query += fmt.Sprintf(" AND m.value %s $%d", op, len(args))
	}
	query += " ORDER BY m.measured_at DESC, m.id DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []measurements.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func sqlOp(op measurements.Op) (string, error) {
	switch op {
	case measurements.OpGTE:
		return ">=", nil
	case measurements.OpLTE:
		return "<=", nil
	case measurements.OpEQ:
		return "=", nil
	default:
		return "", fmt.Errorf("measurement repo: unsupported operator %q", op)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (*measurements.Measurement, error) {
	var (
		m          measurements.Measurement
		measuredAt time.Time
		gasID      sql.NullInt64
		gasName    sql.NullString
		gasFormula sql.NullString
		gasUnit    sql.NullString
		sensorCode sql.NullString
	)
	if err := row.Scan(
		&m.ID,
		&m.GasTypeID,
		&m.Value,
		&m.Threshold,
		&measuredAt,
		&gasID,
		&gasName,
		&gasFormula,
		&gasUnit,
		&sensorCode,
	); err != nil {
		return nil, err
	}
	m.MeasuredAt = jsontime.At(measuredAt.UTC())
	if gasID.Valid {
		gasType := gases.GasType{ID: gasID.Int64, Name: gasName.String, Formula: gasFormula.String}
		if gasUnit.Valid {
			gasType.Unit = &gasUnit.String
		}
		if sensorCode.Valid {
			gasType.SensorCode = &sensorCode.String
		}
		m.GasType = &gasType
	}
	return &m, nil
}
