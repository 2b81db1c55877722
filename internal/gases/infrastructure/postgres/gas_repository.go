package postgres

import (
	"context"
	"database/sql"
	"errors"

	gases "gasmonitor-cloud/internal/gases/domain"
)

// GasRepository is a Postgres repository for gas-type reference data.
type GasRepository struct {
	db *sql.DB
}

// NewGasRepository constructs a repository.
func NewGasRepository(db *sql.DB) *GasRepository {
	return &GasRepository{db: db}
}

// Seed inserts the reference gas types, leaving existing rows untouched.
func (r *GasRepository) Seed(ctx context.Context, types []gases.GasType) error {
	if r == nil || r.db == nil {
		return errors.New("gas repo: nil db")
	}
	for _, gasType := range types {
		if gasType.ID <= 0 || gasType.Name == "" {
			return errors.New("gas repo: invalid gas type")
		}
		if _, err := r.db.ExecContext(ctx, `
INSERT INTO gas_types (id, name, formula, unit, sensor_code)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`,
			gasType.ID,
			gasType.Name,
			gasType.Formula,
			nullableString(gasType.Unit),
			nullableString(gasType.SensorCode),
		); err != nil {
			return err
		}
	}
	return nil
}

// GetByID fetches a gas type. Nil when absent.
func (r *GasRepository) GetByID(ctx context.Context, id int64) (*gases.GasType, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("gas repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, formula, unit, sensor_code
FROM gas_types
WHERE id = $1`, id)
	gasType, err := scanGasType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return gasType, nil
}

// List returns all gas types ordered by id.
func (r *GasRepository) List(ctx context.Context) ([]gases.GasType, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("gas repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, formula, unit, sensor_code
FROM gas_types
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []gases.GasType
	for rows.Next() {
		gasType, err := scanGasType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *gasType)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func scanGasType(row interface{ Scan(dest ...any) error }) (*gases.GasType, error) {
	var (
		gasType    gases.GasType
		unit       sql.NullString
		sensorCode sql.NullString
	)
	if err := row.Scan(&gasType.ID, &gasType.Name, &gasType.Formula, &unit, &sensorCode); err != nil {
		return nil, err
	}
	if unit.Valid {
		gasType.Unit = &unit.String
	}
	if sensorCode.Valid {
		gasType.SensorCode = &sensorCode.String
	}
	return &gasType, nil
}
