package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/jsontime"
	snapshots "gasmonitor-cloud/internal/snapshots/domain"
)

const dayLayout = "2006-01-02"

// SnapshotRepository is a Postgres repository for daily alarm snapshots,
// keyed by reference day. A SQL NULL alarm_list expresses "list not
// requested" without any sentinel value.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository constructs a repository.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert inserts the snapshot for its reference day or overwrites the
// existing row, refreshing the generation timestamp.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *snapshots.DailySnapshot) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	if snap == nil {
		return errors.New("snapshot repo: nil snapshot")
	}
	if snap.ReferenceDate.IsZero() {
		return errors.New("snapshot repo: missing reference date")
	}

	counts, err := json.Marshal(snap.CountsByGas)
	if err != nil {
		return fmt.Errorf("snapshot repo: encode counts: %w", err)
	}
	var alarmList any
	if snap.AlarmList != nil {
		encoded, err := json.Marshal(snap.AlarmList)
		if err != nil {
			return fmt.Errorf("snapshot repo: encode alarm list: %w", err)
		}
		alarmList = encoded
	}
	if snap.GeneratedAt.IsZero() {
		snap.GeneratedAt = jsontime.Now()
	}

	return r.db.QueryRowContext(ctx, `
INSERT INTO alarm_snapshots (reference_date, total_activations, counts_by_gas, alarm_list, generated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (reference_date)
DO UPDATE SET
	total_activations = EXCLUDED.total_activations,
	counts_by_gas = EXCLUDED.counts_by_gas,
	alarm_list = EXCLUDED.alarm_list,
	generated_at = EXCLUDED.generated_at
RETURNING id`,
		snap.ReferenceDate.Format(dayLayout),
		snap.TotalActivations,
		counts,
		alarmList,
		snap.GeneratedAt.UTC(),
	).Scan(&snap.ID)
}

// FindByDay fetches the snapshot for a reference day. Nil when absent.
func (r *SnapshotRepository) FindByDay(ctx context.Context, day time.Time) (*snapshots.DailySnapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, reference_date, total_activations, counts_by_gas, alarm_list, generated_at
FROM alarm_snapshots
WHERE reference_date = $1`, day.Format(dayLayout))

	var (
		snap        snapshots.DailySnapshot
		refDate     time.Time
		rawCounts   []byte
		rawList     []byte
		generatedAt time.Time
	)
	err := row.Scan(&snap.ID, &refDate, &snap.TotalActivations, &rawCounts, &rawList, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap.ReferenceDate = jsontime.At(refDate)
	snap.GeneratedAt = jsontime.At(generatedAt.UTC())
	snap.CountsByGas = map[string]snapshots.GasCount{}
	if len(rawCounts) > 0 {
		if err := json.Unmarshal(rawCounts, &snap.CountsByGas); err != nil {
			return nil, fmt.Errorf("snapshot repo: decode counts: %w", err)
		}
	}
	if len(rawList) > 0 {
		var list []alarms.Alarm
		if err := json.Unmarshal(rawList, &list); err != nil {
			return nil, fmt.Errorf("snapshot repo: decode alarm list: %w", err)
		}
		snap.AlarmList = list
	}
	return &snap, nil
}
