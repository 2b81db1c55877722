package snapshots

import (
	"context"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/jsontime"
)

// GasCount is the per-gas bucket inside a snapshot. Name is null when the
// alarm carried no gas-type relation.
type GasCount struct {
	Name  *string `json:"nombre"`
	Count int     `json:"cantidad"`
}

// Summary is the computed aggregate for one reference day. AlarmList is nil
// (serialized as null) unless the caller asked for it; entries are stripped
// of their gas-type relation.
type Summary struct {
	TotalActivations int                 `json:"totalActivaciones"`
	CountsByGas      map[string]GasCount `json:"conteoPorGas"`
	AlarmList        []alarms.Alarm      `json:"listaAlarmas"`
}

// DailySnapshot is the persisted snapshot row, keyed by reference day.
type DailySnapshot struct {
	ID            int64         `json:"id"`
	ReferenceDate jsontime.Time `json:"fechaReferencia"`
	Summary
	GeneratedAt jsontime.Time `json:"generadoEn"`
}

// Store upserts and reads daily snapshots. One row per reference day.
type Store interface {
	Upsert(ctx context.Context, snap *DailySnapshot) error
	FindByDay(ctx context.Context, day time.Time) (*DailySnapshot, error)
}

// StartOfDay truncates to local calendar-day start in the given location.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay is the last representable millisecond of the day.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999*int(time.Millisecond), loc)
}
