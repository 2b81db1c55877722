package alarms

import (
	"context"
	"time"

	gases "gasmonitor-cloud/internal/gases/domain"
	"gasmonitor-cloud/internal/jsontime"
)

// Alarm states. A closed alarm is terminal: a later breach for the same gas
// type opens a new alarm instead of reopening the old one.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Alarm represents one continuous run of threshold breaches for a gas type.
type Alarm struct {
	ID             int64          `json:"id"`
	GasTypeID      int64          `json:"idTipoGas"`
	Status         string         `json:"estado"`
	Count          int            `json:"nMedidas"`
	MeasurementIDs []int64        `json:"listaIdMedidas"`
	RefThreshold   float64        `json:"umbralReferencia"`
	CreatedAt      jsontime.Time  `json:"creadaEn"`
	UpdatedAt      jsontime.Time  `json:"actualizadaEn"`
	GasType        *gases.GasType `json:"tipoDeGas,omitempty"`
}

// IsOpen reports whether the alarm still accepts breaches.
func (a *Alarm) IsOpen() bool {
	return a != nil && a.Status == StatusOpen
}

// AddMeasurement appends a contributing measurement in detection order.
func (a *Alarm) AddMeasurement(measurementID int64, at time.Time) {
	a.MeasurementIDs = append(a.MeasurementIDs, measurementID)
	a.Count = len(a.MeasurementIDs)
	a.UpdatedAt = jsontime.At(at)
}

// RemoveMeasurement drops a contributing measurement and recounts. When the
// list empties the alarm transitions to closed. Returns whether this call
// closed it.
func (a *Alarm) RemoveMeasurement(measurementID int64, at time.Time) bool {
	kept := a.MeasurementIDs[:0]
	for _, id := range a.MeasurementIDs {
		if id != measurementID {
			kept = append(kept, id)
		}
	}
	a.MeasurementIDs = kept
	a.Count = len(kept)
	a.UpdatedAt = jsontime.At(at)
	if a.Count == 0 && a.Status == StatusOpen {
		a.Status = StatusClosed
		return true
	}
	return false
}

// StripGasType returns a copy without the gas-type relation, the shape
// snapshot alarm lists are persisted in.
func (a Alarm) StripGasType() Alarm {
	a.GasType = nil
	return a
}

// NormalizeStatus maps legacy state names onto the canonical ones. Unknown
// values pass through so filters on them simply match nothing.
func NormalizeStatus(value string) string {
	switch value {
	case "abierta":
		return StatusOpen
	case "cerrada":
		return StatusClosed
	default:
		return value
	}
}

// Filter narrows an alarm listing. Nil fields are not applied; time bounds
// are inclusive on creation timestamp.
type Filter struct {
	GasTypeID *int64
	Start     *time.Time
	End       *time.Time
	States    []string
}

// Store persists alarms.
type Store interface {
	// FindOpenByGas returns the newest open alarm for the gas type, locking
	// the row when running inside a transaction. Nil when none is open.
	FindOpenByGas(ctx context.Context, gasTypeID int64) (*Alarm, error)
	GetByID(ctx context.Context, id int64) (*Alarm, error)
	Create(ctx context.Context, alarm *Alarm) error
	// Update rewrites status, count, measurement list and updated timestamp.
	Update(ctx context.Context, alarm *Alarm) error
	// CloseIfOpen transitions the alarm to closed only while it is still
	// open, and reports whether the transition happened.
	CloseIfOpen(ctx context.Context, id int64, at time.Time) (bool, error)
	List(ctx context.Context, filter Filter) ([]Alarm, error)
	// ListReferencing returns every alarm whose measurement list contains
	// the given measurement id.
	ListReferencing(ctx context.Context, measurementID int64) ([]Alarm, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
