package measurements

import (
	"context"
	"time"

	gases "gasmonitor-cloud/internal/gases/domain"
	"gasmonitor-cloud/internal/jsontime"
)

// Measurement is one accepted gas reading. Created only by the ingestion
// pipeline and never mutated afterwards.
type Measurement struct {
	ID         int64          `json:"id"`
	GasTypeID  int64          `json:"idTipoGas"`
	Value      float64        `json:"valor"`
	Threshold  float64        `json:"umbral"`
	MeasuredAt jsontime.Time  `json:"fechaMedida"`
	GasType    *gases.GasType `json:"tipoDeGas,omitempty"`
}

// Op is a comparison operator for numeric filters.
type Op string

// Supported comparison operators.
const (
	OpGTE Op = "gte"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
)

// Valid reports whether the operator is one this store understands.
func (op Op) Valid() bool {
	switch op {
	case OpGTE, OpLTE, OpEQ:
		return true
	default:
		return false
	}
}

// Filter narrows a measurement listing. Nil fields are not applied.
type Filter struct {
	GasTypeID   *int64
	Start       *time.Time
	End         *time.Time
	Threshold   *float64
	ThresholdOp Op
	Value       *float64
	ValueOp     Op
}

// Store persists measurements. Implementations bound to a transaction take
// part in the ingestion pipeline's per-batch atomicity.
type Store interface {
	Create(ctx context.Context, m *Measurement) error
	GetByID(ctx context.Context, id int64) (*Measurement, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, filter Filter) ([]Measurement, error)
}
