package gases

import "context"

// GasType is static reference data for one monitored gas. Seeded at startup
// and never created by request paths.
type GasType struct {
	ID         int64   `json:"id"`
	Name       string  `json:"nombre"`
	Formula    string  `json:"formulaQuimica"`
	Unit       *string `json:"unidadMedida"`
	SensorCode *string `json:"codigoSensor"`
}

// Store provides read access to gas types plus the idempotent seed.
type Store interface {
	Seed(ctx context.Context, types []GasType) error
	GetByID(ctx context.Context, id int64) (*GasType, error)
	List(ctx context.Context) ([]GasType, error)
}

// DefaultGasTypes are the gases the MQ-2 family sensor reports.
func DefaultGasTypes() []GasType {
	ppm := "ppm"
	return []GasType{
		{ID: 1, Name: "Monóxido de Carbono", Formula: "CO", Unit: &ppm},
		{ID: 2, Name: "Alcohol", Formula: "AL", Unit: &ppm},
		{ID: 3, Name: "Hidrógeno", Formula: "H2", Unit: &ppm},
		{ID: 4, Name: "Metano", Formula: "CH4", Unit: &ppm},
		{ID: 5, Name: "Gas Licuado de Petróleo", Formula: "LPG", Unit: &ppm},
	}
}
