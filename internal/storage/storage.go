// Package storage defines the transactional boundary the ingestion pipeline
// and deletion paths run inside.
package storage

import (
	"context"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	measurements "gasmonitor-cloud/internal/measurements/domain"
)

// Stores exposes the per-transaction store handles.
type Stores interface {
	Measurements() measurements.Store
	Alarms() alarms.Store
}

// UnitOfWork runs fn atomically: every store operation inside fn is applied
// completely or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
