package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enrichment holds the paid-tier provider calls of a plate query. At most one
// row exists per plate query.
type Enrichment struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PlateQueryID     uuid.UUID       `gorm:"column:plate_query_id;type:uuid;not null;uniqueIndex"`
	FipeRaw          json.RawMessage `gorm:"column:fipe_raw;type:jsonb"`
	RenainfRaw       json.RawMessage `gorm:"column:renainf_raw;type:jsonb"`
	FipeCostCents    int64           `gorm:"column:fipe_cost_cents;not null;default:0"`
	RenainfCostCents int64           `gorm:"column:renainf_cost_cents;not null;default:0"`
	FipeError        *string         `gorm:"column:fipe_error"`
	RenainfError     *string         `gorm:"column:renainf_error"`
	CompletedAt      *time.Time      `gorm:"column:completed_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (e Enrichment) Complete() bool {
	return e.CompletedAt != nil
}

func (e Enrichment) HasFipe() bool {
	return len(e.FipeRaw) > 0 && string(e.FipeRaw) != "null"
}

func (e Enrichment) HasRenainf() bool {
	return len(e.RenainfRaw) > 0 && string(e.RenainfRaw) != "null"
}
