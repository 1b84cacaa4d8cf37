package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

// PlateQuery is one provider lookup of a normalized plate.
type PlateQuery struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Plate       string                 `gorm:"column:plate;not null"`
	Preview     types.PlatePreview     `gorm:"column:preview;type:jsonb;serializer:json;not null"`
	RawResponse json.RawMessage        `gorm:"column:raw_response;type:jsonb;not null"`
	CostCents   int64                  `gorm:"column:cost_cents;not null;default:0"`
	Status      enums.PlateQueryStatus `gorm:"column:status;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt   time.Time              `gorm:"column:expires_at;not null"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (PlateQuery) TableName() string { return "plate_queries" }

// Fresh reports whether the row is still a cache candidate at now.
func (p PlateQuery) Fresh(now time.Time) bool {
	return p.ExpiresAt.After(now)
}
