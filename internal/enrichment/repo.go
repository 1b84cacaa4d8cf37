package enrichment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/repo"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
)

// Repository persists enrichment rows, at most one per plate query.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByPlateQuery(ctx context.Context, plateQueryID uuid.UUID) (*models.Enrichment, error)
	Create(ctx context.Context, enrichment *models.Enrichment) error
	SaveResults(ctx context.Context, enrichment *models.Enrichment) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// FindByPlateQuery returns nil, nil when the plate query was never enriched.
func (r *repository) FindByPlateQuery(ctx context.Context, plateQueryID uuid.UUID) (*models.Enrichment, error) {
	var row models.Enrichment
	err := r.DB(ctx).Where("plate_query_id = ?", plateQueryID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, enrichment *models.Enrichment) error {
	return r.DB(ctx).Create(enrichment).Error
}

// SaveResults writes the sub-call columns, including cleared errors.
func (r *repository) SaveResults(ctx context.Context, enrichment *models.Enrichment) error {
	return r.DB(ctx).Model(enrichment).
		Select("fipe_raw", "renainf_raw", "fipe_cost_cents", "renainf_cost_cents",
			"fipe_error", "renainf_error", "completed_at", "updated_at").
		Updates(enrichment).Error
}
