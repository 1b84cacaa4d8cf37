package platequery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/repo"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
)

// Repository persists plate lookups. Rows are never deleted; expiry only
// removes them from the cache candidates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pq *models.PlateQuery) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PlateQuery, error)
	FindFresh(ctx context.Context, plate string, now time.Time) (*models.PlateQuery, error)
	Advance(ctx context.Context, id uuid.UUID, to enums.PlateQueryStatus) (bool, error)
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

func (r *repository) Create(ctx context.Context, pq *models.PlateQuery) error {
	return r.DB(ctx).Create(pq).Error
}

// FindByID returns nil, nil when the row does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PlateQuery, error) {
	var pq models.PlateQuery
	err := r.DB(ctx).Where("id = ?", id).First(&pq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pq, nil
}

// FindFresh returns the newest lookup of plate that has not expired at now.
func (r *repository) FindFresh(ctx context.Context, plate string, now time.Time) (*models.PlateQuery, error) {
	var pq models.PlateQuery
	err := r.DB(ctx).
		Where("plate = ? AND expires_at > ?", plate, now).
		Order("created_at DESC").
		First(&pq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pq, nil
}

// Advance moves the status forward only. It reports whether the row changed.
func (r *repository) Advance(ctx context.Context, id uuid.UUID, to enums.PlateQueryStatus) (bool, error) {
	res := r.DB(ctx).Model(&models.PlateQuery{}).
		Where("id = ? AND status IN ?", id, to.Predecessors()).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}
