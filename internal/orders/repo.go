package orders

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

// Repository persists orders. Finders return nil, nil when nothing matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Order, error)
	FindByAccessToken(ctx context.Context, token string) (*models.Order, error)
	FindPaidByPlateQuery(ctx context.Context, plateQueryID uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	SaveQRCode(ctx context.Context, id uuid.UUID, image, payload string) error
	AddProviderCost(ctx context.Context, id uuid.UUID, cents int64) error
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindByPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Order, error) {
	return r.first(ctx, "gateway_payment_id = ?", gatewayPaymentID)
}

func (r *repository) FindByAccessToken(ctx context.Context, token string) (*models.Order, error) {
	return r.first(ctx, "public_access_token = ?", token)
}

func (r *repository) FindPaidByPlateQuery(ctx context.Context, plateQueryID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Where("plate_query_id = ? AND payment_status = ?", plateQueryID, enums.OrderPaymentPaid).
		Order("paid_at ASC").
		First(&order).Error
	return found(&order, err)
}

// MarkPaid flips a pending order to paid. Only the caller that changed the
// row gets true.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, enums.OrderPaymentPending).
		Updates(map[string]any{
			"payment_status": enums.OrderPaymentPaid,
			"paid_at":        paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SaveQRCode(ctx context.Context, id uuid.UUID, image, payload string) error {
	return r.DB(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"pix_qr_code":    image,
			"pix_copy_paste": payload,
		}).Error
}

func (r *repository) AddProviderCost(ctx context.Context, id uuid.UUID, cents int64) error {
	if cents == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumn("provider_cost_total_cents", gorm.Expr("provider_cost_total_cents + ?", cents)).Error
}

func (r *repository) first(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).Where(query, arg).First(&order).Error
	return found(&order, err)
}

func found(order *models.Order, err error) (*models.Order, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}
