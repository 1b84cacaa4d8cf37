package customers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/repo"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/pagination"
)

// Repository persists CRM rows and reads the order aggregates the admin
// dashboard needs.
type Repository interface {
	Create(ctx context.Context, customer *models.Customer) error
	ExistsForPayment(ctx context.Context, gatewayPaymentID string) (bool, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Customer, error)
	FindOrderByPayment(ctx context.Context, gatewayPaymentID string) (*models.Order, error)
	FindPlate(ctx context.Context, plateQueryID uuid.UUID) (string, error)
	SummarizeOrders(ctx context.Context, from, to time.Time) (*OrderTotals, error)
}

// OrderTotals is the raw aggregate behind a sales summary.
type OrderTotals struct {
	Orders            int64
	PaidOrders        int64
	RevenueCents      int64
	ProviderCostCents int64
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.DB(ctx).Create(customer).Error
}

func (r *repository) ExistsForPayment(ctx context.Context, gatewayPaymentID string) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Customer{}).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.DB(ctx).Where("order_id = ?", orderID).Order("created_at ASC").First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// List returns customers newest first, fetching one extra row so the caller
// can tell whether another page exists.
func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Customer, error) {
	q := r.DB(ctx).Model(&models.Customer{})
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Customer
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindOrderByPayment(ctx context.Context, gatewayPaymentID string) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindPlate(ctx context.Context, plateQueryID uuid.UUID) (string, error) {
	var pq models.PlateQuery
	err := r.DB(ctx).Select("plate").Where("id = ?", plateQueryID).First(&pq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return pq.Plate, err
}

func (r *repository) SummarizeOrders(ctx context.Context, from, to time.Time) (*OrderTotals, error) {
	var totals OrderTotals
	err := r.DB(ctx).Model(&models.Order{}).
		Select(`COUNT(*) AS orders,
			COALESCE(SUM(CASE WHEN payment_status = ? THEN 1 ELSE 0 END), 0) AS paid_orders,
			COALESCE(SUM(CASE WHEN payment_status = ? THEN amount_cents ELSE 0 END), 0) AS revenue_cents,
			COALESCE(SUM(provider_cost_total_cents), 0) AS provider_cost_cents`,
			enums.OrderPaymentPaid, enums.OrderPaymentPaid).
		Where("created_at >= ? AND created_at < ?", from, to).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
