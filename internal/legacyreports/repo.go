package legacyreports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/repo"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
)

// Repository persists protocol-based reports and their charges. Finders
// return nil, nil when nothing matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateReport(ctx context.Context, report *models.VehicleReport) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindReport(ctx context.Context, id uuid.UUID) (*models.VehicleReport, error)
	FindPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	FindPaymentByReport(ctx context.Context, reportID uuid.UUID) (*models.Payment, error)
	MarkPaymentPaid(ctx context.Context, id uuid.UUID, status string, paidAt time.Time) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status string) error
	SavePaymentQRCode(ctx context.Context, id uuid.UUID, image, payload string) error
	StartProcessing(ctx context.Context, reportID uuid.UUID, protocol string) (bool, error)
	Complete(ctx context.Context, reportID uuid.UUID, data json.RawMessage, completedAt time.Time) (bool, error)
	Fail(ctx context.Context, reportID uuid.UUID, message string) error
	ListAdvanceable(ctx context.Context, updatedBefore time.Time, limit int) ([]models.VehicleReport, error)
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

func (r *repository) CreateReport(ctx context.Context, report *models.VehicleReport) error {
	return r.DB(ctx).Create(report).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) FindReport(ctx context.Context, id uuid.UUID) (*models.VehicleReport, error) {
	var report models.VehicleReport
	err := r.DB(ctx).Where("id = ?", id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) FindPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	return r.payment(ctx, "gateway_payment_id = ?", gatewayPaymentID)
}

func (r *repository) FindPaymentByReport(ctx context.Context, reportID uuid.UUID) (*models.Payment, error) {
	return r.payment(ctx, "vehicle_report_id = ?", reportID)
}

func (r *repository) payment(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).Where(query, arg).Order("created_at DESC").First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaymentPaid stamps paid_at once; only the first caller gets true.
func (r *repository) MarkPaymentPaid(ctx context.Context, id uuid.UUID, status string, paidAt time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Payment{}).
		Where("id = ? AND paid_at IS NULL", id).
		Updates(map[string]any{"status": status, "paid_at": paidAt})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.DB(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("status", status).Error
}

func (r *repository) SavePaymentQRCode(ctx context.Context, id uuid.UUID, image, payload string) error {
	return r.DB(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"pix_qr_code": image, "pix_copy_paste": payload}).Error
}

// StartProcessing records the provider protocol of a paid report.
func (r *repository) StartProcessing(ctx context.Context, reportID uuid.UUID, protocol string) (bool, error) {
	res := r.DB(ctx).Model(&models.VehicleReport{}).
		Where("id = ? AND status = ?", reportID, enums.LegacyReportPendingPayment).
		Updates(map[string]any{"status": enums.LegacyReportProcessing, "protocol": protocol})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Complete(ctx context.Context, reportID uuid.UUID, data json.RawMessage, completedAt time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.VehicleReport{}).
		Where("id = ? AND status = ?", reportID, enums.LegacyReportProcessing).
		Updates(map[string]any{
			"status":       enums.LegacyReportCompleted,
			"report_data":  data,
			"completed_at": completedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Fail(ctx context.Context, reportID uuid.UUID, message string) error {
	return r.DB(ctx).Model(&models.VehicleReport{}).
		Where("id = ? AND status = ?", reportID, enums.LegacyReportProcessing).
		Updates(map[string]any{"status": enums.LegacyReportFailed, "error_message": message}).Error
}

// ListAdvanceable returns reports the poller can move: those waiting on a
// protocol, and paid ones whose protocol request never went through.
func (r *repository) ListAdvanceable(ctx context.Context, updatedBefore time.Time, limit int) ([]models.VehicleReport, error) {
	paid := r.DB(ctx).Model(&models.Payment{}).
		Select("1").
		Where("payments.vehicle_report_id = vehicle_reports.id AND payments.paid_at IS NOT NULL")
	var reports []models.VehicleReport
	err := r.DB(ctx).
		Where("vehicle_reports.updated_at < ?", updatedBefore).
		Where(r.DB(ctx).
			Where("vehicle_reports.status = ?", enums.LegacyReportProcessing).
			Or("vehicle_reports.status = ? AND EXISTS (?)", enums.LegacyReportPendingPayment, paid)).
		Order("vehicle_reports.updated_at ASC").
		Limit(limit).
		Find(&reports).Error
	return reports, err
}
