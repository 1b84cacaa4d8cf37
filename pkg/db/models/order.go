package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
)

// Order is one purchase attempt of a plate query report.
type Order struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	PlateQueryID           uuid.UUID                `gorm:"column:plate_query_id;type:uuid;not null"`
	GatewayPaymentID       string                   `gorm:"column:gateway_payment_id;not null"`
	GatewayCustomerID      string                   `gorm:"column:gateway_customer_id;not null"`
	AmountCents            int64                    `gorm:"column:amount_cents;not null"`
	ProviderCostTotalCents int64                    `gorm:"column:provider_cost_total_cents;not null;default:0"`
	PaymentStatus          enums.OrderPaymentStatus `gorm:"column:payment_status;not null"`
	PaidAt                 *time.Time               `gorm:"column:paid_at"`
	PublicAccessToken      string                   `gorm:"column:public_access_token;not null"`
	PixQRCode              *string                  `gorm:"column:pix_qr_code"`
	PixCopyPaste           *string                  `gorm:"column:pix_copy_paste"`
	DueDate                time.Time                `gorm:"column:due_date;type:date;not null"`
	CustomerName           string                   `gorm:"column:customer_name;not null"`
	CustomerEmail          string                   `gorm:"column:customer_email;not null"`
	CustomerPhone          string                   `gorm:"column:customer_phone;not null"`
	CustomerCPF            string                   `gorm:"column:customer_cpf;not null"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (o Order) IsPaid() bool {
	return o.PaymentStatus == enums.OrderPaymentPaid
}

// HasQRCode reports whether the PIX payload was already cached.
func (o Order) HasQRCode() bool {
	return o.PixCopyPaste != nil && *o.PixCopyPaste != ""
}
