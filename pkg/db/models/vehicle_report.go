package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
)

// VehicleReport is a report bought through the protocol-based checkout.
type VehicleReport struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Plate         string                   `gorm:"column:plate;not null"`
	Status        enums.LegacyReportStatus `gorm:"column:status;not null"`
	Protocol      *string                  `gorm:"column:protocol"`
	ReportData    json.RawMessage          `gorm:"column:report_data;type:jsonb"`
	ErrorMessage  *string                  `gorm:"column:error_message"`
	CustomerName  string                   `gorm:"column:customer_name;not null"`
	CustomerEmail string                   `gorm:"column:customer_email;not null"`
	CustomerPhone string                   `gorm:"column:customer_phone;not null"`
	CustomerCPF   string                   `gorm:"column:customer_cpf;not null"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt   *time.Time               `gorm:"column:completed_at"`
}

// Payment is the gateway charge behind a VehicleReport.
type Payment struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	VehicleReportID   uuid.UUID  `gorm:"column:vehicle_report_id;type:uuid;not null"`
	GatewayPaymentID  string     `gorm:"column:gateway_payment_id;not null"`
	GatewayCustomerID string     `gorm:"column:gateway_customer_id;not null"`
	AmountCents       int64      `gorm:"column:amount_cents;not null"`
	Status            string     `gorm:"column:status;not null"`
	PixQRCode         *string    `gorm:"column:pix_qr_code"`
	PixCopyPaste      *string    `gorm:"column:pix_copy_paste"`
	DueDate           time.Time  `gorm:"column:due_date;type:date;not null"`
	PaidAt            *time.Time `gorm:"column:paid_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
