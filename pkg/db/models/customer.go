package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
)

// Customer is the CRM record of a sale.
type Customer struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name              string               `gorm:"column:name;not null"`
	Email             string               `gorm:"column:email"`
	Phone             string               `gorm:"column:phone"`
	CPF               string               `gorm:"column:cpf"`
	Plate             string               `gorm:"column:plate"`
	AmountCents       int64                `gorm:"column:amount_cents;not null;default:0"`
	OrderID           *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	GatewayPaymentID  *string              `gorm:"column:gateway_payment_id"`
	GatewayCustomerID string               `gorm:"column:gateway_customer_id"`
	UTMSource         *string              `gorm:"column:utm_source"`
	UTMMedium         *string              `gorm:"column:utm_medium"`
	UTMCampaign       *string              `gorm:"column:utm_campaign"`
	UTMTerm           *string              `gorm:"column:utm_term"`
	UTMContent        *string              `gorm:"column:utm_content"`
	Referrer          *string              `gorm:"column:referrer"`
	LandingPage       *string              `gorm:"column:landing_page"`
	Source            enums.CustomerSource `gorm:"column:source;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
}
