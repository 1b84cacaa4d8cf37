package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/customers"
	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the Asaas client checkout uses.
type Gateway interface {
	EnsureCustomer(ctx context.Context, params asaas.CustomerParams) (*asaas.Customer, error)
	CreatePixCharge(ctx context.Context, params asaas.PixChargeParams) (*asaas.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*asaas.Payment, error)
	GetPixQRCode(ctx context.Context, paymentID string) (*asaas.PixQRCode, error)
}

// SaleRecorder mirrors each sale into the CRM.
type SaleRecorder interface {
	RecordSale(ctx context.Context, sale customers.Sale) error
	AttributionFor(ctx context.Context, orderID uuid.UUID) (payloads.Attribution, error)
}

// Enricher runs the paid-tier lookups of an order.
type Enricher interface {
	EnrichOrder(ctx context.Context, orderID uuid.UUID) error
}
