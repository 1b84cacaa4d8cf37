package payloads

import (
	"time"

	"github.com/google/uuid"
)

// Buyer is the customer snapshot taken at checkout. Consumers hash it before
// it leaves the system.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	CPF   string `json:"cpf"`
}

// Attribution carries the marketing parameters captured with the order.
type Attribution struct {
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	LandingPage string `json:"landing_page,omitempty"`
}

// OrderPaidEvent is emitted once, by the call that flips an order to paid.
type OrderPaidEvent struct {
	OrderID           uuid.UUID   `json:"order_id"`
	PlateQueryID      uuid.UUID   `json:"plate_query_id"`
	Plate             string      `json:"plate"`
	GatewayPaymentID  string      `json:"gateway_payment_id"`
	AmountCents       int64       `json:"amount_cents"`
	ProviderCostCents int64       `json:"provider_cost_cents"`
	PaidAt            time.Time   `json:"paid_at"`
	Buyer             Buyer       `json:"buyer"`
	Attribution       Attribution `json:"attribution"`
}

// ReportEnrichedEvent is emitted when an enrichment first completes.
type ReportEnrichedEvent struct {
	OrderID                uuid.UUID `json:"order_id"`
	PlateQueryID           uuid.UUID `json:"plate_query_id"`
	EnrichmentID           uuid.UUID `json:"enrichment_id"`
	Plate                  string    `json:"plate"`
	FipeCostCents          int64     `json:"fipe_cost_cents"`
	RenainfCostCents       int64     `json:"renainf_cost_cents"`
	ProviderCostTotalCents int64     `json:"provider_cost_total_cents"`
	CompletedAt            time.Time `json:"completed_at"`
}

// LegacyReportPaidEvent mirrors OrderPaidEvent for the protocol-based flow.
type LegacyReportPaidEvent struct {
	ReportID         uuid.UUID `json:"report_id"`
	PaymentID        uuid.UUID `json:"payment_id"`
	Plate            string    `json:"plate"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	AmountCents      int64     `json:"amount_cents"`
	PaidAt           time.Time `json:"paid_at"`
	Buyer            Buyer     `json:"buyer"`
}

// LegacyReportCompletedEvent is emitted when the provider protocol finishes.
type LegacyReportCompletedEvent struct {
	ReportID    uuid.UUID `json:"report_id"`
	Plate       string    `json:"plate"`
	Protocol    string    `json:"protocol"`
	CompletedAt time.Time `json:"completed_at"`
}
