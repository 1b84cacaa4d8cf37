package orders

import (
	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
)

// Order result statuses. Generating means the charge exists but the PIX
// payload was not ready within the retry budget.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
)

type CustomerInput struct {
	Name  string
	Email string
	Phone string
	CPF   string
}

type CreateOrderInput struct {
	PlateQueryID uuid.UUID
	Customer     CustomerInput
	Attribution  payloads.Attribution
}

type CreateOrderResult struct {
	OrderID           uuid.UUID `json:"orderId"`
	PaymentID         string    `json:"paymentId"`
	PublicAccessToken string    `json:"publicAccessToken"`
	PixQRCode         *string   `json:"pixQrCode,omitempty"`
	PixCopyPaste      *string   `json:"pixCopyPaste,omitempty"`
	Status            string    `json:"status"`
}

// PollInput identifies an order by its id or its gateway payment id.
type PollInput struct {
	OrderID   uuid.UUID
	PaymentID string
}

type PollResult struct {
	Status            string    `json:"status"`
	IsPaid            bool      `json:"isPaid"`
	OrderID           uuid.UUID `json:"orderId"`
	PublicAccessToken string    `json:"publicAccessToken"`
	PixQRCode         *string   `json:"pixQrCode,omitempty"`
	PixCopyPaste      *string   `json:"pixCopyPaste,omitempty"`
}
