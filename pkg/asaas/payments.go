package asaas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/money"
)

const (
	billingTypePix = "PIX"
	dateLayout     = "2006-01-02"
)

// PixChargeParams describes a fixed-price PIX charge.
type PixChargeParams struct {
	CustomerID        string
	AmountCents       int64
	DueDate           time.Time
	Description       string
	ExternalReference string
}

type createPaymentRequest struct {
	Customer          string      `json:"customer"`
	BillingType       string      `json:"billingType"`
	Value             json.Number `json:"value"`
	DueDate           string      `json:"dueDate"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
}

type Payment struct {
	ID                string                     `json:"id"`
	Customer          string                     `json:"customer"`
	Status            enums.GatewayPaymentStatus `json:"status"`
	Value             decimal.Decimal            `json:"value"`
	BillingType       string                     `json:"billingType"`
	DueDate           string                     `json:"dueDate"`
	PaymentDate       string                     `json:"paymentDate"`
	ConfirmedDate     string                     `json:"confirmedDate"`
	ExternalReference string                     `json:"externalReference"`
	Description       string                     `json:"description"`
	DateCreated       string                     `json:"dateCreated"`
}

// AmountCents converts the gateway's reais value.
func (p Payment) AmountCents() int64 {
	return money.Cents(p.Value)
}

func (p Payment) IsPaid() bool {
	return p.Status.IsPaid()
}

// PixQRCode is the PIX payload of a charge.
type PixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

// PaymentPage is one page of ListPayments.
type PaymentPage struct {
	Data       []Payment `json:"data"`
	HasMore    bool      `json:"hasMore"`
	TotalCount int       `json:"totalCount"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
}

// ListPaymentsParams filters ListPayments.
type ListPaymentsParams struct {
	Status enums.GatewayPaymentStatus
	Offset int
	Limit  int
}

func (c *Client) CreatePixCharge(ctx context.Context, params PixChargeParams) (*Payment, error) {
	req := createPaymentRequest{
		Customer:          params.CustomerID,
		BillingType:       billingTypePix,
		Value:             json.Number(money.Reais(params.AmountCents).StringFixed(2)),
		DueDate:           params.DueDate.Format(dateLayout),
		Description:       params.Description,
		ExternalReference: params.ExternalReference,
	}
	c.log(ctx, "request", "create_payment", map[string]any{
		"customer_id":        params.CustomerID,
		"amount_cents":       params.AmountCents,
		"external_reference": params.ExternalReference,
	})

	var out Payment
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", nil, req, &out); err != nil {
		return nil, err
	}
	c.log(ctx, "response", "create_payment", map[string]any{"payment_id": out.ID, "status": out.Status})
	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, "get_payment", http.MethodGet, "/payments/"+url.PathEscape(strings.TrimSpace(paymentID)), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPixQRCode returns ErrQRCodeNotReady when the charge has no payload yet.
func (c *Client) GetPixQRCode(ctx context.Context, paymentID string) (*PixQRCode, error) {
	var out PixQRCode
	path := "/payments/" + url.PathEscape(strings.TrimSpace(paymentID)) + "/pixQrCode"
	if err := c.do(ctx, "get_pix_qrcode", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Payload) == "" {
		return nil, ErrQRCodeNotReady
	}
	return &out, nil
}

func (c *Client) ListPayments(ctx context.Context, params ListPaymentsParams) (*PaymentPage, error) {
	query := url.Values{}
	if params.Status != "" {
		query.Set("status", params.Status.String())
	}
	query.Set("billingType", billingTypePix)
	query.Set("offset", strconv.Itoa(params.Offset))
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query.Set("limit", strconv.Itoa(limit))

	var page PaymentPage
	if err := c.do(ctx, "list_payments", http.MethodGet, "/payments", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
