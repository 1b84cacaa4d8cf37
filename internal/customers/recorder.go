package customers

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	dbpkg "github.com/placaexpress/vehicle-report-backend/pkg/db"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/taxid"
)

// Sale is what checkout knows about a buyer when the charge is created.
type Sale struct {
	Name              string
	Email             string
	Phone             string
	CPF               string
	Plate             string
	AmountCents       int64
	OrderID           uuid.UUID
	GatewayPaymentID  string
	GatewayCustomerID string
	Attribution       payloads.Attribution
}

// Recorder writes the CRM row of each sale. A payment is recorded once.
type Recorder struct {
	repo Repository
	logg *logger.Logger
}

func NewRecorder(repo Repository, logg *logger.Logger) (*Recorder, error) {
	if repo == nil {
		return nil, errors.New("customers repository required")
	}
	return &Recorder{repo: repo, logg: logg}, nil
}

func (r *Recorder) RecordSale(ctx context.Context, sale Sale) error {
	customer := &models.Customer{
		Name:              strings.TrimSpace(sale.Name),
		Email:             strings.ToLower(strings.TrimSpace(sale.Email)),
		Phone:             taxid.Digits(sale.Phone),
		CPF:               taxid.Digits(sale.CPF),
		Plate:             sale.Plate,
		AmountCents:       sale.AmountCents,
		GatewayCustomerID: sale.GatewayCustomerID,
		UTMSource:         optional(sale.Attribution.UTMSource),
		UTMMedium:         optional(sale.Attribution.UTMMedium),
		UTMCampaign:       optional(sale.Attribution.UTMCampaign),
		UTMTerm:           optional(sale.Attribution.UTMTerm),
		UTMContent:        optional(sale.Attribution.UTMContent),
		Referrer:          optional(sale.Attribution.Referrer),
		LandingPage:       optional(sale.Attribution.LandingPage),
		Source:            enums.CustomerSourceCheckout,
	}
	if sale.OrderID != uuid.Nil {
		id := sale.OrderID
		customer.OrderID = &id
	}
	customer.GatewayPaymentID = optional(sale.GatewayPaymentID)

	if err := r.repo.Create(ctx, customer); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil
		}
		return err
	}
	if r.logg != nil {
		r.logg.Info(r.logg.WithField(ctx, "customer_id", customer.ID.String()), "sale recorded")
	}
	return nil
}

// AttributionFor returns the marketing attribution captured with the order's
// sale. The zero value is returned when no CRM row exists.
func (r *Recorder) AttributionFor(ctx context.Context, orderID uuid.UUID) (payloads.Attribution, error) {
	customer, err := r.repo.FindByOrderID(ctx, orderID)
	if err != nil || customer == nil {
		return payloads.Attribution{}, err
	}
	return payloads.Attribution{
		UTMSource:   deref(customer.UTMSource),
		UTMMedium:   deref(customer.UTMMedium),
		UTMCampaign: deref(customer.UTMCampaign),
		UTMTerm:     deref(customer.UTMTerm),
		UTMContent:  deref(customer.UTMContent),
		Referrer:    deref(customer.Referrer),
		LandingPage: deref(customer.LandingPage),
	}, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
