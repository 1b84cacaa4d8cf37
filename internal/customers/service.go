package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/money"
	"github.com/placaexpress/vehicle-report-backend/pkg/pagination"
	"github.com/placaexpress/vehicle-report-backend/pkg/taxid"
)

const (
	backfillPageSize = 100
	backfillMaxPages = 50
	defaultWindow    = 30 * 24 * time.Hour
)

var settledStatuses = []enums.GatewayPaymentStatus{enums.GatewayReceived, enums.GatewayConfirmed}

// Gateway is the slice of the Asaas client the backfill reads.
type Gateway interface {
	ListPayments(ctx context.Context, params asaas.ListPaymentsParams) (*asaas.PaymentPage, error)
	GetCustomer(ctx context.Context, customerID string) (*asaas.Customer, error)
}

type CustomerView struct {
	ID               uuid.UUID            `json:"id"`
	Name             string               `json:"name"`
	Email            string               `json:"email"`
	Phone            string               `json:"phone"`
	CPF              string               `json:"cpf"`
	Plate            string               `json:"plate"`
	Amount           decimal.Decimal      `json:"amount"`
	OrderID          *uuid.UUID           `json:"orderId,omitempty"`
	GatewayPaymentID *string              `json:"paymentId,omitempty"`
	UTMSource        *string              `json:"utmSource,omitempty"`
	UTMCampaign      *string              `json:"utmCampaign,omitempty"`
	Source           enums.CustomerSource `json:"source"`
	CreatedAt        time.Time            `json:"createdAt"`
}

type CustomerPage struct {
	Customers  []CustomerView `json:"customers"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type BackfillResult struct {
	Scanned  int `json:"scanned"`
	Inserted int `json:"inserted"`
}

type SalesSummary struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Orders       int64           `json:"orders"`
	PaidOrders   int64           `json:"paidOrders"`
	Revenue      decimal.Decimal `json:"revenue"`
	ProviderCost decimal.Decimal `json:"providerCost"`
	Margin       decimal.Decimal `json:"margin"`
}

type Service struct {
	repo    Repository
	gateway Gateway
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, gateway Gateway, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("customers repository required")
	}
	if gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) List(ctx context.Context, params pagination.Params) (*CustomerPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cursor inválido")
	}
	rows, err := s.repo.List(ctx, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list customers")
	}
	page, next := pagination.Trim(rows, params.Limit, func(c models.Customer) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})

	out := &CustomerPage{Customers: make([]CustomerView, 0, len(page)), NextCursor: next}
	for _, c := range page {
		out.Customers = append(out.Customers, CustomerView{
			ID:               c.ID,
			Name:             c.Name,
			Email:            c.Email,
			Phone:            c.Phone,
			CPF:              taxid.FormatCPF(c.CPF),
			Plate:            c.Plate,
			Amount:           money.Reais(c.AmountCents),
			OrderID:          c.OrderID,
			GatewayPaymentID: c.GatewayPaymentID,
			UTMSource:        c.UTMSource,
			UTMCampaign:      c.UTMCampaign,
			Source:           c.Source,
			CreatedAt:        c.CreatedAt,
		})
	}
	return out, nil
}

// Backfill creates the CRM rows missing for settled PIX charges at the
// gateway. Row failures are collected and do not stop the scan.
func (s *Service) Backfill(ctx context.Context) (*BackfillResult, error) {
	result := &BackfillResult{}
	customerCache := map[string]*asaas.Customer{}
	var errs error

	for _, status := range settledStatuses {
		offset := 0
		for page := 0; page < backfillMaxPages; page++ {
			list, err := s.gateway.ListPayments(ctx, asaas.ListPaymentsParams{
				Status: status,
				Offset: offset,
				Limit:  backfillPageSize,
			})
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("list %s payments at offset %d: %w", status, offset, err))
				break
			}
			for _, payment := range list.Data {
				result.Scanned++
				inserted, err := s.backfillPayment(ctx, payment, customerCache)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
					continue
				}
				if inserted {
					result.Inserted++
				}
			}
			if !list.HasMore || len(list.Data) == 0 {
				break
			}
			offset += len(list.Data)
		}
	}

	if s.logg != nil {
		fields := map[string]any{"scanned": result.Scanned, "inserted": result.Inserted}
		if errs != nil {
			fields["failures"] = len(multierr.Errors(errs))
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "customer backfill finished")
	}
	return result, errs
}

func (s *Service) backfillPayment(ctx context.Context, payment asaas.Payment, cache map[string]*asaas.Customer) (bool, error) {
	exists, err := s.repo.ExistsForPayment(ctx, payment.ID)
	if err != nil || exists {
		return false, err
	}

	gatewayCustomer, ok := cache[payment.Customer]
	if !ok {
		gatewayCustomer, err = s.gateway.GetCustomer(ctx, payment.Customer)
		if err != nil {
			return false, err
		}
		cache[payment.Customer] = gatewayCustomer
	}

	paymentID := payment.ID
	customer := &models.Customer{
		Name:              gatewayCustomer.Name,
		Email:             gatewayCustomer.Email,
		Phone:             taxid.Digits(firstNonEmpty(gatewayCustomer.MobilePhone, gatewayCustomer.Phone)),
		CPF:               taxid.Digits(gatewayCustomer.CPFCNPJ),
		AmountCents:       payment.AmountCents(),
		GatewayPaymentID:  &paymentID,
		GatewayCustomerID: payment.Customer,
		Source:            enums.CustomerSourceBackfill,
	}

	order, err := s.repo.FindOrderByPayment(ctx, payment.ID)
	if err != nil {
		return false, err
	}
	if order != nil {
		orderID := order.ID
		customer.OrderID = &orderID
		if customer.Plate, err = s.repo.FindPlate(ctx, order.PlateQueryID); err != nil {
			return false, err
		}
	}

	if err := s.repo.Create(ctx, customer); err != nil {
		return false, err
	}
	return true, nil
}

// Summary aggregates orders created in [from, to). Zero bounds default to the
// last 30 days.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (*SalesSummary, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultWindow)
	}
	if !from.Before(to) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from deve ser anterior a to")
	}
	totals, err := s.repo.SummarizeOrders(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarize orders")
	}
	revenue := money.Reais(totals.RevenueCents)
	cost := money.Reais(totals.ProviderCostCents)
	return &SalesSummary{
		From:         from.UTC(),
		To:           to.UTC(),
		Orders:       totals.Orders,
		PaidOrders:   totals.PaidOrders,
		Revenue:      revenue,
		ProviderCost: cost,
		Margin:       revenue.Sub(cost),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
