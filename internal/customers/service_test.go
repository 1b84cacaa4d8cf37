package customers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/dbtest"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/pagination"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type stubGateway struct {
	pages     map[enums.GatewayPaymentStatus][]asaas.PaymentPage
	customers map[string]*asaas.Customer
	lookups   int
}

func (s *stubGateway) ListPayments(_ context.Context, params asaas.ListPaymentsParams) (*asaas.PaymentPage, error) {
	for _, page := range s.pages[params.Status] {
		if page.Offset == params.Offset {
			p := page
			return &p, nil
		}
	}
	return &asaas.PaymentPage{}, nil
}

func (s *stubGateway) GetCustomer(_ context.Context, id string) (*asaas.Customer, error) {
	s.lookups++
	c, ok := s.customers[id]
	if !ok {
		return nil, errors.New("customer gone")
	}
	return c, nil
}

func seedOrder(t *testing.T, db *gorm.DB, paymentID string, status enums.OrderPaymentStatus, amount, cost int64, created time.Time) models.Order {
	t.Helper()
	pq := models.PlateQuery{
		Plate:       "ABC1234",
		Preview:     types.PlatePreview{Marca: "VW"},
		RawResponse: []byte(`{}`),
		Status:      enums.PlateQueryPreviewReady,
		ExpiresAt:   created.Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(&pq).Error)
	order := models.Order{
		PlateQueryID:           pq.ID,
		GatewayPaymentID:       paymentID,
		GatewayCustomerID:      "cus_1",
		AmountCents:            amount,
		ProviderCostTotalCents: cost,
		PaymentStatus:          status,
		PublicAccessToken:      uuid.NewString(),
		DueDate:                created,
		CustomerName:           "Maria Silva",
		CustomerEmail:          "maria@example.com",
		CustomerPhone:          "11987654321",
		CustomerCPF:            "52998224725",
		CreatedAt:              created,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestRecordSaleOncePerPayment(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	recorder, err := NewRecorder(repo, nil)
	require.NoError(t, err)
	ctx := context.Background()

	orderID := uuid.New()
	sale := Sale{
		Name:             " Maria Silva ",
		Email:            "Maria@Example.com",
		Phone:            "(11) 98765-4321",
		CPF:              "529.982.247-25",
		Plate:            "ABC1234",
		AmountCents:      2990,
		OrderID:          orderID,
		GatewayPaymentID: "pay_1",
		Attribution:      payloads.Attribution{UTMSource: "google", UTMCampaign: "inverno"},
	}
	require.NoError(t, recorder.RecordSale(ctx, sale))
	require.NoError(t, recorder.RecordSale(ctx, sale))

	var rows []models.Customer
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Maria Silva", rows[0].Name)
	assert.Equal(t, "maria@example.com", rows[0].Email)
	assert.Equal(t, "11987654321", rows[0].Phone)
	assert.Equal(t, "52998224725", rows[0].CPF)
	assert.Nil(t, rows[0].UTMMedium)
	assert.Equal(t, enums.CustomerSourceCheckout, rows[0].Source)

	attribution, err := recorder.AttributionFor(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "google", attribution.UTMSource)
	assert.Equal(t, "inverno", attribution.UTMCampaign)

	empty, err := recorder.AttributionFor(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, payloads.Attribution{}, empty)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db), &stubGateway{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"Ana", "Bruno", "Carla"} {
		row := models.Customer{Name: name, Source: enums.CustomerSourceCheckout, CPF: "52998224725", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.Create(&row).Error)
	}

	first, err := svc.List(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Customers, 2)
	assert.Equal(t, "Carla", first.Customers[0].Name)
	assert.Equal(t, "Bruno", first.Customers[1].Name)
	assert.Equal(t, "529.982.247-25", first.Customers[0].CPF)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Customers, 1)
	assert.Equal(t, "Ana", second.Customers[0].Name)
	assert.Empty(t, second.NextCursor)

	_, err = svc.List(ctx, pagination.Params{Cursor: "%%%"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestBackfillInsertsMissingRows(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	order := seedOrder(t, db, "pay_new", enums.OrderPaymentPaid, 2990, 0, time.Now().UTC())

	existing := "pay_known"
	require.NoError(t, db.Create(&models.Customer{Name: "Known", GatewayPaymentID: &existing, Source: enums.CustomerSourceCheckout}).Error)

	gateway := &stubGateway{
		pages: map[enums.GatewayPaymentStatus][]asaas.PaymentPage{
			enums.GatewayReceived: {
				{Offset: 0, HasMore: true, Data: []asaas.Payment{
					{ID: "pay_known", Customer: "cus_1", Value: decimal.RequireFromString("29.90")},
					{ID: "pay_new", Customer: "cus_1", Value: decimal.RequireFromString("29.90")},
				}},
				{Offset: 2, Data: []asaas.Payment{
					{ID: "pay_orphan", Customer: "cus_missing", Value: decimal.RequireFromString("19.90")},
				}},
			},
			enums.GatewayConfirmed: {
				{Offset: 0, Data: []asaas.Payment{
					{ID: "pay_other", Customer: "cus_1", Value: decimal.RequireFromString("29.90")},
				}},
			},
		},
		customers: map[string]*asaas.Customer{
			"cus_1": {ID: "cus_1", Name: "Maria Silva", Email: "maria@example.com", MobilePhone: "(11) 98765-4321", CPFCNPJ: "529.982.247-25"},
		},
	}
	svc, err := NewService(NewRepository(db), gateway, nil)
	require.NoError(t, err)

	result, err := svc.Backfill(ctx)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 2, gateway.lookups, "customer lookups are cached per run")

	var linked models.Customer
	require.NoError(t, db.Where("gateway_payment_id = ?", "pay_new").First(&linked).Error)
	require.NotNil(t, linked.OrderID)
	assert.Equal(t, order.ID, *linked.OrderID)
	assert.Equal(t, "ABC1234", linked.Plate)
	assert.EqualValues(t, 2990, linked.AmountCents)
	assert.Equal(t, enums.CustomerSourceBackfill, linked.Source)

	again, err := svc.Backfill(ctx)
	require.Error(t, err)
	assert.Zero(t, again.Inserted)
}

func TestSummary(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	seedOrder(t, db, "pay_a", enums.OrderPaymentPaid, 2990, 250, now.Add(-2*time.Hour))
	seedOrder(t, db, "pay_b", enums.OrderPaymentPaid, 2990, 40, now.Add(-time.Hour))
	seedOrder(t, db, "pay_c", enums.OrderPaymentPending, 2990, 40, now.Add(-time.Hour))
	seedOrder(t, db, "pay_old", enums.OrderPaymentPaid, 2990, 40, now.Add(-40*24*time.Hour))

	svc, err := NewService(NewRepository(db), &stubGateway{}, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return now }

	summary, err := svc.Summary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.Orders)
	assert.EqualValues(t, 2, summary.PaidOrders)
	assert.Equal(t, "59.8", summary.Revenue.String())
	assert.Equal(t, "3.3", summary.ProviderCost.String())
	assert.Equal(t, "56.5", summary.Margin.String())

	_, err = svc.Summary(ctx, now, now.Add(-time.Hour))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
