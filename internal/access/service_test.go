package access

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/enrichment"
	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	"github.com/placaexpress/vehicle-report-backend/internal/report"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/dbtest"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type stubEnricher struct {
	calls int
	err   error
}

func (e *stubEnricher) Enrich(_ context.Context, _ enrichment.EnrichInput) (*enrichment.Result, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	fipe := report.FipeSection{Encontrado: true}
	return &enrichment.Result{Report: report.NormalizedReport{Placa: "ABC1234", Fipe: &fipe}}, nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	enricher *stubEnricher
	orders   orders.Repository
	plates   platequery.Repository
	pq       models.PlateQuery
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		db:       conn,
		enricher: &stubEnricher{},
		orders:   orders.NewRepository(conn),
		plates:   platequery.NewRepository(conn),
	}
	svc, err := NewService(f.orders, f.plates, enrichment.NewRepository(conn), f.enricher, nil)
	require.NoError(t, err)
	f.svc = svc

	f.pq = models.PlateQuery{
		Plate:       "ABC1234",
		Preview:     types.PlatePreview{Marca: "VW", Modelo: "GOL"},
		RawResponse: json.RawMessage(`{"placa":"ABC1234","marca":"VW","modelo":"GOL","chassi":"9BWAA05U0JT000000"}`),
		Status:      enums.PlateQueryPaidPending,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, f.plates.Create(context.Background(), &f.pq))
	return f
}

func (f *fixture) order(t *testing.T, status enums.OrderPaymentStatus) models.Order {
	t.Helper()
	token, err := orders.NewAccessToken()
	require.NoError(t, err)
	order := models.Order{
		PlateQueryID:      f.pq.ID,
		GatewayPaymentID:  "pay_" + uuid.NewString(),
		GatewayCustomerID: "cus_1",
		AmountCents:       2990,
		PaymentStatus:     status,
		PublicAccessToken: token,
		DueDate:           time.Now().UTC(),
		CustomerName:      "Maria Silva",
		CustomerEmail:     "maria@example.com",
		CustomerPhone:     "11987654321",
		CustomerCPF:       "52998224725",
	}
	if status == enums.OrderPaymentPaid {
		paid := time.Now().UTC()
		order.PaidAt = &paid
	}
	require.NoError(t, f.orders.Create(context.Background(), &order))
	return order
}

func TestGetReportNeedsExactlyOneIdentifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetReport(ctx, GetReportInput{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.GetReport(ctx, GetReportInput{PlateQueryID: f.pq.ID, AccessToken: "x"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGetReportUnknownIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetReport(ctx, GetReportInput{AccessToken: "deadbeef"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidAccessToken, pkgerrors.As(err).Code())

	_, err = f.svc.GetReport(ctx, GetReportInput{PlateQueryID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestUnpaidShowsPreviewOnly(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderPaymentPending)
	ctx := context.Background()

	for _, input := range []GetReportInput{{PlateQueryID: f.pq.ID}, {AccessToken: order.PublicAccessToken}} {
		res, err := f.svc.GetReport(ctx, input)
		require.NoError(t, err)
		assert.False(t, res.IsPaid)
		assert.Nil(t, res.Report)
		require.NotNil(t, res.Preview)
		assert.Equal(t, "GOL", res.Preview.Modelo)
		assert.Equal(t, types.NotAvailable, res.Preview.Cor)
	}
	assert.Zero(t, f.enricher.calls)
}

func TestPaidRunsInlineEnrichment(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderPaymentPaid)

	res, err := f.svc.GetReport(context.Background(), GetReportInput{AccessToken: order.PublicAccessToken})
	require.NoError(t, err)
	assert.True(t, res.IsPaid)
	assert.False(t, res.EnrichmentPending)
	require.NotNil(t, res.Report)
	require.NotNil(t, res.Report.Fipe)
	assert.Equal(t, 1, f.enricher.calls)
}

func TestPaidFallsBackToBasicReport(t *testing.T) {
	f := newFixture(t)
	f.order(t, enums.OrderPaymentPaid)
	f.enricher.err = errors.New("provider down")

	res, err := f.svc.GetReport(context.Background(), GetReportInput{PlateQueryID: f.pq.ID})
	require.NoError(t, err)
	assert.True(t, res.IsPaid)
	assert.True(t, res.EnrichmentPending)
	require.NotNil(t, res.Report)
	assert.Equal(t, "9BWAA05U0JT000000", res.Report.Chassi)
	assert.Nil(t, res.Report.Fipe)
}

func TestPaidWithStoredEnrichmentSkipsEnricher(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderPaymentPaid)
	done := time.Now().UTC()
	require.NoError(t, enrichment.NewRepository(f.db).Create(context.Background(), &models.Enrichment{
		PlateQueryID: f.pq.ID,
		FipeRaw:      json.RawMessage(`[]`),
		RenainfRaw:   json.RawMessage(`{}`),
		CompletedAt:  &done,
	}))

	res, err := f.svc.GetReport(context.Background(), GetReportInput{AccessToken: order.PublicAccessToken})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	require.NotNil(t, res.Report.Fipe)
	assert.False(t, res.Report.Fipe.Encontrado)
	assert.Zero(t, f.enricher.calls)
}
