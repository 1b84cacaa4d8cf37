package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	dbpkg "github.com/placaexpress/vehicle-report-backend/pkg/db"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/dbtest"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis/redistest"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

const (
	basicRaw   = `{"placa":"ABC1234","marca":"VW","modelo":"GOL","anoFabricacao":"2019","anoModelo":"2020","cor":"Prata"}`
	fipeRaw    = `[{"codigoFipe":"005341-4","modelo":"Gol 1.0","valor":"R$ 45.678,00"},{"codigoFipe":"005340-6","modelo":"Polo","valor":"R$ 52.000,00"}]`
	renainfRaw = `{"possui_infracoes":true,"infracoes":[{"descricao":"Excesso de velocidade","valor":"130,16"}]}`
)

type stubProvider struct {
	mu           sync.Mutex
	fipeCalls    int
	renainfCalls int
	fipeErr      error
	renainfErr   error
}

func (p *stubProvider) Fipe(context.Context, string) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fipeCalls++
	if p.fipeErr != nil {
		return nil, p.fipeErr
	}
	return json.RawMessage(fipeRaw), nil
}

func (p *stubProvider) Renainf(context.Context, string) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renainfCalls++
	if p.renainfErr != nil {
		return nil, p.renainfErr
	}
	return json.RawMessage(renainfRaw), nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	provider *stubProvider
	locks    *redistest.Store
	orders   orders.Repository
	plates   platequery.Repository
	sleep    func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		db:       conn,
		provider: &stubProvider{},
		locks:    redistest.New(),
		orders:   orders.NewRepository(conn),
		plates:   platequery.NewRepository(conn),
	}
	svc, err := NewService(ServiceParams{
		Repo:             NewRepository(conn),
		Orders:           f.orders,
		PlateQueries:     f.plates,
		Tx:               dbpkg.NewFromConn(conn),
		Provider:         f.provider,
		Locker:           f.locks,
		Outbox:           outbox.NewService(outbox.NewRepository(conn), nil),
		FipeCostCents:    30,
		RenainfCostCents: 60,
		WaitAttempts:     3,
		WaitInterval:     time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			if f.sleep != nil {
				f.sleep()
			}
			return nil
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seed(t *testing.T, status enums.OrderPaymentStatus) (models.PlateQuery, models.Order) {
	t.Helper()
	ctx := context.Background()
	pq := models.PlateQuery{
		Plate:       "ABC1234",
		Preview:     types.PlatePreview{Marca: "VW"},
		RawResponse: json.RawMessage(basicRaw),
		CostCents:   40,
		Status:      enums.PlateQueryPaidConfirmed,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, f.plates.Create(ctx, &pq))
	return pq, f.seedOrder(t, pq.ID, status)
}

func (f *fixture) seedOrder(t *testing.T, pqID uuid.UUID, status enums.OrderPaymentStatus) models.Order {
	t.Helper()
	token, err := orders.NewAccessToken()
	require.NoError(t, err)
	order := models.Order{
		PlateQueryID:           pqID,
		GatewayPaymentID:       "pay_" + uuid.NewString(),
		GatewayCustomerID:      "cus_1",
		AmountCents:            2990,
		ProviderCostTotalCents: 40,
		PaymentStatus:          status,
		PublicAccessToken:      token,
		DueDate:                time.Now().UTC(),
		CustomerName:           "Maria Silva",
		CustomerEmail:          "maria@example.com",
		CustomerPhone:          "11987654321",
		CustomerCPF:            "52998224725",
	}
	require.NoError(t, f.orders.Create(context.Background(), &order))
	return order
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func TestEnrichRequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	_, order := f.seed(t, enums.OrderPaymentPending)
	ctx := context.Background()

	_, err := f.svc.Enrich(ctx, EnrichInput{OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePaymentNotConfirmed, pkgerrors.As(err).Code())

	_, err = f.svc.Enrich(ctx, EnrichInput{AccessToken: "not-a-token"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidAccessToken, pkgerrors.As(err).Code())

	_, err = f.svc.Enrich(ctx, EnrichInput{OrderID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = f.svc.Enrich(ctx, EnrichInput{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	assert.Zero(t, f.provider.fipeCalls+f.provider.renainfCalls)
}

func TestEnrichOncePerPlateQuery(t *testing.T) {
	f := newFixture(t)
	pq, order := f.seed(t, enums.OrderPaymentPaid)
	ctx := context.Background()

	first, err := f.svc.Enrich(ctx, EnrichInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.NotNil(t, first.Report.Fipe)
	assert.True(t, first.Report.Fipe.Encontrado)
	assert.Equal(t, "005341-4", first.Report.Fipe.VersaoMaisProvavel.CodigoFipe)
	require.NotNil(t, first.Report.Renainf)
	assert.True(t, first.Report.Renainf.PossuiInfracoes)
	assert.EqualValues(t, 130, f.reload(t, order.ID).ProviderCostTotalCents)

	second, err := f.svc.Enrich(ctx, EnrichInput{AccessToken: order.PublicAccessToken})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Report, second.Report)

	other := f.seedOrder(t, pq.ID, enums.OrderPaymentPaid)
	third, err := f.svc.Enrich(ctx, EnrichInput{OrderID: other.ID})
	require.NoError(t, err)
	assert.True(t, third.Cached)

	assert.Equal(t, 1, f.provider.fipeCalls)
	assert.Equal(t, 1, f.provider.renainfCalls)
	assert.EqualValues(t, 130, f.reload(t, order.ID).ProviderCostTotalCents)
	assert.EqualValues(t, 40, f.reload(t, other.ID).ProviderCostTotalCents)

	stored, err := f.plates.FindByID(ctx, pq.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlateQueryEnriched, stored.Status)

	var count int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventReportEnriched).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.False(t, f.locks.Has(f.locks.LockKey("enrichment", pq.ID.String())), "lock is released")
}

func TestEnrichResumesPartialRow(t *testing.T) {
	f := newFixture(t)
	pq, order := f.seed(t, enums.OrderPaymentPaid)
	ctx := context.Background()
	f.provider.fipeErr = errors.New("fipe timeout")

	first, err := f.svc.Enrich(ctx, EnrichInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.False(t, first.Report.Fipe.Encontrado)
	assert.NotEmpty(t, first.Report.Fipe.Mensagem)
	assert.True(t, first.Report.Renainf.Encontrado)
	assert.EqualValues(t, 100, f.reload(t, order.ID).ProviderCostTotalCents)

	row, err := NewRepository(f.db).FindByPlateQuery(ctx, pq.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.Complete())
	require.NotNil(t, row.FipeError)

	f.provider.fipeErr = nil
	second, err := f.svc.Enrich(ctx, EnrichInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.True(t, second.Report.Fipe.Encontrado)
	assert.Equal(t, 2, f.provider.fipeCalls)
	assert.Equal(t, 1, f.provider.renainfCalls)
	assert.EqualValues(t, 130, f.reload(t, order.ID).ProviderCostTotalCents)

	row, err = NewRepository(f.db).FindByPlateQuery(ctx, pq.ID)
	require.NoError(t, err)
	assert.True(t, row.Complete())
	assert.Nil(t, row.FipeError)
}

func TestEnrichLoserReportsInProgress(t *testing.T) {
	f := newFixture(t)
	pq, order := f.seed(t, enums.OrderPaymentPaid)
	ctx := context.Background()

	_, err := f.locks.SetNX(ctx, f.locks.LockKey("enrichment", pq.ID.String()), "other-worker", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Enrich(ctx, EnrichInput{OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeProviderUnavailable, pkgerrors.As(err).Code())
	assert.Zero(t, f.provider.fipeCalls+f.provider.renainfCalls)
}

func TestEnrichLoserPicksUpWinnerResult(t *testing.T) {
	f := newFixture(t)
	pq, order := f.seed(t, enums.OrderPaymentPaid)
	ctx := context.Background()

	_, err := f.locks.SetNX(ctx, f.locks.LockKey("enrichment", pq.ID.String()), "other-worker", time.Minute)
	require.NoError(t, err)

	f.sleep = func() {
		f.sleep = nil
		done := time.Now().UTC()
		require.NoError(t, f.db.Create(&models.Enrichment{
			PlateQueryID: pq.ID,
			FipeRaw:      json.RawMessage(fipeRaw),
			RenainfRaw:   json.RawMessage(renainfRaw),
			CompletedAt:  &done,
		}).Error)
	}

	res, err := f.svc.Enrich(ctx, EnrichInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.True(t, res.Report.Fipe.Encontrado)
	assert.Zero(t, f.provider.fipeCalls+f.provider.renainfCalls)
}

func TestEnrichWithoutLocker(t *testing.T) {
	f := newFixture(t)
	f.svc.locker = nil
	_, order := f.seed(t, enums.OrderPaymentPaid)

	require.NoError(t, f.svc.EnrichOrder(context.Background(), order.ID))
	assert.Equal(t, 1, f.provider.fipeCalls)
}
