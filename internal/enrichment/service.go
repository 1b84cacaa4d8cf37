package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	"github.com/placaexpress/vehicle-report-backend/internal/report"
	dbpkg "github.com/placaexpress/vehicle-report-backend/pkg/db"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
)

const (
	lockScope = "enrichment"

	defaultLockTTL      = time.Minute
	defaultWaitAttempts = 10
	defaultWaitInterval = 500 * time.Millisecond

	inProgressMsg = "Relatório completo em processamento. Tente novamente em instantes."
)

// Provider is the paid-tier slice of the vehicle-data client.
type Provider interface {
	Fipe(ctx context.Context, plate string) (json.RawMessage, error)
	Renainf(ctx context.Context, plate string) (json.RawMessage, error)
}

// Locker is the Redis lock used to keep concurrent callers from paying for
// the same sub-calls twice.
type Locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EnrichInput identifies the paid order by id or by its public access token.
type EnrichInput struct {
	OrderID     uuid.UUID
	AccessToken string
}

type Result struct {
	Report report.NormalizedReport `json:"report"`
	Cached bool                    `json:"cached"`
}

type ServiceParams struct {
	Repo             Repository
	Orders           orders.Repository
	PlateQueries     platequery.Repository
	Tx               txRunner
	Provider         Provider
	Locker           Locker
	Outbox           outbox.Emitter
	Logger           *logger.Logger
	Metrics          *metrics.UpstreamMetrics
	FipeCostCents    int64
	RenainfCostCents int64
	LockTTL          time.Duration
	WaitAttempts     int
	WaitInterval     time.Duration
	Now              func() time.Time
	Sleep            func(ctx context.Context, d time.Duration) error
}

type Service struct {
	repo         Repository
	orders       orders.Repository
	plates       platequery.Repository
	tx           txRunner
	provider     Provider
	locker       Locker
	outbox       outbox.Emitter
	logg         *logger.Logger
	metrics      *metrics.UpstreamMetrics
	fipeCost     int64
	renainfCost  int64
	lockTTL      time.Duration
	waitAttempts int
	waitInterval time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("enrichment repository required")
	case params.Orders == nil:
		return nil, errors.New("orders repository required")
	case params.PlateQueries == nil:
		return nil, errors.New("plate query repository required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner required")
	case params.Provider == nil:
		return nil, errors.New("vehicle data provider required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	s := &Service{
		repo:         params.Repo,
		orders:       params.Orders,
		plates:       params.PlateQueries,
		tx:           params.Tx,
		provider:     params.Provider,
		locker:       params.Locker,
		outbox:       params.Outbox,
		logg:         params.Logger,
		metrics:      params.Metrics,
		fipeCost:     params.FipeCostCents,
		renainfCost:  params.RenainfCostCents,
		lockTTL:      params.LockTTL,
		waitAttempts: params.WaitAttempts,
		waitInterval: params.WaitInterval,
		now:          params.Now,
		sleep:        params.Sleep,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.waitAttempts <= 0 {
		s.waitAttempts = defaultWaitAttempts
	}
	if s.waitInterval <= 0 {
		s.waitInterval = defaultWaitInterval
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.sleep == nil {
		s.sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	return s, nil
}

// Enrich returns the full report of a paid order, calling the paid-tier
// provider endpoints at most once per plate query.
func (s *Service) Enrich(ctx context.Context, input EnrichInput) (*Result, error) {
	order, err := s.resolveOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	if !order.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotConfirmed, "Pagamento ainda não confirmado.")
	}
	return s.enrich(ctx, order)
}

// EnrichOrder runs enrichment for a paid order and discards the report.
func (s *Service) EnrichOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.Enrich(ctx, EnrichInput{OrderID: orderID})
	return err
}

func (s *Service) resolveOrder(ctx context.Context, input EnrichInput) (*models.Order, error) {
	token := strings.TrimSpace(input.AccessToken)
	switch {
	case token != "":
		order, err := s.orders.FindByAccessToken(ctx, token)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAccessToken, "Link de acesso inválido.")
		}
		return order, nil
	case input.OrderID != uuid.Nil:
		order, err := s.orders.FindByID(ctx, input.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Pedido não encontrado.")
		}
		return order, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Informe orderId ou publicAccessToken.")
	}
}

func (s *Service) enrich(ctx context.Context, order *models.Order) (*Result, error) {
	pq, err := s.plates.FindByID(ctx, order.PlateQueryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plate query")
	}
	if pq == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plate query missing for paid order")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"order_id":       order.ID.String(),
			"plate_query_id": pq.ID.String(),
			"plate":          logger.MaskPlate(pq.Plate),
		})
	}

	existing, err := s.repo.FindByPlateQuery(ctx, pq.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load enrichment")
	}
	if existing != nil && existing.Complete() {
		return &Result{Report: report.Assemble(*pq, existing), Cached: true}, nil
	}

	release, acquired := s.lock(ctx, pq.ID)
	if !acquired {
		return s.waitForWinner(ctx, pq)
	}
	defer release()

	// The winner may have finished between the first read and the lock.
	existing, err = s.repo.FindByPlateQuery(ctx, pq.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load enrichment")
	}
	if existing != nil && existing.Complete() {
		return &Result{Report: report.Assemble(*pq, existing), Cached: true}, nil
	}
	if existing == nil {
		if existing, err = s.claim(ctx, pq.ID); err != nil {
			return nil, err
		}
		if existing.Complete() {
			return &Result{Report: report.Assemble(*pq, existing), Cached: true}, nil
		}
	}

	row, added := s.runSubCalls(ctx, pq.Plate, existing)
	completed := row.HasFipe() && row.HasRenainf()
	now := s.now()
	if completed {
		row.CompletedAt = &now
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SaveResults(ctx, row); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).AddProviderCost(ctx, order.ID, added); err != nil {
			return err
		}
		if !completed {
			return nil
		}
		if _, err := s.plates.WithTx(tx).Advance(ctx, pq.ID, enums.PlateQueryEnriched); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReportEnriched,
			AggregateType: enums.AggregatePlateQuery,
			AggregateID:   pq.ID,
			Source:        outbox.SourceInline,
			OccurredAt:    now,
			Data: payloads.ReportEnrichedEvent{
				OrderID:                order.ID,
				PlateQueryID:           pq.ID,
				EnrichmentID:           row.ID,
				Plate:                  pq.Plate,
				FipeCostCents:          row.FipeCostCents,
				RenainfCostCents:       row.RenainfCostCents,
				ProviderCostTotalCents: order.ProviderCostTotalCents + added,
				CompletedAt:            now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store enrichment")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"added_cost_cents": added,
			"completed":        completed,
		}), "enrichment stored")
	}
	return &Result{Report: report.Assemble(*pq, row), Cached: false}, nil
}

// claim inserts the empty row for a plate query. Losing the unique-index race
// returns the winner's row instead.
func (s *Service) claim(ctx context.Context, plateQueryID uuid.UUID) (*models.Enrichment, error) {
	row := &models.Enrichment{PlateQueryID: plateQueryID}
	err := s.repo.Create(ctx, row)
	if err == nil {
		return row, nil
	}
	if !dbpkg.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create enrichment")
	}
	winner, err := s.repo.FindByPlateQuery(ctx, plateQueryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load enrichment")
	}
	if winner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "enrichment row vanished")
	}
	return winner, nil
}

// runSubCalls performs the FIPE and RENAINF calls the row still lacks, in
// parallel. A failed call leaves its section empty with the error recorded.
func (s *Service) runSubCalls(ctx context.Context, plate string, row *models.Enrichment) (*models.Enrichment, int64) {
	var (
		g                   errgroup.Group
		fipeRaw, renainfRaw json.RawMessage
		fipeErr, renainfErr error
	)
	needFipe := !row.HasFipe()
	needRenainf := !row.HasRenainf()
	if needFipe {
		g.Go(func() error {
			fipeRaw, fipeErr = s.provider.Fipe(ctx, plate)
			return nil
		})
	}
	if needRenainf {
		g.Go(func() error {
			renainfRaw, renainfErr = s.provider.Renainf(ctx, plate)
			return nil
		})
	}
	_ = g.Wait()

	var added int64
	if needFipe {
		if fipeErr == nil {
			row.FipeRaw = fipeRaw
			row.FipeCostCents = s.fipeCost
			row.FipeError = nil
			added += s.fipeCost
			s.metrics.AddCost("fipe", s.fipeCost)
		} else {
			row.FipeError = errorText(fipeErr)
			s.warn(ctx, "fipe lookup failed", fipeErr)
		}
	}
	if needRenainf {
		if renainfErr == nil {
			row.RenainfRaw = renainfRaw
			row.RenainfCostCents = s.renainfCost
			row.RenainfError = nil
			added += s.renainfCost
			s.metrics.AddCost("renainf", s.renainfCost)
		} else {
			row.RenainfError = errorText(renainfErr)
			s.warn(ctx, "renainf lookup failed", renainfErr)
		}
	}
	return row, added
}

// lock takes the Redis lock for the plate query. Without Redis, or when Redis
// fails, the caller proceeds and the unique index arbitrates.
func (s *Service) lock(ctx context.Context, plateQueryID uuid.UUID) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	key := s.locker.LockKey(lockScope, plateQueryID.String())
	owner := uuid.NewString()
	ok, err := s.locker.SetNX(ctx, key, owner, s.lockTTL)
	if err != nil {
		s.warn(ctx, "enrichment lock unavailable, continuing without it", err)
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func() {
		// a lock that outlived its TTL may belong to another caller by now
		if _, err := s.locker.DelIfValue(context.WithoutCancel(ctx), key, owner); err != nil {
			s.warn(ctx, "enrichment lock release failed", err)
		}
	}, true
}

func (s *Service) waitForWinner(ctx context.Context, pq *models.PlateQuery) (*Result, error) {
	for attempt := 0; attempt < s.waitAttempts; attempt++ {
		if err := s.sleep(ctx, s.waitInterval); err != nil {
			break
		}
		row, err := s.repo.FindByPlateQuery(ctx, pq.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load enrichment")
		}
		if row != nil && row.Complete() {
			return &Result{Report: report.Assemble(*pq, row), Cached: true}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, inProgressMsg).
		WithDetails(map[string]any{"reason": "enrichment_in_progress"})
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func errorText(err error) *string {
	msg := err.Error()
	if e := pkgerrors.As(err); e != nil {
		msg = fmt.Sprintf("%s: %s", e.Code(), e.Message())
	}
	return &msg
}
