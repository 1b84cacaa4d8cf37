package platequery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/internal/report"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

const (
	DefaultTTL = 24 * time.Hour

	costKindLookup = "lookup"
	cacheDatabase  = "plate_db"
	cacheRedis     = "plate_redis"
)

// Provider is the basic-lookup slice of the vehicle-data client.
type Provider interface {
	LookupPlate(ctx context.Context, plate string) (json.RawMessage, error)
}

// HotCache is the optional Redis front of the database cache.
type HotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	PlateKey(plate string) string
}

type LookupResult struct {
	PlateQueryID uuid.UUID          `json:"plateQueryId"`
	Preview      types.PlatePreview `json:"preview"`
	Cached       bool               `json:"cached"`
}

type ServiceParams struct {
	Repo            Repository
	Provider        Provider
	Cache           HotCache
	Logger          *logger.Logger
	Metrics         *metrics.UpstreamMetrics
	TTL             time.Duration
	LookupCostCents int64
	Now             func() time.Time
}

type Service struct {
	repo     Repository
	provider Provider
	cache    HotCache
	logg     *logger.Logger
	metrics  *metrics.UpstreamMetrics
	ttl      time.Duration
	cost     int64
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("plate query repository required")
	}
	if params.Provider == nil {
		return nil, errors.New("vehicle data provider required")
	}
	if params.LookupCostCents < 0 {
		return nil, errors.New("lookup cost cannot be negative")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     params.Repo,
		provider: params.Provider,
		cache:    params.Cache,
		logg:     params.Logger,
		metrics:  params.Metrics,
		ttl:      ttl,
		cost:     params.LookupCostCents,
		now:      now,
	}, nil
}

// Lookup serves the free preview of a plate, calling the provider at most
// once per plate per TTL window.
func (s *Service) Lookup(ctx context.Context, rawPlate string) (*LookupResult, error) {
	plate, err := Normalize(rawPlate)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithPlate(ctx, plate)
	}
	now := s.now()

	if pq := s.fromHotCache(ctx, plate, now); pq != nil {
		s.metrics.CacheHit(cacheRedis)
		return resultOf(pq, true), nil
	}

	pq, err := s.repo.FindFresh(ctx, plate, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find cached plate query")
	}
	if pq != nil {
		s.metrics.CacheHit(cacheDatabase)
		s.warmHotCache(ctx, pq, now)
		return resultOf(pq, true), nil
	}

	raw, err := s.provider.LookupPlate(ctx, plate)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "plate lookup failed")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "Serviço de consulta indisponível. Tente novamente.")
	}

	pq = &models.PlateQuery{
		Plate:       plate,
		Preview:     report.Preview(raw),
		RawResponse: raw,
		CostCents:   s.cost,
		Status:      enums.PlateQueryPreviewReady,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, pq); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store plate query")
	}
	s.metrics.AddCost(costKindLookup, s.cost)
	s.warmHotCache(ctx, pq, now)

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "plate_query_id", pq.ID.String()), "plate preview stored")
	}
	return resultOf(pq, false), nil
}

// Get loads a plate query or fails with NotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PlateQuery, error) {
	pq, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plate query")
	}
	if pq == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Consulta não encontrada.")
	}
	return pq, nil
}

// fromHotCache resolves plate through Redis. Any miss or error falls back
// to the database, which stays canonical.
func (s *Service) fromHotCache(ctx context.Context, plate string, now time.Time) *models.PlateQuery {
	if s.cache == nil {
		return nil
	}
	value, err := s.cache.Get(ctx, s.cache.PlateKey(plate))
	if err != nil {
		if !redis.IsMiss(err) && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "plate hot cache read failed")
		}
		return nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil
	}
	pq, err := s.repo.FindByID(ctx, id)
	if err != nil || pq == nil || pq.Plate != plate || !pq.Fresh(now) {
		return nil
	}
	return pq
}

func (s *Service) warmHotCache(ctx context.Context, pq *models.PlateQuery, now time.Time) {
	if s.cache == nil {
		return
	}
	remaining := pq.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return
	}
	if err := s.cache.Set(ctx, s.cache.PlateKey(pq.Plate), pq.ID.String(), remaining); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "plate hot cache write failed")
	}
}

func resultOf(pq *models.PlateQuery, cached bool) *LookupResult {
	return &LookupResult{
		PlateQueryID: pq.ID,
		Preview:      pq.Preview.Filled(),
		Cached:       cached,
	}
}
