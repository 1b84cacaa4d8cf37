// Package access decides what a report link may show: the free preview
// until payment, the full report afterwards.
package access

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/internal/enrichment"
	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	"github.com/placaexpress/vehicle-report-backend/internal/report"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type Enricher interface {
	Enrich(ctx context.Context, input enrichment.EnrichInput) (*enrichment.Result, error)
}

type EnrichmentReader interface {
	FindByPlateQuery(ctx context.Context, plateQueryID uuid.UUID) (*models.Enrichment, error)
}

// GetReportInput takes exactly one identifier.
type GetReportInput struct {
	PlateQueryID uuid.UUID
	AccessToken  string
}

type GetReportResult struct {
	IsPaid            bool                     `json:"isPaid"`
	Preview           *types.PlatePreview      `json:"preview,omitempty"`
	Report            *report.NormalizedReport `json:"report,omitempty"`
	EnrichmentPending bool                     `json:"enrichmentPending,omitempty"`
}

type Service struct {
	orders      orders.Repository
	plates      platequery.Repository
	enrichments EnrichmentReader
	enricher    Enricher
	logg        *logger.Logger
}

func NewService(orderRepo orders.Repository, plates platequery.Repository, enrichments EnrichmentReader, enricher Enricher, logg *logger.Logger) (*Service, error) {
	if orderRepo == nil || plates == nil || enrichments == nil || enricher == nil {
		return nil, errors.New("access service dependencies required")
	}
	return &Service{
		orders:      orderRepo,
		plates:      plates,
		enrichments: enrichments,
		enricher:    enricher,
		logg:        logg,
	}, nil
}

func (s *Service) GetReport(ctx context.Context, input GetReportInput) (*GetReportResult, error) {
	token := strings.TrimSpace(input.AccessToken)
	hasToken := token != ""
	hasID := input.PlateQueryID != uuid.Nil
	if hasToken == hasID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Informe plateQueryId ou publicAccessToken.")
	}

	var (
		order *models.Order
		pq    *models.PlateQuery
		err   error
	)
	if hasToken {
		order, err = s.orders.FindByAccessToken(ctx, token)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAccessToken, "Link de acesso inválido.")
		}
		pq, err = s.plates.FindByID(ctx, order.PlateQueryID)
	} else {
		pq, err = s.plates.FindByID(ctx, input.PlateQueryID)
		if err == nil && pq != nil {
			order, err = s.orders.FindPaidByPlateQuery(ctx, pq.ID)
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load report")
	}
	if pq == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Consulta não encontrada.")
	}

	if order == nil || !order.IsPaid() {
		preview := pq.Preview.Filled()
		return &GetReportResult{IsPaid: false, Preview: &preview}, nil
	}

	row, err := s.enrichments.FindByPlateQuery(ctx, pq.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load enrichment")
	}
	if row != nil && row.Complete() {
		full := report.Assemble(*pq, row)
		return &GetReportResult{IsPaid: true, Report: &full}, nil
	}

	res, err := s.enricher.Enrich(ctx, enrichment.EnrichInput{OrderID: order.ID})
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"error":    err.Error(),
			}), "inline enrichment failed, serving basic report")
		}
		basic := report.Assemble(*pq, nil)
		return &GetReportResult{IsPaid: true, Report: &basic, EnrichmentPending: true}, nil
	}
	return &GetReportResult{IsPaid: true, Report: &res.Report}, nil
}
