package controllers

import (
	"context"
	"net/http"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	"github.com/placaexpress/vehicle-report-backend/api/validators"
	"github.com/placaexpress/vehicle-report-backend/internal/access"
	"github.com/placaexpress/vehicle-report-backend/internal/enrichment"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type ReportEnricher interface {
	Enrich(ctx context.Context, input enrichment.EnrichInput) (*enrichment.Result, error)
}

type ReportReader interface {
	GetReport(ctx context.Context, input access.GetReportInput) (*access.GetReportResult, error)
}

// Issued tokens are far shorter; anything longer cannot match a row.
const maxAccessTokenLen = 128

// accessToken cleans the submitted token. An over-length token answers the
// same INVALID_ACCESS_TOKEN as an unknown one.
func accessToken(raw string) (string, error) {
	token := validators.SanitizeString(raw, 0)
	if len(token) > maxAccessTokenLen {
		return "", pkgerrors.New(pkgerrors.CodeInvalidAccessToken, "Link de acesso inválido.")
	}
	return token, nil
}

type enrichReportRequest struct {
	OrderID           string `json:"orderId"`
	PublicAccessToken string `json:"publicAccessToken"`
}

type enrichReportResponse struct {
	types.Ack
	*enrichment.Result
}

func EnrichPaidReport(svc ReportEnricher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrichment service unavailable"))
			return
		}

		var body enrichReportRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseOptionalUUID("orderId", body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := accessToken(body.PublicAccessToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Enrich(r.Context(), enrichment.EnrichInput{
			OrderID:     orderID,
			AccessToken: token,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, enrichReportResponse{Ack: types.OK(), Result: result})
	}
}

type getReportRequest struct {
	PlateQueryID      string `json:"plateQueryId"`
	PublicAccessToken string `json:"publicAccessToken"`
}

type getReportResponse struct {
	types.Ack
	*access.GetReportResult
}

// GetReport serves the preview to unpaid visitors and the full report to
// holders of a paid order's access token.
func GetReport(svc ReportReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}

		var body getReportRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plateQueryID, err := validators.ParseOptionalUUID("plateQueryId", body.PlateQueryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := accessToken(body.PublicAccessToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GetReport(r.Context(), access.GetReportInput{
			PlateQueryID: plateQueryID,
			AccessToken:  token,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, getReportResponse{Ack: types.OK(), GetReportResult: result})
	}
}
