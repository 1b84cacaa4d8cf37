package controllers

import (
	"context"
	"net/http"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	"github.com/placaexpress/vehicle-report-backend/api/validators"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type PlateSearcher interface {
	Lookup(ctx context.Context, rawPlate string) (*platequery.LookupResult, error)
}

type searchPlateRequest struct {
	Placa string `json:"placa" validate:"required,max=16"`
}

type searchPlateResponse struct {
	types.Ack
	*platequery.LookupResult
}

// SearchPlatePreview returns the teaser preview for a plate, reusing a fresh
// lookup when one exists.
func SearchPlatePreview(svc PlateSearcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plate service unavailable"))
			return
		}

		var body searchPlateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Lookup(r.Context(), body.Placa)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, searchPlateResponse{Ack: types.OK(), LookupResult: result})
	}
}
