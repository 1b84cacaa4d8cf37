package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	"github.com/placaexpress/vehicle-report-backend/api/validators"
	"github.com/placaexpress/vehicle-report-backend/internal/auth"
	"github.com/placaexpress/vehicle-report-backend/internal/customers"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/pagination"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type CustomerAdmin interface {
	List(ctx context.Context, params pagination.Params) (*customers.CustomerPage, error)
	Backfill(ctx context.Context) (*customers.BackfillResult, error)
	Summary(ctx context.Context, from, to time.Time) (*customers.SalesSummary, error)
}

type loginResponse struct {
	types.Ack
	*auth.LoginResponse
}

// AdminAuthLogin exchanges the back office credentials for a JWT.
func AdminAuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loginResponse{Ack: types.OK(), LoginResponse: result})
	}
}

type customerPageResponse struct {
	types.Ack
	*customers.CustomerPage
}

func AdminListCustomers(svc CustomerAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customerPageResponse{Ack: types.OK(), CustomerPage: page})
	}
}

type backfillResponse struct {
	types.Ack
	*customers.BackfillResult
}

// AdminBackfillCustomers rebuilds missing customer rows from confirmed gateway payments.
func AdminBackfillCustomers(svc CustomerAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		result, err := svc.Backfill(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{"scanned": result.Scanned, "inserted": result.Inserted})
			logg.Info(ctx, "admin.customers.backfill")
		}
		responses.WriteSuccess(w, backfillResponse{Ack: types.OK(), BackfillResult: result})
	}
}

type salesSummaryResponse struct {
	types.Ack
	*customers.SalesSummary
}

func AdminSalesSummary(svc CustomerAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var fromValue, toValue time.Time
		if from != nil {
			fromValue = *from
		}
		if to != nil {
			toValue = *to
		}

		summary, err := svc.Summary(r.Context(), fromValue, toValue)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, salesSummaryResponse{Ack: types.OK(), SalesSummary: summary})
	}
}
