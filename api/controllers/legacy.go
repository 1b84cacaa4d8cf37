package controllers

import (
	"context"
	"net/http"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	"github.com/placaexpress/vehicle-report-backend/api/validators"
	"github.com/placaexpress/vehicle-report-backend/internal/legacyreports"
	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type LegacyReportService interface {
	CreatePayment(ctx context.Context, input legacyreports.CreatePaymentInput) (*legacyreports.CreatePaymentResult, error)
	CheckPayment(ctx context.Context, input legacyreports.CheckPaymentInput) (*legacyreports.CheckPaymentResult, error)
}

type createPaymentRequest struct {
	Placa         string `json:"placa" validate:"required,max=16"`
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	CustomerEmail string `json:"customerEmail" validate:"required,email,max=254"`
	CustomerPhone string `json:"customerPhone" validate:"required,max=32"`
	CustomerCPF   string `json:"customerCpf" validate:"required,max=20"`
}

type createPaymentResponse struct {
	types.Ack
	*legacyreports.CreatePaymentResult
}

// CreatePayment is the older one-step checkout: plate and buyer in, PIX out.
func CreatePayment(svc LegacyReportService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "legacy checkout disabled"))
			return
		}

		var body createPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePayment(r.Context(), legacyreports.CreatePaymentInput{
			Plate: body.Placa,
			Customer: orders.CustomerInput{
				Name:  validators.SanitizeString(body.CustomerName, 200),
				Email: body.CustomerEmail,
				Phone: body.CustomerPhone,
				CPF:   body.CustomerCPF,
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createPaymentResponse{Ack: types.OK(), CreatePaymentResult: result})
	}
}

type checkPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"max=64"`
	ReportID  string `json:"reportId"`
}

type checkPaymentResponse struct {
	types.Ack
	*legacyreports.CheckPaymentResult
}

func CheckPayment(svc LegacyReportService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "legacy checkout disabled"))
			return
		}

		var body checkPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reportID, err := validators.ParseOptionalUUID("reportId", body.ReportID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckPayment(r.Context(), legacyreports.CheckPaymentInput{
			PaymentID: validators.SanitizeString(body.PaymentID, 64),
			ReportID:  reportID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkPaymentResponse{Ack: types.OK(), CheckPaymentResult: result})
	}
}
