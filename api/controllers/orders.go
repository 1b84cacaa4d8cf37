package controllers

import (
	"context"
	"net/http"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	"github.com/placaexpress/vehicle-report-backend/api/validators"
	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type OrderService interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*orders.CreateOrderResult, error)
	PollStatus(ctx context.Context, input orders.PollInput) (*orders.PollResult, error)
}

type createPixOrderRequest struct {
	PlateQueryID  string `json:"plateQueryId" validate:"required"`
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	CustomerEmail string `json:"customerEmail" validate:"required,email,max=254"`
	CustomerPhone string `json:"customerPhone" validate:"required,max=32"`
	CustomerCPF   string `json:"customerCpf" validate:"required,max=20"`
	UTMSource     string `json:"utmSource"`
	UTMMedium     string `json:"utmMedium"`
	UTMCampaign   string `json:"utmCampaign"`
	UTMTerm       string `json:"utmTerm"`
	UTMContent    string `json:"utmContent"`
	Referrer      string `json:"referrer"`
	LandingPage   string `json:"landingPage"`
}

func (r createPixOrderRequest) attribution() payloads.Attribution {
	return payloads.Attribution{
		UTMSource:   validators.SanitizeString(r.UTMSource, 255),
		UTMMedium:   validators.SanitizeString(r.UTMMedium, 255),
		UTMCampaign: validators.SanitizeString(r.UTMCampaign, 255),
		UTMTerm:     validators.SanitizeString(r.UTMTerm, 255),
		UTMContent:  validators.SanitizeString(r.UTMContent, 255),
		Referrer:    validators.SanitizeString(r.Referrer, 1024),
		LandingPage: validators.SanitizeString(r.LandingPage, 1024),
	}
}

type createPixOrderResponse struct {
	types.Ack
	*orders.CreateOrderResult
}

// CreatePixOrder opens an order for a previewed plate and returns the PIX charge.
func CreatePixOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body createPixOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plateQueryID, err := validators.ParseOptionalUUID("plateQueryId", body.PlateQueryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), orders.CreateOrderInput{
			PlateQueryID: plateQueryID,
			Customer: orders.CustomerInput{
				Name:  validators.SanitizeString(body.CustomerName, 200),
				Email: body.CustomerEmail,
				Phone: body.CustomerPhone,
				CPF:   body.CustomerCPF,
			},
			Attribution: body.attribution(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createPixOrderResponse{Ack: types.OK(), CreateOrderResult: result})
	}
}

type confirmPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"max=64"`
	OrderID   string `json:"orderId"`
}

type confirmPaymentResponse struct {
	types.Ack
	*orders.PollResult
}

// ConfirmOrderPayment is polled by the checkout page until the order is paid.
func ConfirmOrderPayment(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseOptionalUUID("orderId", body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PollStatus(r.Context(), orders.PollInput{
			OrderID:   orderID,
			PaymentID: validators.SanitizeString(body.PaymentID, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmPaymentResponse{Ack: types.OK(), PollResult: result})
	}
}
