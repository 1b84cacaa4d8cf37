package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	asaaswebhook "github.com/placaexpress/vehicle-report-backend/internal/webhooks/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

const maxWebhookBytes = 256 << 10

type AsaasWebhookService interface {
	HandleEvent(ctx context.Context, event asaas.WebhookEvent) (asaaswebhook.Outcome, error)
}

type asaasVerifier interface {
	VerifyWebhookToken(r *http.Request) bool
}

type webhookResponse struct {
	types.Ack
	Outcome asaaswebhook.Outcome `json:"outcome"`
}

// AsaasWebhook receives payment notifications. Anything other than a 2xx
// makes Asaas redeliver, so only failures worth retrying answer 5xx.
func AsaasWebhook(svc AsaasWebhookService, verifier asaasVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if !verifier.VerifyWebhookToken(r) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		var event asaas.WebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"asaas_event":    event.Event,
				"asaas_event_id": event.ID,
				"payment_id":     event.Payment.ID,
			})
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "asaas.webhook.processed")
		}
		responses.WriteSuccess(w, webhookResponse{Ack: types.OK(), Outcome: outcome})
	}
}
