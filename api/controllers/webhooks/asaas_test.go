package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asaaswebhook "github.com/placaexpress/vehicle-report-backend/internal/webhooks/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
)

type stubVerifier struct{ ok bool }

func (v stubVerifier) VerifyWebhookToken(*http.Request) bool { return v.ok }

type stubService struct {
	events  []asaas.WebhookEvent
	outcome asaaswebhook.Outcome
	err     error
}

func (s *stubService) HandleEvent(_ context.Context, event asaas.WebhookEvent) (asaaswebhook.Outcome, error) {
	s.events = append(s.events, event)
	return s.outcome, s.err
}

const confirmedPayload = `{"id":"evt_1","event":"PAYMENT_CONFIRMED","dateCreated":"2026-03-01 10:00:00","payment":{"id":"pay_1","customer":"cus_1","status":"CONFIRMED","value":29.9}}`

func deliver(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/asaas", strings.NewReader(body)))
	return rec
}

func TestAsaasWebhookRejectsBadToken(t *testing.T) {
	svc := &stubService{}
	rec := deliver(AsaasWebhook(svc, stubVerifier{ok: false}, nil), confirmedPayload)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.events)
}

func TestAsaasWebhookDispatchesEvent(t *testing.T) {
	svc := &stubService{outcome: asaaswebhook.OutcomeApplied}
	rec := deliver(AsaasWebhook(svc, stubVerifier{ok: true}, nil), confirmedPayload)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"outcome":"applied"}`, rec.Body.String())
	require.Len(t, svc.events, 1)
	assert.Equal(t, "evt_1", svc.events[0].ID)
	assert.Equal(t, "pay_1", svc.events[0].Payment.ID)
}

func TestAsaasWebhookMalformedBody(t *testing.T) {
	svc := &stubService{}
	rec := deliver(AsaasWebhook(svc, stubVerifier{ok: true}, nil), `{"id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.events)
}

func TestAsaasWebhookFailureAsksForRedelivery(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	rec := deliver(AsaasWebhook(svc, stubVerifier{ok: true}, nil), confirmedPayload)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
