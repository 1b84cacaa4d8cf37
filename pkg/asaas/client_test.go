package asaas

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(context.Background(), config.AsaasConfig{
		APIKey:       "key-123",
		BaseURL:      srv.URL,
		WebhookToken: "hook-secret",
	}, nil, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.AsaasConfig{}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.AsaasConfig{APIKey: "k", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidEnv)

	client, err := NewClient(context.Background(), config.AsaasConfig{APIKey: "k", Env: "PRODUCTION"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.asaas.com/v3", client.baseURL)
	assert.Equal(t, "production", client.Environment())
}

func TestEnsureCustomerReusesExisting(t *testing.T) {
	var created bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("access_token"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			assert.Equal(t, "52998224725", r.URL.Query().Get("cpfCnpj"))
			_, _ = w.Write([]byte(`{"data":[{"id":"cus_1","name":"Maria"}]}`))
		case r.Method == http.MethodPost:
			created = true
			_, _ = w.Write([]byte(`{"id":"cus_new"}`))
		}
	})

	cust, err := client.EnsureCustomer(context.Background(), CustomerParams{Name: "Maria", CPFCNPJ: "52998224725"})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", cust.ID)
	assert.False(t, created)
}

func TestEnsureCustomerCreatesWhenMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"data":[]}`))
		case http.MethodPost:
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Maria", body["name"])
			assert.Equal(t, "52998224725", body["cpfCnpj"])
			_, _ = w.Write([]byte(`{"id":"cus_new"}`))
		}
	})

	cust, err := client.EnsureCustomer(context.Background(), CustomerParams{Name: "Maria", CPFCNPJ: "52998224725"})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", cust.ID)
}

func TestCreatePixChargeSendsReaisValue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{
			"customer":"cus_1","billingType":"PIX","value":29.90,"dueDate":"2026-10-17",
			"description":"Relatório","externalReference":"pq-1"}`, string(raw))
		_, _ = w.Write([]byte(`{"id":"pay_1","status":"PENDING","value":29.9}`))
	})

	payment, err := client.CreatePixCharge(context.Background(), PixChargeParams{
		CustomerID:        "cus_1",
		AmountCents:       2990,
		DueDate:           time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		Description:       "Relatório",
		ExternalReference: "pq-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", payment.ID)
	assert.Equal(t, int64(2990), payment.AmountCents())
	assert.False(t, payment.IsPaid())
}

func TestGetPaymentStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pay_1","status":"RECEIVED","value":29.9}`))
	})

	payment, err := client.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, enums.GatewayReceived, payment.Status)
	assert.True(t, payment.IsPaid())
}

func TestGetPixQRCodeNotReady(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1/pixQrCode", r.URL.Path)
		_, _ = w.Write([]byte(`{"encodedImage":"","payload":""}`))
	})

	_, err := client.GetPixQRCode(context.Background(), "pay_1")
	require.ErrorIs(t, err, ErrQRCodeNotReady)
}

func TestGatewayErrorDescriptionPassesThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"invalid_cpfCnpj","description":"O CPF informado é inválido."}]}`))
	})

	_, err := client.CreateCustomer(context.Background(), CustomerParams{Name: "x", CPFCNPJ: "1"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeProviderUnavailable, typed.Code())
	assert.Equal(t, "O CPF informado é inválido.", typed.Message())
}

func TestListPaymentsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "RECEIVED", q.Get("status"))
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "200", q.Get("offset"))
		_, _ = w.Write([]byte(`{"data":[{"id":"pay_9","status":"RECEIVED","value":"29.90"}],"hasMore":false}`))
	})

	page, err := client.ListPayments(context.Background(), ListPaymentsParams{Status: enums.GatewayReceived, Offset: 200, Limit: 500})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(2990), page.Data[0].AmountCents())
}

func TestVerifyWebhookToken(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/asaas", nil)
	assert.False(t, client.VerifyWebhookToken(req))
	req.Header.Set(WebhookTokenHeader, "hook-secret")
	assert.True(t, client.VerifyWebhookToken(req))
	req.Header.Set(WebhookTokenHeader, "other")
	assert.False(t, client.VerifyWebhookToken(req))
}
