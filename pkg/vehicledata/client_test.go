package vehicledata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/", "user", "secret", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient("", "u", "p")
	require.ErrorIs(t, err, errBaseURLRequired)
	_, err = NewClient("https://provider.test", "", "p")
	require.ErrorIs(t, err, errCredentialsRequired)
}

func TestLookupPlateSendsBasicAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/placa/ABC1234", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"marca":"VOLKSWAGEN","modelo":"GOL"}`))
	})

	raw, err := client.LookupPlate(context.Background(), "ABC1234")
	require.NoError(t, err)
	assert.JSONEq(t, `{"marca":"VOLKSWAGEN","modelo":"GOL"}`, string(raw))
}

func TestLookupPlatePassesProviderMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"erro":true,"mensagem":"Placa não encontrada"}`))
	})

	_, err := client.LookupPlate(context.Background(), "ABC1234")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeProviderUnavailable, typed.Code())
	assert.Equal(t, "Placa não encontrada", typed.Message())
}

func TestLookupPlateNon2xxUsesGenericMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := client.LookupPlate(context.Background(), "ABC1234")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeProviderUnavailable, typed.Code())
	assert.Equal(t, genericProviderErrMsg, typed.Message())
}

func TestFipeNotFoundIsEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fipe/ABC1D23", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	raw, err := client.Fipe(context.Background(), "ABC1D23")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestLookupPlateNotFoundIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"mensagem":"Veículo não localizado"}`))
	})

	_, err := client.LookupPlate(context.Background(), "ABC1234")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "Veículo não localizado", typed.Message())
}

func TestRequestReportAndPollProtocol(t *testing.T) {
	var polls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/solicitarRelatorio":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"protocolo": 99123}`))
		case "/relatorio/99123":
			if atomic.AddInt32(&polls, 1) == 1 {
				_, _ = w.Write([]byte(`{"status":"processando"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"CONCLUIDO","dados":{"marca":"FIAT"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	protocol, err := client.RequestReport(context.Background(), "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, "99123", protocol)

	first, err := client.ReportStatus(context.Background(), protocol)
	require.NoError(t, err)
	assert.False(t, first.Done())

	second, err := client.ReportStatus(context.Background(), protocol)
	require.NoError(t, err)
	assert.True(t, second.Done())
	assert.JSONEq(t, `{"marca":"FIAT"}`, string(second.Data))
}

func TestRequestReportWithoutProtocolFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	_, err := client.RequestReport(context.Background(), "ABC1234")
	require.Error(t, err)
}
