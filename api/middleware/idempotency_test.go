package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis/redistest"
)

const createOrderPath = "/api/v1/create-pix-order"

func postOrder(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, createOrderPath, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.False(t, payload.Success)
	return payload.Code
}

func TestRouteTTL(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, createOrderPath, checkoutIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/create-payment", checkoutIdempotencyTTL, true},
		{http.MethodPost, "/api/admin/v1/customers/backfill", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/search-plate-preview", 0, false},
		{http.MethodGet, createOrderPath, 0, false},
	}
	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		assert.Equal(t, tt.ok, ok, tt.method+" "+tt.path)
		assert.Equal(t, tt.want, ttl, tt.method+" "+tt.path)
	}
}

func TestIdempotencyWithoutHeaderRunsHandler(t *testing.T) {
	calls := 0
	h := Idempotency(redistest.New(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), postOrder("", `{"plateQueryId":"x"}`))
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	h := Idempotency(redistest.New(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"orderId":"o-1"}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postOrder("abc", `{"plateQueryId":"x"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	again := httptest.NewRecorder()
	h.ServeHTTP(again, postOrder("abc", `{"plateQueryId":"x"}`))
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "application/json", again.Header().Get("Content-Type"))
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"success":true,"orderId":"o-1"}`, again.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	store := redistest.New()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), postOrder("retry-me", `{}`))
	}
	assert.Equal(t, 2, calls)
	assert.False(t, store.Has(store.IdempotencyKey("POST|"+createOrderPath, "retry-me")))
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := Idempotency(redistest.New(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), postOrder("xyz", `{"plateQueryId":"a"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postOrder("xyz", `{"plateQueryId":"b"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := redistest.New()
	var inner *httptest.ResponseRecorder
	var h http.Handler
	h = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			// the same key arrives while this request is still running
			h.ServeHTTP(inner, postOrder("dup", `{}`).WithContext(context.Background()))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	outer := httptest.NewRecorder()
	h.ServeHTTP(outer, postOrder("dup", `{}`))
	assert.Equal(t, http.StatusCreated, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, inner))
}

func TestIdempotencyRejectsLongKey(t *testing.T) {
	h := Idempotency(redistest.New(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postOrder(strings.Repeat("k", maxIdempotencyKeyLen+1), `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
