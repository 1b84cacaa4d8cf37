package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placaexpress/vehicle-report-backend/pkg/redis/redistest"
)

type brokenLimiter struct{}

func (brokenLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return false, 0, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksAfterIPLimit(t *testing.T) {
	store := redistest.New()
	handler := RateLimit(NewRateLimitPolicy("plate-search", time.Minute, 2, 0), store, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search-plate-preview", strings.NewReader(`{"placa":"ABC1234"}`))
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMIT_EXCEEDED"`)
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/api/v1/search-plate-preview", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.2, 172.16.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitEmailScopeKeepsBodyReadable(t *testing.T) {
	store := redistest.New()
	var seen string
	handler := RateLimit(NewRateLimitPolicy("admin-login", time.Minute, 0, 1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, err := io.Copy(buf, r.Body)
		assert.NoError(t, err)
		seen = buf.String()
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"email":"Admin@Example.com","password":"x"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, seen)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", strings.NewReader(`{"email":"admin@example.com "}`)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitStoreFailure(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("plate-search", time.Minute, 5, 0), brokenLimiter{}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search-plate-preview", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("off", 0, 0, 0), brokenLimiter{}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitEmailScopeReadsBuyerEmail(t *testing.T) {
	store := redistest.New()
	handler := RateLimit(NewRateLimitPolicy("orders", time.Minute, 0, 1), store, nil)(okHandler())

	send := func(body string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/create-pix-order", strings.NewReader(body)))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send(`{"customerEmail":"buyer@example.com"}`))
	assert.Equal(t, http.StatusTooManyRequests, send(`{"customerEmail":"BUYER@example.com"}`))
	assert.Equal(t, http.StatusOK, send(`{"customerEmail":"other@example.com"}`))
	assert.Equal(t, http.StatusOK, send(`not json`))
}
