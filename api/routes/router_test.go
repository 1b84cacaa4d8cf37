package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placaexpress/vehicle-report-backend/internal/auth"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	pkgAuth "github.com/placaexpress/vehicle-report-backend/pkg/auth"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis/redistest"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubPlates struct{ calls int }

func (s *stubPlates) Lookup(context.Context, string) (*platequery.LookupResult, error) {
	s.calls++
	return &platequery.LookupResult{PlateQueryID: uuid.New(), Preview: types.PlatePreview{Marca: "FIAT"}}, nil
}

type stubAuthService struct{}

func (stubAuthService) Login(context.Context, auth.LoginRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "jwt"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", CORSOrigins: "https://placaexpress.com.br"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "placaexpress", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			PlateSearchWindow: time.Minute,
			PlateSearchLimit:  2,
			AdminLoginWindow:  time.Minute,
			AdminLoginLimit:   5,
		},
	}
}

func newTestRouter(cfg *config.Config, plates *stubPlates) http.Handler {
	return NewRouter(cfg, nil, Dependencies{
		DB:        stubPinger{},
		Redis:     redistest.New(),
		Plates:    plates,
		AdminAuth: stubAuthService{},
		Registry:  prometheus.NewRegistry(),
	})
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPlates{})

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPlateSearchIsRateLimited(t *testing.T) {
	plates := &stubPlates{}
	router := newTestRouter(testConfig(), plates)

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search-plate-preview", strings.NewReader(`{"placa":"ABC1234"}`))
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 2, plates.calls)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubPlates{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/customers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := pkgAuth.MintAdminToken(cfg.JWT, time.Now(), pkgAuth.AdminTokenPayload{Email: "ops@placaexpress.com.br", JTI: "t1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/customers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	// No customer service is wired in this router, so the request gets past auth and fails inside.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", strings.NewReader(`{"email":"ops@placaexpress.com.br","password":"pw"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalRoutesNotMounted(t *testing.T) {
	cfg := testConfig()
	cfg.FeatureFlags.LegacyCheckout = true
	cfg.FeatureFlags.AsaasWebhookOpen = true
	router := newTestRouter(cfg, &stubPlates{})

	for _, path := range []string{"/api/v1/create-payment", "/api/v1/check-payment", "/api/v1/webhooks/asaas"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPlates{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/create-pix-order", nil)
	req.Header.Set("Origin", "https://placaexpress.com.br")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Idempotency-Key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://placaexpress.com.br", rec.Header().Get("Access-Control-Allow-Origin"))
}
