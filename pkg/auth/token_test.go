package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "placaexpress", ExpirationMinutes: 30}
}

func TestMintAndParseAdminToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, expiresAt, err := MintAdminToken(cfg, now, AdminTokenPayload{Email: " Ops@PlacaExpress.com.br "})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), expiresAt, time.Second)

	claims, err := ParseAdminToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "ops@placaexpress.com.br", claims.Email)
	assert.Equal(t, "ops@placaexpress.com.br", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAdminTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, _, err := MintAdminToken(cfg, time.Now(), AdminTokenPayload{Email: "a@b.c"})
	require.NoError(t, err)

	_, err = ParseAdminToken(cfg, token+"x")
	assert.Error(t, err)

	other := cfg
	other.Secret = "another"
	_, err = ParseAdminToken(other, token)
	assert.Error(t, err)
}

func TestParseAdminTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, _, err := MintAdminToken(cfg, time.Now().Add(-time.Hour), AdminTokenPayload{Email: "a@b.c"})
	require.NoError(t, err)

	_, err = ParseAdminToken(cfg, token)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "expired"), err.Error())
}

func TestParseAdminTokenRejectsOtherRoles(t *testing.T) {
	cfg := testJWTConfig()
	claims := AdminClaims{
		Email: "a@b.c",
		Role:  "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAdminToken(cfg, token)
	assert.Error(t, err)
}

func TestMintAdminTokenValidatesConfig(t *testing.T) {
	_, _, err := MintAdminToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, time.Now(), AdminTokenPayload{Email: "a@b.c"})
	assert.Error(t, err)

	_, _, err = MintAdminToken(testJWTConfig(), time.Now(), AdminTokenPayload{})
	assert.Error(t, err)
}
