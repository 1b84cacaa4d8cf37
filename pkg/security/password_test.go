package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/security"
)

var fastArgon = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", fastArgon)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)

	ok, err := security.VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = security.VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	a, err := security.HashPassword("same", fastArgon)
	require.NoError(t, err)
	b, err := security.HashPassword("same", fastArgon)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPasswordClampsWeakSettings(t *testing.T) {
	hash, err := security.HashPassword("pw", config.PasswordConfig{})
	require.NoError(t, err)
	assert.Contains(t, hash, "$m=8,t=1,p=1$")

	_, err = security.HashPassword("", fastArgon)
	assert.Error(t, err)
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5",
	} {
		_, err := security.VerifyPassword("pw", encoded)
		assert.ErrorIs(t, err, security.ErrInvalidHash, encoded)
	}
}

func TestVerifyOrBurn(t *testing.T) {
	hash, err := security.HashPassword("admin-pass", fastArgon)
	require.NoError(t, err)

	assert.True(t, security.VerifyOrBurn("admin-pass", hash))
	assert.False(t, security.VerifyOrBurn("wrong", hash))
	assert.False(t, security.VerifyOrBurn("admin-pass", ""))
	assert.False(t, security.VerifyOrBurn("admin-pass", "garbage"))
}
