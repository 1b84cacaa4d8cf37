package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeInvalidPlateFormat, status: http.StatusBadRequest, publicMsg: "invalid plate format", detailsOK: true},
		{code: CodeInvalidTaxID, status: http.StatusBadRequest, publicMsg: "invalid CPF", detailsOK: true},
		{code: CodeProviderUnavailable, status: http.StatusBadGateway, publicMsg: "upstream provider unavailable", retryable: true, detailsOK: true},
		{code: CodePaymentNotConfirmed, status: http.StatusPaymentRequired, publicMsg: "payment not confirmed", retryable: true},
		{code: CodeInvalidAccessToken, status: http.StatusNotFound, publicMsg: "invalid access token"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.publicMsg, meta.PublicMessage)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
		})
	}

	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing foo", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing foo", base.Error())

	base.WithDetails(map[string]string{"placa": "is required"})
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(CodeForbidden, "no entry"))
	got := As(err)
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestPublicMessageFor(t *testing.T) {
	assert.Equal(t, "placa não encontrada na base", PublicMessageFor(New(CodeProviderUnavailable, "placa não encontrada na base")))
	assert.Equal(t, "internal server error", PublicMessageFor(Wrap(CodeInternal, stdErrors.New("pq: deadlock"), "save order")))
	assert.Equal(t, "dependency unavailable", PublicMessageFor(New(CodeDependency, "redis down")))
	assert.Equal(t, "resource not found", PublicMessageFor(New(CodeNotFound, "")))
	assert.Equal(t, "internal server error", PublicMessageFor(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(stdErrors.New("connection reset")))
	assert.True(t, IsRetryable(New(CodeProviderUnavailable, "timeout")))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", New(CodeValidation, "bad"))))
}

func TestDumpCapturesPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_gateway_payment_id_key", TableName: "orders", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "order already exists")

	dump := Dump(err)
	assert.Equal(t, CodeConflict, dump.Code)
	assert.Equal(t, "23505", dump.PGCode)
	assert.Equal(t, "orders", dump.PGTable)
	assert.Len(t, dump.Chain, 3)

	fields := dump.Fields()
	assert.Equal(t, "orders_gateway_payment_id_key", fields["pg_constraint"])
	assert.NotContains(t, fields, "pg_detail")
}

func TestDumpOfPlainError(t *testing.T) {
	fields := Dump(stdErrors.New("boom")).Fields()
	assert.Equal(t, "boom", fields["error"])
	assert.NotContains(t, fields, "error_code")
	assert.Empty(t, Dump(nil).Chain)
}
