package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeSurface(t *testing.T) {
	t.Parallel()

	// status, retryable, details allowed, client sees its own message
	surface := map[Code]struct {
		status                    int
		retry, details, ownMsgOut bool
	}{
		CodeValidation:    {http.StatusBadRequest, false, true, true},
		CodeUnauthorized:  {http.StatusUnauthorized, false, false, true},
		CodeForbidden:     {http.StatusForbidden, false, false, true},
		CodeNotFound:      {http.StatusNotFound, false, false, true},
		CodeConflict:      {http.StatusConflict, false, false, true},
		CodeStateConflict: {http.StatusUnprocessableEntity, false, true, true},
		CodeIdempotency:   {http.StatusConflict, false, true, true},
		CodeRateLimit:     {http.StatusTooManyRequests, false, false, true},
		CodeInternal:      {http.StatusInternalServerError, true, false, false},
		CodeDependency:    {http.StatusServiceUnavailable, true, true, false},
	}

	for code, want := range surface {
		meta := MetadataFor(code)
		assert.Equal(t, want.status, meta.HTTPStatus, code)
		assert.Equal(t, want.retry, meta.Retryable, code)
		assert.Equal(t, want.details, meta.DetailsAllowed, code)

		err := New(code, "secret detail")
		if want.ownMsgOut {
			assert.Equal(t, "secret detail", err.PublicMessage(), code)
		} else {
			assert.Equal(t, meta.PublicMessage, err.PublicMessage(), code)
		}
		assert.Equal(t, meta.PublicMessage, New(code, "").PublicMessage(), code)
	}

	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("NOT_A_CODE"))
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	t.Parallel()

	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load cart").WithDetails(map[string]string{"step": "cart"})

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "DEPENDENCY_ERROR: load cart: connection reset", err.Error())
	assert.Equal(t, map[string]string{"step": "cart"}, err.Details())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Nil(t, nilErr.WithDetails("ignored"))
	assert.Empty(t, nilErr.Error())
}

func TestCodeLookupThroughWrapping(t *testing.T) {
	t.Parallel()

	coded := Newf(CodeValidation, "minimum purchase of %s required", "500.00")
	wrapped := fmt.Errorf("checkout: %w", coded)

	assert.Equal(t, "minimum purchase of 500.00 required", coded.Message())
	assert.Same(t, coded, As(wrapped))
	assert.True(t, IsCode(wrapped, CodeValidation))
	assert.False(t, IsCode(wrapped, CodeConflict))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeValidation))
	assert.Nil(t, As(nil))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(wrapped))
	assert.True(t, IsRetryable(Wrap(CodeDependency, stdErrors.New("timeout"), "publish")))
	assert.True(t, IsRetryable(stdErrors.New("plain")), "uncoded errors may be retried")
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	t.Run("chain without driver error", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("checkout: %w", Wrap(CodeDependency, stdErrors.New("connection reset"), "load cart"))
		d := Diagnose(err)
		assert.Equal(t, CodeDependency, d.Code)
		assert.Len(t, d.Chain, 3)
		assert.Nil(t, d.Postgres)
	})

	t.Run("pgx unique violation", func(t *testing.T) {
		t.Parallel()
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "user_coupons_user_id_coupon_id_key", TableName: "user_coupons"}
		d := Diagnose(Wrap(CodeConflict, pgErr, "claim coupon"))
		require.NotNil(t, d.Postgres)
		assert.Equal(t, "23505", d.Postgres.Code)
		assert.Equal(t, "user_coupons", d.Postgres.Table)
	})

	t.Run("lib/pq error", func(t *testing.T) {
		t.Parallel()
		pqErr := &pq.Error{Code: "42P01", Table: "goose_db_version", Message: "relation does not exist"}
		d := Diagnose(fmt.Errorf("goose up: %w", pqErr))
		require.NotNil(t, d.Postgres)
		assert.Equal(t, "42P01", d.Postgres.Code)
		assert.Equal(t, "relation does not exist", d.Postgres.Message)
		assert.Empty(t, d.Code)
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Diagnostics{}, Diagnose(nil))
	})
}
