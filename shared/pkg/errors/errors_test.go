package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessOutcomesAreInBand(t *testing.T) {
	for _, err := range []*AppError{
		ErrItemNotFound("item-1"),
		ErrInsufficientStock(1, 2),
		ErrHoldNotFound("hold-1"),
		ErrPaymentDeclined("card declined"),
	} {
		t.Run(err.Code, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, err.HTTPStatus)
			assert.True(t, err.IsBusinessOutcome())
			assert.False(t, err.IsTransient())
		})
	}
}

func TestErrInsufficientStock_Message(t *testing.T) {
	err := ErrInsufficientStock(1, 2)
	assert.Equal(t, "Insufficient stock. Available: 1, Requested: 2", err.Message)
	assert.Equal(t, "1", err.Details["available"])
	assert.Equal(t, "2", err.Details["requested"])
}

func TestIsTransient(t *testing.T) {
	assert.True(t, ErrTimeout("reserve").IsTransient())
	assert.True(t, ErrServiceUnavailable("inventory-service").IsTransient())
	assert.True(t, ErrBadGateway("payment-service", 500).IsTransient())
	assert.False(t, ErrValidation("quantity must be positive").IsTransient())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("reserve: %w", ErrHoldNotFound("hold-1"))
	assert.Equal(t, CodeHoldNotFound, FromError(wrapped).Code)

	timeout := FromError(fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.Equal(t, CodeTimeout, timeout.Code)
	assert.Equal(t, http.StatusGatewayTimeout, timeout.HTTPStatus)

	internal := FromError(errors.New("boom"))
	assert.Equal(t, CodeInternalError, internal.Code)
	assert.EqualError(t, internal.Unwrap(), "boom")
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{errors.New("payment not found"), CodeNotFound},
		{errors.New("item already exists"), CodeConflict},
		{errors.New("quantity must be positive"), CodeValidationError},
		{errors.New("upstream timed out"), CodeTimeout},
		{errors.New("disk on fire"), CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, MapDomainError(tt.err).Code)
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("charge: %w", ErrPaymentDeclined("limit exceeded"))
	assert.True(t, HasCode(err, CodePaymentDeclined))
	assert.False(t, HasCode(err, CodeTimeout))
	assert.False(t, HasCode(errors.New("plain"), CodePaymentDeclined))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "PAYMENT_DECLINED: limit exceeded", appErr.Error())
}
