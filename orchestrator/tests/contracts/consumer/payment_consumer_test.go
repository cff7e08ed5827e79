//go:build contract

package consumer_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/pact-foundation/pact-go/v2/consumer"
	"github.com/pact-foundation/pact-go/v2/matchers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
)

const paymentProvider = "payment-service"

func paymentRequestBody(orderID string) matchers.Map {
	return matchers.Map{
		"ownerId":       matchers.String("user-1"),
		"amount":        matchers.Decimal(60.0),
		"currency":      matchers.String("USD"),
		"paymentMethod": matchers.String("CreditCard"),
		"orderId":       matchers.Like(orderID),
	}
}

func paymentRequest(orderID string) saga.PaymentRequest {
	return saga.PaymentRequest{
		OwnerID:       "user-1",
		Amount:        60,
		Currency:      "USD",
		PaymentMethod: "CreditCard",
		OrderID:       orderID,
	}
}

func TestPaymentServiceConsumer(t *testing.T) {
	t.Run("ProcessPayment", func(t *testing.T) {
		err := newPact(t, paymentProvider).
			AddInteraction().
			Given("payments are accepted").
			UponReceiving("a request to charge for a purchase").
			WithRequest(http.MethodPost, "/api/v1/payments/process", jsonRequest(paymentRequestBody("ORDER_1"))).
			WillRespondWith(http.StatusOK, jsonResponse(matchers.Map{
				"success":       matchers.Like(true),
				"message":       matchers.String("Payment processed successfully"),
				"paymentId":     UUIDMatcher(),
				"transactionId": matchers.Regex("TXN_0123456789ABCDEF", `^TXN_[0-9A-F]{16}$`),
				"status":        matchers.Like("SUCCESS"),
				"ownerId":       matchers.String("user-1"),
				"amount":        matchers.Decimal(60.0),
				"currency":      matchers.String("USD"),
				"orderId":       matchers.String("ORDER_1"),
				"createdAt":     TimestampMatcher(),
			})).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				res, err := newClients(config).ProcessPayment(context.Background(), paymentRequest("ORDER_1"))
				if err != nil {
					return err
				}
				assert.True(t, res.Success)
				assert.NotEmpty(t, res.PaymentID)
				assert.Regexp(t, `^TXN_[0-9A-F]{16}$`, res.TransactionID)
				return nil
			})
		require.NoError(t, err)
	})

	t.Run("ProcessPaymentDeclined", func(t *testing.T) {
		err := newPact(t, paymentProvider).
			AddInteraction().
			Given("payments are declined").
			UponReceiving("a request to charge that the gateway declines").
			WithRequest(http.MethodPost, "/api/v1/payments/process", jsonRequest(paymentRequestBody("ORDER_2"))).
			WillRespondWith(http.StatusOK, jsonResponse(matchers.Map{
				"success": matchers.Like(false),
				"message": matchers.String("Payment processing failed"),
				"code":    matchers.Like(apperrors.CodePaymentDeclined),
				"status":  matchers.Like("FAILED"),
			})).
			ExecuteTest(t, func(config consumer.MockServerConfig) error {
				res, err := newClients(config).ProcessPayment(context.Background(), paymentRequest("ORDER_2"))
				if err != nil {
					return err
				}
				assert.False(t, res.Success)
				assert.Equal(t, apperrors.CodePaymentDeclined, res.Code)
				return nil
			})
		require.NoError(t, err)
	})
}
