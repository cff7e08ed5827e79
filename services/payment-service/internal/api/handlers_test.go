package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/gateway"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/memory"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/contracts/openapi"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type faultyRepo struct {
	*memory.PaymentRepository
	err error
}

func (r *faultyRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.PaymentRepository.FindByOrderID(ctx, orderID)
}

func (r *faultyRepo) Ping(ctx context.Context) error {
	return r.err
}

type apiHarness struct {
	t         *testing.T
	router    *gin.Engine
	repo      *faultyRepo
	validator *openapi.Validator
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()

	validator, err := openapi.NewValidator("../../docs/openapi.yaml")
	require.NoError(t, err)

	repo := &faultyRepo{PaymentRepository: memory.NewPaymentRepository()}
	logger := logging.NewNop()
	service := application.NewPaymentService(
		repo,
		gateway.NewSimulatedGateway(0, 1),
		clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		logger,
		nil,
	)

	router := NewRouter("payment-service", service, metrics.New(metrics.DefaultConfig("test")), logger, func() error {
		return service.Ping(context.Background())
	})
	return &apiHarness{t: t, router: router, repo: repo, validator: validator}
}

func (h *apiHarness) do(method, path string, payload any) *httptest.ResponseRecorder {
	h.t.Helper()

	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		require.NoError(h.t, err)
	}
	newRequest := func() *http.Request {
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, newRequest())

	if rec.Code != http.StatusBadRequest {
		require.NoError(h.t, h.validator.ValidateRequest(newRequest()))
	}
	require.NoError(h.t, h.validator.ValidateRecorded(newRequest(), rec), rec.Body.String())
	return rec
}

func chargeBody(orderID, cardNumber string, amount float64) map[string]any {
	return map[string]any{
		"ownerId":       "user-1",
		"amount":        amount,
		"currency":      "USD",
		"paymentMethod": "CreditCard",
		"orderId":       orderID,
		"details": map[string]any{
			"cardNumber": cardNumber,
			"cardHolder": "Jane Doe",
		},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestProcessPayment(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/payments/process", chargeBody("ORDER_1", "4111111111111234", 60))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[application.PaymentResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, application.MsgProcessed, result.Message)
	assert.Equal(t, "SUCCESS", result.Status)
	assert.Equal(t, "ORDER_1", result.OrderID)

	again := decode[application.PaymentResult](t, h.do(http.MethodPost, "/api/v1/payments/process", chargeBody("ORDER_1", "4111111111111234", 60)))
	assert.Equal(t, result.PaymentID, again.PaymentID)
	assert.Equal(t, []string{"payment.processed"}, h.repo.Events())
}

func TestProcessPayment_DeclinesAreInBand(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		reason string
	}{
		{"blocked test card", chargeBody("ORDER_1", "4000000000000000", 60), gateway.ReasonCardBlocked},
		{"over the limit", chargeBody("ORDER_2", "4111111111111234", 10000.5), gateway.ReasonAmountLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			rec := h.do(http.MethodPost, "/api/v1/payments/process", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			result := decode[application.PaymentResult](t, rec)
			assert.False(t, result.Success)
			assert.Equal(t, "PAYMENT_DECLINED", result.Code)
			assert.Equal(t, application.MsgProcessingFailed, result.Message)
			assert.Equal(t, "FAILED", result.Status)
		})
	}
}

func TestProcessPayment_BadRequest(t *testing.T) {
	h := newHarness(t)

	body := chargeBody("ORDER_1", "4111111111111234", 60)
	body["currency"] = "usd"
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/payments/process", body).Code)

	body = chargeBody("ORDER_1", "4111111111111234", 0)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/payments/process", body).Code)
}

func TestGetValidateAndRefund(t *testing.T) {
	h := newHarness(t)

	processed := decode[application.PaymentResult](t, h.do(http.MethodPost, "/api/v1/payments/process", chargeBody("ORDER_1", "4111111111111234", 60)))
	base := "/api/v1/payments/" + processed.PaymentID

	got := decode[application.PaymentResult](t, h.do(http.MethodGet, base, nil))
	assert.True(t, got.Success)
	assert.Equal(t, application.MsgFound, got.Message)

	valid := decode[application.PaymentResult](t, h.do(http.MethodGet, base+"/validate", nil))
	assert.True(t, valid.Success)

	refunded := decode[application.PaymentResult](t, h.do(http.MethodPost, base+"/refund", nil))
	assert.True(t, refunded.Success)
	assert.Equal(t, "REFUNDED", refunded.Status)

	rec := h.do(http.MethodPost, base+"/refund", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	invalid := decode[application.PaymentResult](t, h.do(http.MethodGet, base+"/validate", nil))
	assert.False(t, invalid.Success)
	assert.Equal(t, application.MsgNotValid, invalid.Message)
}

func TestGetPayment_NotFoundIsInBand(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/payments/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[application.PaymentResult](t, rec)
	assert.False(t, result.Success)
	assert.Equal(t, "PAYMENT_NOT_FOUND", result.Code)
	assert.Equal(t, application.MsgNotFound, result.Message)
}

func TestGetHistory(t *testing.T) {
	h := newHarness(t)
	for _, order := range []string{"ORDER_1", "ORDER_2"} {
		h.do(http.MethodPost, "/api/v1/payments/process", chargeBody(order, "4111111111111234", 60))
	}

	rec := h.do(http.MethodGet, "/api/v1/payments/history/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	history := decode[application.HistoryResult](t, rec)
	assert.Equal(t, application.MsgHistory, history.Message)
	require.Len(t, history.Payments, 2)
	assert.Equal(t, "Card: ****1234, Holder: Jane Doe", history.Payments[0].PaymentDetails)
}

func TestStorageFault(t *testing.T) {
	h := newHarness(t)
	h.repo.err = errors.New("connection refused")

	rec := h.do(http.MethodPost, "/api/v1/payments/process", chargeBody("ORDER_1", "4111111111111234", 60))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/ready", nil).Code)
}
