package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/middleware"
)

// PaymentHandler handles HTTP requests for payments
type PaymentHandler struct {
	service *application.PaymentService
	logger  *logging.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(service *application.PaymentService, logger *logging.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// NewRouter builds the HTTP surface of the payment service
func NewRouter(serviceName string, service *application.PaymentService, m *metrics.Metrics, logger *logging.Logger, ready ...func() error) *gin.Engine {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, ready...))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	NewPaymentHandler(service, logger).RegisterRoutes(router.Group("/api/v1/payments"))
	return router
}

// RegisterRoutes mounts the payment endpoints on group
func (h *PaymentHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/process", h.ProcessPayment)
	group.GET("/history/:ownerId", h.GetHistory)
	group.GET("/:paymentId", h.GetPayment)
	group.GET("/:paymentId/validate", h.ValidatePayment)
	group.POST("/:paymentId/refund", h.RefundPayment)
}

// ProcessPayment handles POST /api/v1/payments/process
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var cmd application.ProcessPaymentCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"payment.order_id": cmd.OrderID,
		"payment.amount":   cmd.Amount,
		"payment.method":   cmd.PaymentMethod,
	})

	result, err := h.service.ProcessPayment(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPayment handles GET /api/v1/payments/:paymentId
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	h.lookup(c, h.service.GetPayment)
}

// ValidatePayment handles GET /api/v1/payments/:paymentId/validate
func (h *PaymentHandler) ValidatePayment(c *gin.Context) {
	h.lookup(c, h.service.ValidatePayment)
}

// RefundPayment handles POST /api/v1/payments/:paymentId/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	h.lookup(c, h.service.RefundPayment)
}

func (h *PaymentHandler) lookup(c *gin.Context, op func(ctx context.Context, paymentID string) (*application.PaymentResult, error)) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	paymentID := c.Param("paymentId")
	middleware.AddSpanAttributes(c, map[string]interface{}{"payment.id": paymentID})

	result, err := op(c.Request.Context(), paymentID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHistory handles GET /api/v1/payments/history/:ownerId
func (h *PaymentHandler) GetHistory(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	result, err := h.service.GetHistory(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
