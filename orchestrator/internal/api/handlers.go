package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/idempotency"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/middleware"
)

// PurchaseHandler serves the purchase API
type PurchaseHandler struct {
	orchestrator *saga.PurchaseOrchestrator
	logger       *logging.Logger
}

// NewPurchaseHandler creates a new PurchaseHandler
func NewPurchaseHandler(orchestrator *saga.PurchaseOrchestrator, logger *logging.Logger) *PurchaseHandler {
	return &PurchaseHandler{orchestrator: orchestrator, logger: logger}
}

// NewRouter builds the HTTP surface of the orchestrator. idem may be nil,
// in which case Idempotency-Key headers are ignored.
func NewRouter(serviceName string, orchestrator *saga.PurchaseOrchestrator, idem *idempotency.Config, m *metrics.Metrics, logger *logging.Logger, ready ...func() error) *gin.Engine {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, ready...))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	group := router.Group("/api/v1/purchases")
	if idem != nil {
		group.Use(idempotency.Middleware(idem))
	}
	NewPurchaseHandler(orchestrator, logger).RegisterRoutes(group)
	return router
}

// RegisterRoutes mounts the purchase endpoints on group
func (h *PurchaseHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.Purchase)
	group.GET("/:sagaId", h.GetPurchase)
}

type purchaseRequest struct {
	ItemID         string               `json:"itemId" binding:"required,item_id"`
	Quantity       int                  `json:"quantity" binding:"required,min=1"`
	OwnerID        string               `json:"ownerId" binding:"required,max=128"`
	PaymentDetails *saga.PaymentDetails `json:"paymentDetails"`
}

// Purchase handles POST /api/v1/purchases. The saga's outcome decides the
// status: 200 on success, 409 for a business rejection, 502 or 504 when a
// collaborator failed.
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req purchaseRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.orchestrator.Purchase(c.Request.Context(), saga.PurchaseRequest{
		ItemID:         req.ItemID,
		Quantity:       req.Quantity,
		OwnerID:        req.OwnerID,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(result.HTTPStatus, result)
}

type executionResponse struct {
	Success bool            `json:"success"`
	Data    *saga.Execution `json:"data"`
}

// GetPurchase handles GET /api/v1/purchases/:sagaId
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	exec, err := h.orchestrator.GetExecution(c.Request.Context(), c.Param("sagaId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, executionResponse{Success: true, Data: exec})
}
