package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/middleware"
)

// NewRouter builds the HTTP surface of the inventory facade
func NewRouter(serviceName string, service *application.InventoryApplicationService, m *metrics.Metrics, logger *logging.Logger, ready ...func() error) *gin.Engine {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, ready...))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	api := router.Group("/api/v1/inventory")
	{
		api.POST("/items", createItemHandler(service, logger))
		api.GET("/items/:itemId", getItemHandler(service, logger))
		api.POST("/items/:itemId/receive", receiveStockHandler(service, logger))

		api.POST("/check", checkStockHandler(service, logger))
		api.POST("/reserve", reserveStockHandler(service, logger))

		api.POST("/holds/:holdId/release", releaseStockHandler(service, logger))
		api.POST("/holds/:holdId/finalize", finalizeStockHandler(service, logger))
	}

	return router
}

type createItemRequest struct {
	ItemID          string   `json:"itemId" binding:"omitempty,item_id"`
	SKU             string   `json:"sku" binding:"max=64"`
	Name            string   `json:"name" binding:"required,max=200"`
	Description     string   `json:"description" binding:"max=2000"`
	Category        string   `json:"category" binding:"omitempty,category"`
	UnitPrice       *float64 `json:"unitPrice" binding:"required,gte=0"`
	Currency        string   `json:"currency" binding:"omitempty,currency"`
	InitialQuantity int      `json:"initialQuantity" binding:"gte=0"`
}

func createItemHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req createItemRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.CreateItem(c.Request.Context(), application.CreateItemCommand{
			ItemID:          req.ItemID,
			SKU:             req.SKU,
			Name:            req.Name,
			Description:     req.Description,
			Category:        req.Category,
			UnitPrice:       *req.UnitPrice,
			Currency:        req.Currency,
			InitialQuantity: req.InitialQuantity,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

func getItemHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := service.GetItem(c.Request.Context(), application.GetItemQuery{ItemID: c.Param("itemId")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func receiveStockHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Quantity int `json:"quantity" binding:"required,min=1"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.ReceiveStock(c.Request.Context(), application.ReceiveStockCommand{
			ItemID:   c.Param("itemId"),
			Quantity: req.Quantity,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func checkStockHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ItemID   string `json:"itemId" binding:"required,item_id"`
			Quantity int    `json:"quantity" binding:"required,min=1"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.CheckStock(c.Request.Context(), application.CheckStockQuery{
			ItemID:   req.ItemID,
			Quantity: req.Quantity,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func reserveStockHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ItemID   string `json:"itemId" binding:"required,item_id"`
			Quantity int    `json:"quantity" binding:"required,min=1"`
			OwnerID  string `json:"ownerId" binding:"required,max=128"`
			HoldID   string `json:"holdId" binding:"omitempty,hold_id"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.ReserveStock(c.Request.Context(), application.ReserveStockCommand{
			ItemID:   req.ItemID,
			Quantity: req.Quantity,
			OwnerID:  req.OwnerID,
			HoldID:   req.HoldID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// holdRequest is the optional body of the hold endpoints
type holdRequest struct {
	ItemID string `json:"itemId" binding:"omitempty,item_id"`
}

func bindHoldRequest(c *gin.Context) (holdRequest, bool) {
	var req holdRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return req, false
	}
	return req, true
}

func releaseStockHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		req, ok := bindHoldRequest(c)
		if !ok {
			return
		}

		result, err := service.ReleaseStock(c.Request.Context(), application.ReleaseStockCommand{
			HoldID: c.Param("holdId"),
			ItemID: req.ItemID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func finalizeStockHandler(service *application.InventoryApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		req, ok := bindHoldRequest(c)
		if !ok {
			return
		}

		result, err := service.FinalizeStock(c.Request.Context(), application.FinalizeStockCommand{
			HoldID: c.Param("holdId"),
			ItemID: req.ItemID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
