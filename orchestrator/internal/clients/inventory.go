package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
)

type checkStockRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type holdRequest struct {
	ItemID string `json:"itemId,omitempty"`
}

// CheckStock asks inventory-service whether quantity units are available
func (c *ServiceClients) CheckStock(ctx context.Context, itemID string, quantity int) (*saga.StockCheck, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/check", c.config.InventoryServiceURL)
	var result saga.StockCheck
	if err := c.doRequest(ctx, InventoryService, http.MethodPost, endpoint, checkStockRequest{ItemID: itemID, Quantity: quantity}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReserveStock places a hold
func (c *ServiceClients) ReserveStock(ctx context.Context, req saga.ReserveRequest) (*saga.Reservation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/reserve", c.config.InventoryServiceURL)
	var result saga.Reservation
	if err := c.doRequest(ctx, InventoryService, http.MethodPost, endpoint, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetItem reads an item for pricing
func (c *ServiceClients) GetItem(ctx context.Context, itemID string) (*saga.ItemLookup, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/items/%s", c.config.InventoryServiceURL, url.PathEscape(itemID))
	var result saga.ItemLookup
	if err := c.doRequest(ctx, InventoryService, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReleaseStock gives a hold back
func (c *ServiceClients) ReleaseStock(ctx context.Context, holdID, itemID string) (*saga.Release, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/holds/%s/release", c.config.InventoryServiceURL, url.PathEscape(holdID))
	var result saga.Release
	if err := c.doRequest(ctx, InventoryService, http.MethodPost, endpoint, holdRequest{ItemID: itemID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FinalizeStock turns a hold into a sale
func (c *ServiceClients) FinalizeStock(ctx context.Context, holdID, itemID string) (*saga.Finalization, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/holds/%s/finalize", c.config.InventoryServiceURL, url.PathEscape(holdID))
	var result saga.Finalization
	if err := c.doRequest(ctx, InventoryService, http.MethodPost, endpoint, holdRequest{ItemID: itemID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

var _ saga.InventoryPort = (*ServiceClients)(nil)
