package application

import (
	"time"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
)

// ToItemDTO converts an item to its response shape as seen at now
func ToItemDTO(item *domain.InventoryItem, now time.Time) *ItemDTO {
	if item == nil {
		return nil
	}

	active := item.ActiveHolds(now)
	holds := make([]HoldDTO, len(active))
	for i, h := range active {
		holds[i] = HoldDTO{
			HoldID:    h.HoldID,
			OwnerID:   h.OwnerID,
			Quantity:  h.Quantity,
			CreatedAt: h.CreatedAt,
			ExpiresAt: h.ExpiresAt,
		}
	}

	return &ItemDTO{
		ID:                item.ID,
		SKU:               item.SKU,
		Name:              item.Name,
		Description:       item.Description,
		Category:          string(item.Category),
		UnitPrice:         item.UnitPrice,
		Currency:          item.Currency,
		TotalQuantity:     item.TotalQuantity,
		AvailableQuantity: item.AvailableQuantity(now),
		ReservedQuantity:  item.ReservedQuantity(now),
		ActiveHolds:       holds,
		IsActive:          item.IsActive,
		Version:           item.Version,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
}
