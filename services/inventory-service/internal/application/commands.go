package application

// CreateItemCommand seeds an item with a price and initial stock
type CreateItemCommand struct {
	ItemID          string
	SKU             string
	Name            string
	Description     string
	Category        string
	UnitPrice       float64
	Currency        string
	InitialQuantity int
}

// ReceiveStockCommand adds stock to an existing item
type ReceiveStockCommand struct {
	ItemID   string
	Quantity int
}

// CheckStockQuery asks whether quantity units are available now
type CheckStockQuery struct {
	ItemID   string
	Quantity int
}

// ReserveStockCommand places a hold. HoldID is generated when empty.
type ReserveStockCommand struct {
	ItemID   string
	Quantity int
	OwnerID  string
	HoldID   string
}

// ReleaseStockCommand gives a hold back. ItemID is optional.
type ReleaseStockCommand struct {
	HoldID string
	ItemID string
}

// FinalizeStockCommand converts a hold into a sale. ItemID is optional.
type FinalizeStockCommand struct {
	HoldID string
	ItemID string
}

// GetItemQuery reads one item
type GetItemQuery struct {
	ItemID string
}
