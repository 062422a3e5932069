package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RequestItem is a line item owned by a single PurchaseRequest. Items are
// replaced wholesale when the owning request is edited, never patched.
type RequestItem struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ComputeTotal recomputes total_price = quantity * unit_price with exact
// decimal arithmetic. Called on every write.
func (i *RequestItem) ComputeTotal() {
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Validate checks the item invariants and recomputes the total.
func (i *RequestItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &ValidationError{Field: "item_name", Reason: "must not be empty"}
	}
	if i.Quantity < 1 {
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if !i.UnitPrice.IsPositive() {
		return &ValidationError{Field: "unit_price", Reason: "must be greater than zero"}
	}
	if i.UnitPrice.Exponent() < -2 {
		return &ValidationError{Field: "unit_price", Reason: "must have at most 2 decimal places"}
	}
	i.ComputeTotal()
	return nil
}
