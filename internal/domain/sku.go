package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sku is a distinct inventory item. Quantity is the total stock on record;
// it only ever decreases, and only when a temporary block is converted.
type Sku struct {
	ID        string
	Code      string
	Name      string
	Quantity  int
	Price     decimal.Decimal
	CreatedAt time.Time
}
