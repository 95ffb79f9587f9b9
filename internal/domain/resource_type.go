package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceType is a sellable inventory category, e.g. a room category.
type ResourceType struct {
	ID           int64
	Name         string
	TotalUnits   int
	BasePrice    decimal.Decimal
	UpdatedAtUtc time.Time
}

func (r ResourceType) Validate() error {
	if r.ID <= 0 {
		return NewValidationError("resource type id must be positive")
	}
	if r.Name == "" {
		return NewValidationError("resource type name is required")
	}
	if r.TotalUnits <= 0 {
		return NewValidationError("total units must be positive")
	}
	if !r.BasePrice.IsPositive() {
		return NewValidationError("base price must be positive")
	}
	return nil
}
