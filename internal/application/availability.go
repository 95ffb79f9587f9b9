package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// CapacityReader is the read side of the capacity store.
type CapacityReader interface {
	ListRange(ctx context.Context, resourceTypeID int64, from, to time.Time) ([]domain.CapacityRecord, error)
}

// AvailabilityChecker answers whether a quantity can be supplied across a
// span. It takes no locks; its answer is advisory.
type AvailabilityChecker struct{}

func NewAvailabilityChecker() *AvailabilityChecker {
	return &AvailabilityChecker{}
}

func (c *AvailabilityChecker) Check(
	ctx context.Context,
	reader CapacityReader,
	resourceTypeID int64,
	checkIn, checkOut time.Time,
	quantity int,
) (domain.AvailabilityResult, error) {
	checkIn, checkOut = domain.DateOf(checkIn), domain.DateOf(checkOut)
	res := domain.AvailabilityResult{
		ResourceTypeID: resourceTypeID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Quantity:       quantity,
		EstimatedPrice: decimal.Zero,
	}
	if err := domain.ValidateStay(checkIn, checkOut); err != nil {
		return res, err
	}
	if quantity <= 0 {
		return res, domain.NewValidationError("quantity must be positive")
	}

	records, err := reader.ListRange(ctx, resourceTypeID, checkIn, checkOut)
	if err != nil {
		return res, fmt.Errorf("list capacity: %w", err)
	}
	byDate := make(map[time.Time]domain.CapacityRecord, len(records))
	for _, rec := range records {
		byDate[domain.DateOf(rec.Date)] = rec
	}

	first := true
	for _, d := range domain.DatesInRange(checkIn, checkOut) {
		rec, ok := byDate[d]
		if !ok {
			res.MissingDates = append(res.MissingDates, d)
			continue
		}
		if first || rec.AvailableUnits < res.LimitingUnits {
			day := d
			res.LimitingUnits = rec.AvailableUnits
			res.LimitingDate = &day
			first = false
		}
		res.EstimatedPrice = res.EstimatedPrice.Add(rec.Price.Mul(decimal.NewFromInt(int64(quantity))))
	}

	res.OK = len(res.MissingDates) == 0 && !first && res.LimitingUnits >= quantity
	return res, nil
}

// availabilityErr converts a failed result into the matching typed error.
func availabilityErr(res domain.AvailabilityResult) error {
	if res.OK {
		return nil
	}
	if len(res.MissingDates) > 0 {
		return &domain.CapacityRecordMissingError{ResourceTypeID: res.ResourceTypeID, Dates: res.MissingDates}
	}
	e := &domain.CapacityUnavailableError{
		ResourceTypeID: res.ResourceTypeID,
		Requested:      res.Quantity,
		Available:      res.LimitingUnits,
	}
	if res.LimitingDate != nil {
		e.Date = *res.LimitingDate
	}
	return e
}
