package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingCheckedIn  BookingStatus = "CHECKED_IN"
	BookingCheckedOut BookingStatus = "CHECKED_OUT"
	BookingCancelled  BookingStatus = "CANCELLED"
)

// Holds reports whether a booking in this status keeps its capacity reserved.
func (s BookingStatus) Holds() bool {
	return s != BookingCancelled
}

// Modifiable reports whether dates, resource type or quantity may still change.
func (s BookingStatus) Modifiable() bool {
	return s == BookingConfirmed || s == BookingCheckedIn
}

type BookingLineItem struct {
	ID                uuid.UUID
	BookingID         uuid.UUID
	ResourceTypeID    int64
	Quantity          int
	UnitPricePerNight decimal.Decimal
	// Amount is the exact reservation price of this line over the whole stay.
	Amount decimal.Decimal
}

type Booking struct {
	ID           uuid.UUID
	CustomerID   uuid.UUID
	CheckIn      time.Time
	CheckOut     time.Time
	LineItems    []BookingLineItem
	TotalAmount  decimal.Decimal
	AmountPaid   decimal.Decimal
	Status       BookingStatus
	Notes        string
	CreatedAtUtc time.Time
	UpdatedAtUtc time.Time
}

func (b *Booking) BalanceDue() decimal.Decimal {
	return b.TotalAmount.Sub(b.AmountPaid)
}

func (b *Booking) Nights() int {
	return Nights(b.CheckIn, b.CheckOut)
}

// ComputedTotal sums the reservation amounts of every line item.
func (b *Booking) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range b.LineItems {
		total = total.Add(li.Amount)
	}
	return total
}

func (b *Booking) AppendNote(note string) {
	if note == "" {
		return
	}
	if b.Notes == "" {
		b.Notes = note
		return
	}
	b.Notes = b.Notes + "\n" + note
}

// Snapshot renders the fields recorded in audit entries.
func (b *Booking) Snapshot() map[string]any {
	lines := make([]any, 0, len(b.LineItems))
	for _, li := range b.LineItems {
		lines = append(lines, map[string]any{
			"resource_type_id":     li.ResourceTypeID,
			"quantity":             li.Quantity,
			"unit_price_per_night": li.UnitPricePerNight,
			"amount":               li.Amount,
		})
	}
	return map[string]any{
		"customer_id":  b.CustomerID,
		"check_in":     FormatDate(b.CheckIn),
		"check_out":    FormatDate(b.CheckOut),
		"status":       string(b.Status),
		"total_amount": b.TotalAmount,
		"amount_paid":  b.AmountPaid,
		"line_items":   lines,
	}
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.LineItems = append([]BookingLineItem(nil), b.LineItems...)
	return &c
}

// LineRequest asks for a quantity of one resource type.
type LineRequest struct {
	ResourceTypeID int64
	Quantity       int
}

// LineReservation is the outcome of reserving one LineRequest.
type LineReservation struct {
	ResourceTypeID int64
	Quantity       int
	Price          decimal.Decimal
}

type CreateBookingInput struct {
	Customer   CustomerInfo
	Lines      []LineRequest
	CheckIn    time.Time
	CheckOut   time.Time
	AmountPaid decimal.Decimal
	Notes      string
	// ManualTotal overrides the reservation price when set.
	ManualTotal *decimal.Decimal
}

type ModifyBookingInput struct {
	BookingID   uuid.UUID
	NewCheckIn  *time.Time
	NewCheckOut *time.Time
	// LineItemID selects the line to change; required only when the booking has several.
	LineItemID        *uuid.UUID
	NewResourceTypeID *int64
	NewQuantity       *int
}

// BookingFilter selects bookings for listing. Nil fields match everything;
// StayOn matches bookings whose stay covers that night.
type BookingFilter struct {
	Status     *BookingStatus
	CustomerID *uuid.UUID
	StayOn     *time.Time
	Limit      int
	Offset     int
}

func (f BookingFilter) Matches(b *Booking) bool {
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	if f.CustomerID != nil && b.CustomerID != *f.CustomerID {
		return false
	}
	if f.StayOn != nil {
		d := DateOf(*f.StayOn)
		if d.Before(b.CheckIn) || !d.Before(b.CheckOut) {
			return false
		}
	}
	return true
}
