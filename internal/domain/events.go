package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/shopspring/decimal"
)

// =========== Incoming payloads ===========

// ResourceTypeCreatedPayload arrives from catalog.events.
type ResourceTypeCreatedPayload struct {
	ResourceTypeID int64           `json:"resourceTypeId"`
	Name           string          `json:"name"`
	TotalUnits     int             `json:"totalUnits"`
	BasePrice      decimal.Decimal `json:"basePrice"`
	CreatedAtUtc   time.Time       `json:"createdAtUtc"`
}

// =========== Outgoing events ===========

type BookingLineEvent struct {
	ResourceTypeID int64 `json:"resourceTypeId"`
	Quantity       int   `json:"quantity"`
}

type BookingCreatedEvent struct {
	primitives.BaseEvent
	BookingID     uuid.UUID          `json:"bookingId"`
	CustomerID    uuid.UUID          `json:"customerId"`
	CheckIn       string             `json:"checkIn"`
	CheckOut      string             `json:"checkOut"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	Lines         []BookingLineEvent `json:"lines"`
	OccurredAtUtc time.Time          `json:"occurredAtUtc"`
}

func lineEvents(b *Booking) []BookingLineEvent {
	lines := make([]BookingLineEvent, 0, len(b.LineItems))
	for _, li := range b.LineItems {
		lines = append(lines, BookingLineEvent{ResourceTypeID: li.ResourceTypeID, Quantity: li.Quantity})
	}
	return lines
}

func NewBookingCreatedEvent(b *Booking) *BookingCreatedEvent {
	ev := &BookingCreatedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		BookingID:     b.ID,
		CustomerID:    b.CustomerID,
		CheckIn:       FormatDate(b.CheckIn),
		CheckOut:      FormatDate(b.CheckOut),
		TotalAmount:   b.TotalAmount,
		Lines:         lineEvents(b),
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("BookingCreated")
	return ev
}

type BookingCancelledEvent struct {
	primitives.BaseEvent
	BookingID     uuid.UUID          `json:"bookingId"`
	Reason        string             `json:"reason"`
	Lines         []BookingLineEvent `json:"lines"`
	OccurredAtUtc time.Time          `json:"occurredAtUtc"`
}

func NewBookingCancelledEvent(b *Booking, reason string) *BookingCancelledEvent {
	ev := &BookingCancelledEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		BookingID:     b.ID,
		Reason:        reason,
		Lines:         lineEvents(b),
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("BookingCancelled")
	return ev
}

type BookingModifiedEvent struct {
	primitives.BaseEvent
	BookingID     uuid.UUID          `json:"bookingId"`
	CheckIn       string             `json:"checkIn"`
	CheckOut      string             `json:"checkOut"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	Lines         []BookingLineEvent `json:"lines"`
	OccurredAtUtc time.Time          `json:"occurredAtUtc"`
}

func NewBookingModifiedEvent(b *Booking) *BookingModifiedEvent {
	ev := &BookingModifiedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		BookingID:     b.ID,
		CheckIn:       FormatDate(b.CheckIn),
		CheckOut:      FormatDate(b.CheckOut),
		TotalAmount:   b.TotalAmount,
		Lines:         lineEvents(b),
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("BookingModified")
	return ev
}
