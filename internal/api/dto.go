package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// Requests

type customerRequest struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	IDProofType   string `json:"idProofType"`
	IDProofNumber string `json:"idProofNumber"`
}

type lineRequest struct {
	ResourceTypeID int64 `json:"resourceTypeId" binding:"required"`
	Quantity       int   `json:"quantity" binding:"required"`
}

type createBookingRequest struct {
	Customer    customerRequest  `json:"customer" binding:"required"`
	Lines       []lineRequest    `json:"lines" binding:"required,dive"`
	CheckIn     string           `json:"checkIn" binding:"required"`
	CheckOut    string           `json:"checkOut" binding:"required"`
	AmountPaid  decimal.Decimal  `json:"amountPaid"`
	Notes       string           `json:"notes"`
	TotalAmount *decimal.Decimal `json:"totalAmount"`
}

type modifyBookingRequest struct {
	CheckIn        *string    `json:"checkIn"`
	CheckOut       *string    `json:"checkOut"`
	LineItemID     *uuid.UUID `json:"lineItemId"`
	ResourceTypeID *int64     `json:"resourceTypeId"`
	Quantity       *int       `json:"quantity"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type horizonRequest struct {
	DaysAhead int              `json:"daysAhead"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Price     *decimal.Decimal `json:"price"`
}

type priceRequest struct {
	From  string          `json:"from" binding:"required"`
	To    string          `json:"to" binding:"required"`
	Price decimal.Decimal `json:"price"`
}

// Responses

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error          string   `json:"error"`
	Code           string   `json:"code,omitempty"`
	ResourceTypeID *int64   `json:"resourceTypeId,omitempty"`
	Date           *string  `json:"date,omitempty"`
	Requested      *int     `json:"requested,omitempty"`
	Available      *int     `json:"available,omitempty"`
	MissingDates   []string `json:"missingDates,omitempty"`
}

type availabilityResponse struct {
	ResourceTypeID int64           `json:"resourceTypeId"`
	CheckIn        string          `json:"checkIn"`
	CheckOut       string          `json:"checkOut"`
	Quantity       int             `json:"quantity"`
	Available      bool            `json:"available"`
	LimitingUnits  int             `json:"limitingUnits"`
	LimitingDate   *string         `json:"limitingDate,omitempty"`
	MissingDates   []string        `json:"missingDates"`
	EstimatedPrice decimal.Decimal `json:"estimatedPrice"`
}

func toAvailabilityResponse(r domain.AvailabilityResult) availabilityResponse {
	resp := availabilityResponse{
		ResourceTypeID: r.ResourceTypeID,
		CheckIn:        domain.FormatDate(r.CheckIn),
		CheckOut:       domain.FormatDate(r.CheckOut),
		Quantity:       r.Quantity,
		Available:      r.OK,
		LimitingUnits:  r.LimitingUnits,
		MissingDates:   []string{},
		EstimatedPrice: r.EstimatedPrice,
	}
	if r.LimitingDate != nil {
		d := domain.FormatDate(*r.LimitingDate)
		resp.LimitingDate = &d
	}
	for _, d := range r.MissingDates {
		resp.MissingDates = append(resp.MissingDates, domain.FormatDate(d))
	}
	return resp
}

type lineItemResponse struct {
	ID                uuid.UUID       `json:"id"`
	ResourceTypeID    int64           `json:"resourceTypeId"`
	Quantity          int             `json:"quantity"`
	UnitPricePerNight decimal.Decimal `json:"unitPricePerNight"`
	Amount            decimal.Decimal `json:"amount"`
}

type bookingResponse struct {
	ID           uuid.UUID          `json:"id"`
	CustomerID   uuid.UUID          `json:"customerId"`
	CheckIn      string             `json:"checkIn"`
	CheckOut     string             `json:"checkOut"`
	Nights       int                `json:"nights"`
	Status       string             `json:"status"`
	TotalAmount  decimal.Decimal    `json:"totalAmount"`
	AmountPaid   decimal.Decimal    `json:"amountPaid"`
	BalanceDue   decimal.Decimal    `json:"balanceDue"`
	Notes        string             `json:"notes"`
	LineItems    []lineItemResponse `json:"lineItems"`
	CreatedAtUtc string             `json:"createdAtUtc"`
	UpdatedAtUtc string             `json:"updatedAtUtc"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	lines := make([]lineItemResponse, 0, len(b.LineItems))
	for _, li := range b.LineItems {
		lines = append(lines, lineItemResponse{
			ID:                li.ID,
			ResourceTypeID:    li.ResourceTypeID,
			Quantity:          li.Quantity,
			UnitPricePerNight: li.UnitPricePerNight,
			Amount:            li.Amount,
		})
	}
	return bookingResponse{
		ID:           b.ID,
		CustomerID:   b.CustomerID,
		CheckIn:      domain.FormatDate(b.CheckIn),
		CheckOut:     domain.FormatDate(b.CheckOut),
		Nights:       b.Nights(),
		Status:       string(b.Status),
		TotalAmount:  b.TotalAmount,
		AmountPaid:   b.AmountPaid,
		BalanceDue:   b.BalanceDue(),
		Notes:        b.Notes,
		LineItems:    lines,
		CreatedAtUtc: b.CreatedAtUtc.UTC().Format(time.RFC3339),
		UpdatedAtUtc: b.UpdatedAtUtc.UTC().Format(time.RFC3339),
	}
}

type horizonResponse struct {
	ResourceTypeID int64 `json:"resourceTypeId"`
	RecordsCreated int   `json:"recordsCreated"`
}

type capacityRecordResponse struct {
	Date           string          `json:"date"`
	AvailableUnits int             `json:"availableUnits"`
	Price          decimal.Decimal `json:"price"`
}

type capacityResponse struct {
	ResourceTypeID int64                    `json:"resourceTypeId"`
	From           string                   `json:"from"`
	To             string                   `json:"to"`
	Records        []capacityRecordResponse `json:"records"`
}

func toCapacityResponse(rtID int64, from, to time.Time, recs []domain.CapacityRecord) capacityResponse {
	resp := capacityResponse{
		ResourceTypeID: rtID,
		From:           domain.FormatDate(from),
		To:             domain.FormatDate(to),
		Records:        make([]capacityRecordResponse, 0, len(recs)),
	}
	for _, r := range recs {
		resp.Records = append(resp.Records, capacityRecordResponse{
			Date:           domain.FormatDate(r.Date),
			AvailableUnits: r.AvailableUnits,
			Price:          r.Price,
		})
	}
	return resp
}

type customerResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	IDProofType   string    `json:"idProofType"`
	IDProofNumber string    `json:"idProofNumber"`
	CreatedAtUtc  string    `json:"createdAtUtc"`
}

func toCustomerResponse(c *domain.Customer) customerResponse {
	return customerResponse{
		ID:            c.ID,
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
		IDProofType:   c.IDProofType,
		IDProofNumber: c.IDProofNumber,
		CreatedAtUtc:  c.CreatedAtUtc.UTC().Format(time.RFC3339),
	}
}

type auditEntryResponse struct {
	ID           uuid.UUID      `json:"id"`
	ActorID      *string        `json:"actorId"`
	Action       string         `json:"action"`
	EntityType   string         `json:"entityType"`
	EntityID     string         `json:"entityId"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	TimestampUtc string         `json:"timestampUtc"`
}

func toAuditEntryResponse(e domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		EntityType:   string(e.EntityType),
		EntityID:     e.EntityID,
		Before:       e.Before,
		After:        e.After,
		TimestampUtc: e.TimestampUtc.UTC().Format(time.RFC3339Nano),
	}
}

// Minimal OpenAPI document served at /swagger.json.
const openAPISpec = `{
  "openapi": "3.0.0",
  "info": { "title": "Booking Engine API", "version": "1.0.0" },
  "paths": {
    "/health": { "get": { "summary": "Health check", "responses": { "200": { "description": "Service is healthy" } } } },
    "/api/availability": { "get": { "summary": "Advisory availability check", "responses": { "200": { "description": "Availability result" } } } },
    "/api/bookings": {
      "get": { "summary": "List bookings", "responses": { "200": { "description": "Bookings, newest first" } } },
      "post": { "summary": "Create a booking", "responses": { "201": { "description": "Booking created" }, "409": { "description": "Capacity unavailable" } } }
    },
    "/api/customers/{id}": { "get": { "summary": "Get a customer", "responses": { "200": { "description": "Customer" }, "404": { "description": "Not found" } } } },
    "/api/resource-types/{id}/capacity": { "get": { "summary": "List capacity records", "responses": { "200": { "description": "Capacity records" } } } },
    "/api/resource-types/{id}/prices": { "put": { "summary": "Set the nightly price over a range", "responses": { "204": { "description": "Prices updated" }, "409": { "description": "Capacity record missing" } } } },
    "/api/bookings/{id}": {
      "get": { "summary": "Get a booking", "responses": { "200": { "description": "Booking" }, "404": { "description": "Not found" } } },
      "patch": { "summary": "Modify dates, resource type or quantity", "responses": { "200": { "description": "Booking modified" }, "409": { "description": "Not modifiable or unavailable" } } }
    },
    "/api/bookings/{id}/cancel": { "post": { "summary": "Cancel a booking", "responses": { "200": { "description": "Booking cancelled" }, "409": { "description": "Already cancelled" } } } },
    "/api/bookings/{id}/check-in": { "post": { "summary": "Check in", "responses": { "200": { "description": "Checked in" } } } },
    "/api/bookings/{id}/check-out": { "post": { "summary": "Check out", "responses": { "200": { "description": "Checked out" } } } },
    "/api/bookings/{id}/payments": { "post": { "summary": "Record a payment", "responses": { "200": { "description": "Payment recorded" } } } },
    "/api/resource-types/{id}/horizon": { "post": { "summary": "Generate capacity records", "responses": { "200": { "description": "Records created" } } } },
    "/api/resource-types/{id}": { "delete": { "summary": "Delete a resource type", "responses": { "204": { "description": "Deleted" }, "409": { "description": "In use" } } } },
    "/api/audit": { "get": { "summary": "List audit entries", "responses": { "200": { "description": "Audit entries" } } } }
  }
}`
