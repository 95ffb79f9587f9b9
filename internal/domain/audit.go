package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditCreate   AuditAction = "CREATE"
	AuditUpdate   AuditAction = "UPDATE"
	AuditDelete   AuditAction = "DELETE"
	AuditCancel   AuditAction = "CANCEL"
	AuditModify   AuditAction = "MODIFY"
	AuditRestore  AuditAction = "RESTORE"
	AuditDeduct   AuditAction = "DEDUCT"
	AuditGenerate AuditAction = "GENERATE"
)

type EntityType string

const (
	EntityBooking      EntityType = "Booking"
	EntityInventory    EntityType = "Inventory"
	EntityResourceType EntityType = "ResourceType"
	EntityCustomer     EntityType = "Customer"
)

// AuditEntry is immutable once appended.
type AuditEntry struct {
	ID           uuid.UUID
	ActorID      *string
	Action       AuditAction
	EntityType   EntityType
	EntityID     string
	Before       map[string]any
	After        map[string]any
	TimestampUtc time.Time
}

type AuditFilter struct {
	EntityType *EntityType
	EntityID   *string
	ActorID    *string
	Action     *AuditAction
	Limit      int
	Offset     int
}

func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityType != nil && e.EntityType != *f.EntityType {
		return false
	}
	if f.EntityID != nil && e.EntityID != *f.EntityID {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	return true
}
