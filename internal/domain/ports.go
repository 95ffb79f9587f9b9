package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CapacityRepository interface {
	Get(ctx context.Context, resourceTypeID int64, date time.Time) (*CapacityRecord, error)
	// ListRange returns the records of [from, to) in ascending date order without locking.
	ListRange(ctx context.Context, resourceTypeID int64, from, to time.Time) ([]CapacityRecord, error)
	// Lock takes exclusive row locks in ascending (resource type, date) order, held until the transaction ends.
	Lock(ctx context.Context, keys []CapacityKey) error
	UpsertIfAbsent(ctx context.Context, rec CapacityRecord) (bool, error)
	ApplyDelta(ctx context.Context, resourceTypeID int64, date time.Time, delta int) (int, error)
	// ListByResourceType returns every record of one type in ascending date order without locking.
	ListByResourceType(ctx context.Context, resourceTypeID int64) ([]CapacityRecord, error)
	SetPrice(ctx context.Context, resourceTypeID int64, date time.Time, price decimal.Decimal) error
}

// ResourceTypeRepository locks follow the global order: resource types in
// ascending id come after bookings and customers and before capacity keys.
type ResourceTypeRepository interface {
	GetByID(ctx context.Context, id int64) (*ResourceType, error)
	// GetForShare holds the type against delete and resize until the transaction ends.
	// Any number of transactions may share it.
	GetForShare(ctx context.Context, id int64) (*ResourceType, error)
	// GetForUpdate holds the type exclusively until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*ResourceType, error)
	// Upsert fails with ErrValidation when another type already uses the name.
	Upsert(ctx context.Context, rt *ResourceType) error
	Delete(ctx context.Context, id int64) error
}

type BookingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// GetForUpdate serializes operations on one booking id.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	Update(ctx context.Context, b *Booking) error
	CountActiveByResourceType(ctx context.Context, resourceTypeID int64) (int, error)
	// List returns matching bookings newest first.
	List(ctx context.Context, f BookingFilter) ([]*Booking, error)
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	// GetByEmailForUpdate returns ErrCustomerNotFound when no customer has this email.
	GetByEmailForUpdate(ctx context.Context, email string) (*Customer, error)
	Insert(ctx context.Context, c *Customer) error
	Update(ctx context.Context, c *Customer) error
}

type AuditRepository interface {
	Append(ctx context.Context, e AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, msg OutboxMessage) error
	GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]OutboxMessage, error)
	Save(ctx context.Context, msg OutboxMessage) error
}

type OutboxMessage struct {
	ID             uuid.UUID
	Type           string
	PayloadJSON    string
	OccurredAtUtc  int64 // unix seconds
	RetryCount     int
	ProcessedAtUtc *int64
}

// Tx is one atomic unit. Nothing it writes is visible to others until Commit.
type Tx interface {
	Capacity() CapacityRepository
	ResourceTypes() ResourceTypeRepository
	Bookings() BookingRepository
	Customers() CustomerRepository
	Audit() AuditRepository
	Outbox() OutboxRepository
	Commit() error
	// Rollback is a no-op after Commit.
	Rollback() error
}

type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
}
