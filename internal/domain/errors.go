package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrInvalidDateRange      = errors.New("invalid date range")
	ErrResourceTypeNotFound  = errors.New("resource type not found")
	ErrResourceTypeInUse     = errors.New("resource type is referenced by active bookings")
	ErrCapacityUnavailable   = errors.New("capacity unavailable")
	ErrCapacityRecordMissing = errors.New("capacity record missing")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrAlreadyCancelled      = errors.New("booking already cancelled")
	ErrBookingNotModifiable  = errors.New("booking not modifiable")
)

// ErrInvariantViolation guards internal bookkeeping bugs and is never a user error.
var ErrInvariantViolation = errors.New("invariant violation")

func NewValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func NewInvalidDateRange(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidDateRange, msg)
}

func NewBookingNotModifiable(msg string) error {
	return fmt.Errorf("%w: %s", ErrBookingNotModifiable, msg)
}

type CapacityUnavailableError struct {
	ResourceTypeID int64
	Date           time.Time
	Requested      int
	Available      int
}

func (e *CapacityUnavailableError) Error() string {
	return fmt.Sprintf("capacity unavailable: resource type %d on %s has %d unit(s), requested %d",
		e.ResourceTypeID, FormatDate(e.Date), e.Available, e.Requested)
}

func (e *CapacityUnavailableError) Is(target error) bool {
	return target == ErrCapacityUnavailable
}

type CapacityRecordMissingError struct {
	ResourceTypeID int64
	Dates          []time.Time
}

func (e *CapacityRecordMissingError) Error() string {
	ds := make([]string, 0, len(e.Dates))
	for _, d := range e.Dates {
		ds = append(ds, FormatDate(d))
	}
	return fmt.Sprintf("capacity record missing: resource type %d has no inventory for %s",
		e.ResourceTypeID, strings.Join(ds, ", "))
}

func (e *CapacityRecordMissingError) Is(target error) bool {
	return target == ErrCapacityRecordMissing
}

type InvariantViolationError struct {
	ResourceTypeID int64
	Date           time.Time
	Detail         string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: resource type %d on %s: %s",
		e.ResourceTypeID, FormatDate(e.Date), e.Detail)
}

func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}
