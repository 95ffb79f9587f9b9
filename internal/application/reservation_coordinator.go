package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

const instrumentationName = "github.com/RodolfoDevApp/roomstay-booking-go/internal/application"

var tracer = otel.Tracer(instrumentationName)

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ReservationCoordinator reserves and releases one resource type over a date
// span. Every date's row is locked, in ascending order, before any counter
// moves; either all dates change or the error aborts the caller's transaction.
type ReservationCoordinator struct {
	audit *AuditRecorder
}

func NewReservationCoordinator(audit *AuditRecorder) *ReservationCoordinator {
	return &ReservationCoordinator{audit: audit}
}

func validateSpan(checkIn, checkOut time.Time, quantity int) error {
	if err := domain.ValidateStay(checkIn, checkOut); err != nil {
		return err
	}
	if quantity <= 0 {
		return domain.NewValidationError("quantity must be positive")
	}
	return nil
}

// lockResourceTypes share-locks each distinct type in ascending id, keeping it
// from being deleted or resized while capacity is reserved against it.
func lockResourceTypes(ctx context.Context, tx domain.Tx, ids []int64) (map[int64]*domain.ResourceType, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[int64]*domain.ResourceType, len(sorted))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		rt, err := tx.ResourceTypes().GetForShare(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resource type %d: %w", id, err)
		}
		out[id] = rt
	}
	return out, nil
}

// lockSpan locks the span and loads its records, failing on the first gap.
func lockSpan(
	ctx context.Context,
	tx domain.Tx,
	resourceTypeID int64,
	checkIn, checkOut time.Time,
) ([]domain.CapacityRecord, error) {
	keys := domain.KeysForSpan(resourceTypeID, checkIn, checkOut)
	if err := tx.Capacity().Lock(ctx, keys); err != nil {
		return nil, fmt.Errorf("lock capacity: %w", err)
	}

	records := make([]domain.CapacityRecord, 0, len(keys))
	var missing []time.Time
	for _, k := range keys {
		rec, err := tx.Capacity().Get(ctx, k.ResourceTypeID, k.Date)
		if err != nil {
			if isMissing(err) {
				missing = append(missing, k.Date)
				continue
			}
			return nil, fmt.Errorf("get capacity: %w", err)
		}
		records = append(records, *rec)
	}
	if len(missing) > 0 {
		return nil, &domain.CapacityRecordMissingError{ResourceTypeID: resourceTypeID, Dates: missing}
	}
	return records, nil
}

func isMissing(err error) bool {
	return errors.Is(err, domain.ErrCapacityRecordMissing)
}

func spanAudit(checkIn, checkOut time.Time, quantity int) map[string]any {
	return map[string]any{
		"check_in":  domain.FormatDate(checkIn),
		"check_out": domain.FormatDate(checkOut),
		"quantity":  quantity,
	}
}

// Reserve decrements every night of [checkIn, checkOut) by quantity and
// returns the summed price.
func (c *ReservationCoordinator) Reserve(
	ctx context.Context,
	tx domain.Tx,
	resourceTypeID int64,
	checkIn, checkOut time.Time,
	quantity int,
) (total decimal.Decimal, err error) {
	ctx, span := tracer.Start(ctx, "ReservationCoordinator.Reserve", trace.WithAttributes(
		attribute.Int64("resource_type.id", resourceTypeID),
		attribute.String("check_in", domain.FormatDate(checkIn)),
		attribute.String("check_out", domain.FormatDate(checkOut)),
		attribute.Int("quantity", quantity),
	))
	defer func() { endSpan(span, err) }()

	if err := validateSpan(checkIn, checkOut, quantity); err != nil {
		return decimal.Zero, err
	}
	if _, err := lockResourceTypes(ctx, tx, []int64{resourceTypeID}); err != nil {
		return decimal.Zero, err
	}

	records, err := lockSpan(ctx, tx, resourceTypeID, checkIn, checkOut)
	if err != nil {
		return decimal.Zero, err
	}

	// Authoritative check, made while every row is held.
	for _, rec := range records {
		if rec.AvailableUnits < quantity {
			return decimal.Zero, &domain.CapacityUnavailableError{
				ResourceTypeID: resourceTypeID,
				Date:           domain.DateOf(rec.Date),
				Requested:      quantity,
				Available:      rec.AvailableUnits,
			}
		}
	}

	qty := decimal.NewFromInt(int64(quantity))
	total = decimal.Zero
	for _, rec := range records {
		if _, err := tx.Capacity().ApplyDelta(ctx, resourceTypeID, rec.Date, -quantity); err != nil {
			return decimal.Zero, fmt.Errorf("deduct capacity: %w", err)
		}
		total = total.Add(rec.Price.Mul(qty))
	}

	after := spanAudit(checkIn, checkOut, quantity)
	after["total_price"] = total
	if err := c.audit.Record(ctx, tx, domain.AuditDeduct, domain.EntityInventory,
		strconv.FormatInt(resourceTypeID, 10), nil, after); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Release returns quantity units to every night of [checkIn, checkOut).
// Pushing a night above the type's total is a bookkeeping bug and fails.
func (c *ReservationCoordinator) Release(
	ctx context.Context,
	tx domain.Tx,
	resourceTypeID int64,
	checkIn, checkOut time.Time,
	quantity int,
) (err error) {
	ctx, span := tracer.Start(ctx, "ReservationCoordinator.Release", trace.WithAttributes(
		attribute.Int64("resource_type.id", resourceTypeID),
		attribute.String("check_in", domain.FormatDate(checkIn)),
		attribute.String("check_out", domain.FormatDate(checkOut)),
		attribute.Int("quantity", quantity),
	))
	defer func() { endSpan(span, err) }()

	if err := validateSpan(checkIn, checkOut, quantity); err != nil {
		return err
	}

	types, err := lockResourceTypes(ctx, tx, []int64{resourceTypeID})
	if err != nil {
		return err
	}
	rt := types[resourceTypeID]

	records, err := lockSpan(ctx, tx, resourceTypeID, checkIn, checkOut)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.AvailableUnits+quantity > rt.TotalUnits {
			return &domain.InvariantViolationError{
				ResourceTypeID: resourceTypeID,
				Date:           domain.DateOf(rec.Date),
				Detail: fmt.Sprintf("release of %d would raise available units from %d above total %d",
					quantity, rec.AvailableUnits, rt.TotalUnits),
			}
		}
	}

	for _, rec := range records {
		if _, err := tx.Capacity().ApplyDelta(ctx, resourceTypeID, rec.Date, quantity); err != nil {
			return fmt.Errorf("restore capacity: %w", err)
		}
	}

	return c.audit.Record(ctx, tx, domain.AuditRestore, domain.EntityInventory,
		strconv.FormatInt(resourceTypeID, 10), nil, spanAudit(checkIn, checkOut, quantity))
}
