package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// Orchestrator reserves several resource types for one stay inside the
// caller's transaction. A failure on any type propagates and the enclosing
// rollback discards the types already reserved.
type Orchestrator struct {
	coordinator *ReservationCoordinator
}

func NewOrchestrator(coordinator *ReservationCoordinator) *Orchestrator {
	return &Orchestrator{coordinator: coordinator}
}

func validateLines(lines []domain.LineRequest) error {
	if len(lines) == 0 {
		return domain.NewValidationError("at least one line item is required")
	}
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return domain.NewValidationError(fmt.Sprintf("quantity for resource type %d must be positive", l.ResourceTypeID))
		}
		if _, dup := seen[l.ResourceTypeID]; dup {
			return domain.NewValidationError(fmt.Sprintf("resource type %d requested twice", l.ResourceTypeID))
		}
		seen[l.ResourceTypeID] = struct{}{}
	}
	return nil
}

// lockKeysFor covers every night of every line, sorted into the global lock order.
func lockKeysFor(resourceTypeIDs []int64, checkIn, checkOut time.Time) []domain.CapacityKey {
	var keys []domain.CapacityKey
	for _, id := range resourceTypeIDs {
		keys = append(keys, domain.KeysForSpan(id, checkIn, checkOut)...)
	}
	return domain.SortCapacityKeys(keys)
}

// ReserveMany returns the grand total and one reservation per request, in
// request order.
func (o *Orchestrator) ReserveMany(
	ctx context.Context,
	tx domain.Tx,
	lines []domain.LineRequest,
	checkIn, checkOut time.Time,
) (total decimal.Decimal, out []domain.LineReservation, err error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.ReserveMany", trace.WithAttributes(
		attribute.Int("lines", len(lines)),
	))
	defer func() { endSpan(span, err) }()

	if err := validateLines(lines); err != nil {
		return decimal.Zero, nil, err
	}
	if err := validateSpan(checkIn, checkOut, 1); err != nil {
		return decimal.Zero, nil, err
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ResourceTypeID)
	}
	if _, err := lockResourceTypes(ctx, tx, ids); err != nil {
		return decimal.Zero, nil, err
	}

	if err := tx.Capacity().Lock(ctx, lockKeysFor(ids, checkIn, checkOut)); err != nil {
		return decimal.Zero, nil, fmt.Errorf("lock capacity: %w", err)
	}

	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return lines[order[a]].ResourceTypeID < lines[order[b]].ResourceTypeID
	})

	out = make([]domain.LineReservation, len(lines))
	total = decimal.Zero
	for _, i := range order {
		l := lines[i]
		price, err := o.coordinator.Reserve(ctx, tx, l.ResourceTypeID, checkIn, checkOut, l.Quantity)
		if err != nil {
			return decimal.Zero, nil, err
		}
		out[i] = domain.LineReservation{ResourceTypeID: l.ResourceTypeID, Quantity: l.Quantity, Price: price}
		total = total.Add(price)
	}
	return total, out, nil
}

// ReleaseMany releases every line over the same span, in ascending resource type order.
func (o *Orchestrator) ReleaseMany(
	ctx context.Context,
	tx domain.Tx,
	lines []domain.LineRequest,
	checkIn, checkOut time.Time,
) (err error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.ReleaseMany", trace.WithAttributes(
		attribute.Int("lines", len(lines)),
	))
	defer func() { endSpan(span, err) }()

	sorted := append([]domain.LineRequest(nil), lines...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].ResourceTypeID < sorted[b].ResourceTypeID
	})

	ids := make([]int64, 0, len(sorted))
	for _, l := range sorted {
		ids = append(ids, l.ResourceTypeID)
	}
	if _, err := lockResourceTypes(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Capacity().Lock(ctx, lockKeysFor(ids, checkIn, checkOut)); err != nil {
		return fmt.Errorf("lock capacity: %w", err)
	}

	for _, l := range sorted {
		if err := o.coordinator.Release(ctx, tx, l.ResourceTypeID, checkIn, checkOut, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}
