package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// HorizonService maintains the resource type catalog and the dated capacity
// records reservations draw from.
type HorizonService struct {
	tm          domain.TxManager
	audit       *AuditRecorder
	clock       domain.Clock
	defaultDays int
	logger      *zap.Logger
}

func NewHorizonService(
	tm domain.TxManager,
	audit *AuditRecorder,
	clock domain.Clock,
	defaultDays int,
	logger *zap.Logger,
) *HorizonService {
	return &HorizonService{
		tm:          tm,
		audit:       audit,
		clock:       clock,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

// GenerateHorizon creates capacity for today .. today+daysAhead-1, skipping
// dates that already exist. daysAhead <= 0 uses the configured default.
func (s *HorizonService) GenerateHorizon(ctx context.Context, resourceTypeID int64, daysAhead int) (int, error) {
	if daysAhead <= 0 {
		daysAhead = s.defaultDays
	}
	from := s.clock.Today()
	return s.GenerateHorizonRange(ctx, resourceTypeID, from, from.AddDate(0, 0, daysAhead), nil)
}

// GenerateHorizonRange creates capacity for [from, to). A nil price uses the
// resource type's base price.
func (s *HorizonService) GenerateHorizonRange(
	ctx context.Context,
	resourceTypeID int64,
	from, to time.Time,
	price *decimal.Decimal,
) (created int, err error) {
	ctx, span := tracer.Start(ctx, "HorizonService.GenerateHorizonRange", trace.WithAttributes(
		attribute.Int64("resource_type.id", resourceTypeID),
		attribute.String("from", domain.FormatDate(from)),
		attribute.String("to", domain.FormatDate(to)),
	))
	defer func() { endSpan(span, err) }()

	from, to = domain.DateOf(from), domain.DateOf(to)
	if err := domain.ValidateHorizon(from, to); err != nil {
		return 0, err
	}
	if price != nil && !price.IsPositive() {
		return 0, domain.NewValidationError("price must be positive")
	}

	err = withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		created = 0
		rt, err := tx.ResourceTypes().GetForShare(ctx, resourceTypeID)
		if err != nil {
			return fmt.Errorf("resource type %d: %w", resourceTypeID, err)
		}
		p := rt.BasePrice
		if price != nil {
			p = *price
		}

		now := time.Now().UTC()
		for _, d := range domain.DatesInRange(from, to) {
			ok, err := tx.Capacity().UpsertIfAbsent(ctx, domain.CapacityRecord{
				ResourceTypeID: resourceTypeID,
				Date:           d,
				AvailableUnits: rt.TotalUnits,
				Price:          p,
				UpdatedAtUtc:   now,
			})
			if err != nil {
				return fmt.Errorf("create capacity %s: %w", domain.FormatDate(d), err)
			}
			if ok {
				created++
			}
		}

		if created == 0 {
			return nil
		}
		return s.audit.Record(ctx, tx, domain.AuditGenerate, domain.EntityResourceType,
			strconv.FormatInt(resourceTypeID, 10), nil, map[string]any{
				"from":            domain.FormatDate(from),
				"to":              domain.FormatDate(to),
				"records_created": created,
				"price":           p,
			})
	})
	if err != nil {
		s.logger.Warn("capacity horizon generation failed",
			zap.Int64("resource_type_id", resourceTypeID), zap.Error(err))
		return 0, err
	}

	s.logger.Info("capacity horizon generated",
		zap.Int64("resource_type_id", resourceTypeID),
		zap.Int("records_created", created),
	)
	return created, nil
}

// RegisterResourceType creates or updates a catalog entry. A change of
// TotalUnits shifts every existing capacity record by the same amount and is
// refused when some night already holds more units than the new total.
func (s *HorizonService) RegisterResourceType(ctx context.Context, rt domain.ResourceType) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	return withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		action := domain.AuditCreate
		var before map[string]any
		existing, err := tx.ResourceTypes().GetForUpdate(ctx, rt.ID)
		switch {
		case err == nil:
			action = domain.AuditUpdate
			before = resourceTypeSnapshot(existing)
			if delta := rt.TotalUnits - existing.TotalUnits; delta != 0 {
				if err := s.resizeCapacity(ctx, tx, rt.ID, delta); err != nil {
					return err
				}
			}
		case !errors.Is(err, domain.ErrResourceTypeNotFound):
			return fmt.Errorf("load resource type: %w", err)
		}

		rt.UpdatedAtUtc = time.Now().UTC()
		if err := tx.ResourceTypes().Upsert(ctx, &rt); err != nil {
			return fmt.Errorf("upsert resource type: %w", err)
		}
		return s.audit.Record(ctx, tx, action, domain.EntityResourceType,
			strconv.FormatInt(rt.ID, 10), before, resourceTypeSnapshot(&rt))
	})
}

// resizeCapacity moves every record of a type by delta. The caller holds the
// type exclusively, so no reservation is in flight against it.
func (s *HorizonService) resizeCapacity(ctx context.Context, tx domain.Tx, resourceTypeID int64, delta int) error {
	records, err := tx.Capacity().ListByResourceType(ctx, resourceTypeID)
	if err != nil {
		return fmt.Errorf("list capacity: %w", err)
	}
	keys := make([]domain.CapacityKey, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key())
	}
	if err := tx.Capacity().Lock(ctx, keys); err != nil {
		return fmt.Errorf("lock capacity: %w", err)
	}

	for _, rec := range records {
		if rec.AvailableUnits+delta < 0 {
			return domain.NewValidationError(fmt.Sprintf(
				"total units cannot shrink by %d: only %d unit(s) are free on %s",
				-delta, rec.AvailableUnits, domain.FormatDate(rec.Date)))
		}
	}
	for _, rec := range records {
		if _, err := tx.Capacity().ApplyDelta(ctx, resourceTypeID, rec.Date, delta); err != nil {
			return fmt.Errorf("resize capacity: %w", err)
		}
	}
	if len(records) > 0 {
		s.logger.Info("capacity resized",
			zap.Int64("resource_type_id", resourceTypeID),
			zap.Int("delta", delta),
			zap.Int("records", len(records)),
		)
	}
	return nil
}

// DeleteResourceType removes a catalog entry that no live booking references.
// The exclusive lock waits out reservations in flight before counting.
func (s *HorizonService) DeleteResourceType(ctx context.Context, id int64) error {
	err := withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		rt, err := tx.ResourceTypes().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		n, err := tx.Bookings().CountActiveByResourceType(ctx, id)
		if err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %d active booking(s)", domain.ErrResourceTypeInUse, n)
		}
		if err := tx.ResourceTypes().Delete(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, domain.AuditDelete, domain.EntityResourceType,
			strconv.FormatInt(id, 10), resourceTypeSnapshot(rt), nil)
	})
	if err != nil {
		s.logger.Warn("resource type delete failed", zap.Int64("resource_type_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("resource type deleted", zap.Int64("resource_type_id", id))
	return nil
}

// SetPrice overrides the nightly price of [from, to). Every night must
// already have a capacity record.
func (s *HorizonService) SetPrice(
	ctx context.Context,
	resourceTypeID int64,
	from, to time.Time,
	price decimal.Decimal,
) (err error) {
	ctx, span := tracer.Start(ctx, "HorizonService.SetPrice", trace.WithAttributes(
		attribute.Int64("resource_type.id", resourceTypeID),
		attribute.String("from", domain.FormatDate(from)),
		attribute.String("to", domain.FormatDate(to)),
	))
	defer func() { endSpan(span, err) }()

	if err := domain.ValidateHorizon(from, to); err != nil {
		return err
	}
	if !price.IsPositive() {
		return domain.NewValidationError("price must be positive")
	}

	err = withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		if _, err := lockResourceTypes(ctx, tx, []int64{resourceTypeID}); err != nil {
			return err
		}
		records, err := lockSpan(ctx, tx, resourceTypeID, from, to)
		if err != nil {
			return err
		}

		changed := make(map[string]any)
		for _, rec := range records {
			if rec.Price.Equal(price) {
				continue
			}
			if err := tx.Capacity().SetPrice(ctx, resourceTypeID, rec.Date, price); err != nil {
				return fmt.Errorf("set price %s: %w", domain.FormatDate(rec.Date), err)
			}
			changed[domain.FormatDate(rec.Date)] = rec.Price
		}
		if len(changed) == 0 {
			return nil
		}
		return s.audit.Record(ctx, tx, domain.AuditUpdate, domain.EntityInventory,
			strconv.FormatInt(resourceTypeID, 10),
			map[string]any{"prices": changed},
			map[string]any{
				"from":  domain.FormatDate(from),
				"to":    domain.FormatDate(to),
				"price": price,
			})
	})
	if err != nil {
		s.logger.Warn("capacity price update failed",
			zap.Int64("resource_type_id", resourceTypeID), zap.Error(err))
		return err
	}
	s.logger.Info("capacity price updated",
		zap.Int64("resource_type_id", resourceTypeID),
		zap.String("price", price.String()),
	)
	return nil
}

// ListCapacity returns the records of [from, to) without locking. Nights
// without a record are simply absent.
func (s *HorizonService) ListCapacity(ctx context.Context, resourceTypeID int64, from, to time.Time) ([]domain.CapacityRecord, error) {
	if err := domain.ValidateHorizon(from, to); err != nil {
		return nil, err
	}
	var out []domain.CapacityRecord
	err := readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.ResourceTypes().GetByID(ctx, resourceTypeID); err != nil {
			return fmt.Errorf("resource type %d: %w", resourceTypeID, err)
		}
		var err error
		out, err = tx.Capacity().ListRange(ctx, resourceTypeID, from, to)
		return err
	})
	return out, err
}

func resourceTypeSnapshot(rt *domain.ResourceType) map[string]any {
	return map[string]any{
		"name":        rt.Name,
		"total_units": rt.TotalUnits,
		"base_price":  rt.BasePrice,
	}
}
