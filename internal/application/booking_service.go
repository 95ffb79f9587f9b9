package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// BookingService drives the booking state machine. Every mutation runs in a
// single transaction covering customer, capacity, booking, audit and outbox.
type BookingService struct {
	tm           domain.TxManager
	availability *AvailabilityChecker
	orchestrator *Orchestrator
	audit        *AuditRecorder
	outbox       *OutboxWriter
	clock        domain.Clock
	logger       *zap.Logger
}

func NewBookingService(
	tm domain.TxManager,
	availability *AvailabilityChecker,
	orchestrator *Orchestrator,
	audit *AuditRecorder,
	outbox *OutboxWriter,
	clock domain.Clock,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		tm:           tm,
		availability: availability,
		orchestrator: orchestrator,
		audit:        audit,
		outbox:       outbox,
		clock:        clock,
		logger:       logger,
	}
}

// logRejected logs caller errors at Warn and anything else at Error.
func (s *BookingService) logRejected(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if isUserError(err) {
		s.logger.Warn(msg, fields...)
		return
	}
	s.logger.Error(msg, fields...)
}

func isUserError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrInvalidDateRange,
		domain.ErrResourceTypeNotFound,
		domain.ErrResourceTypeInUse,
		domain.ErrCapacityUnavailable,
		domain.ErrCapacityRecordMissing,
		domain.ErrBookingNotFound,
		domain.ErrAlreadyCancelled,
		domain.ErrBookingNotModifiable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CheckAvailability is the advisory, lock-free pre-check.
func (s *BookingService) CheckAvailability(
	ctx context.Context,
	resourceTypeID int64,
	checkIn, checkOut time.Time,
	quantity int,
) (domain.AvailabilityResult, error) {
	var res domain.AvailabilityResult
	err := readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.ResourceTypes().GetByID(ctx, resourceTypeID); err != nil {
			return fmt.Errorf("resource type %d: %w", resourceTypeID, err)
		}
		var err error
		res, err = s.availability.Check(ctx, tx.Capacity(), resourceTypeID, checkIn, checkOut, quantity)
		return err
	})
	return res, err
}

func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var b *domain.Booking
	err := readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		var err error
		b, err = tx.Bookings().GetByID(ctx, id)
		return err
	})
	return b, err
}

func (s *BookingService) ListAuditEntries(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Audit().List(ctx, f)
		return err
	})
	return out, err
}

// ListBookings pages bookings newest first.
func (s *BookingService) ListBookings(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, error) {
	var out []*domain.Booking
	err := readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Bookings().List(ctx, f)
		return err
	})
	return out, err
}

func (s *BookingService) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	var c *domain.Customer
	err := readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		var err error
		c, err = tx.Customers().GetByID(ctx, id)
		return err
	})
	return c, err
}

func (s *BookingService) validateCreate(in domain.CreateBookingInput) error {
	if err := in.Customer.Validate(); err != nil {
		return err
	}
	if err := validateLines(in.Lines); err != nil {
		return err
	}
	checkIn := domain.DateOf(in.CheckIn)
	if err := domain.ValidateStay(in.CheckIn, in.CheckOut); err != nil {
		return err
	}
	if checkIn.Before(s.clock.Today()) {
		return domain.NewInvalidDateRange("check-in cannot be in the past")
	}
	if in.AmountPaid.IsNegative() {
		return domain.NewValidationError("amount paid cannot be negative")
	}
	if in.ManualTotal != nil && in.ManualTotal.IsNegative() {
		return domain.NewValidationError("total amount cannot be negative")
	}
	return nil
}

// precheck reads availability without locks and fails fast when a line
// clearly cannot be served.
func (s *BookingService) precheck(ctx context.Context, lines []domain.LineRequest, checkIn, checkOut time.Time) error {
	return readTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		for _, l := range lines {
			if _, err := tx.ResourceTypes().GetByID(ctx, l.ResourceTypeID); err != nil {
				return fmt.Errorf("resource type %d: %w", l.ResourceTypeID, err)
			}
			res, err := s.availability.Check(ctx, tx.Capacity(), l.ResourceTypeID, checkIn, checkOut, l.Quantity)
			if err != nil {
				return err
			}
			if err := availabilityErr(res); err != nil {
				return err
			}
		}
		return nil
	})
}

// upsertCustomer finds the customer by email under the email lock, creating
// it or refreshing its contact fields.
func (s *BookingService) upsertCustomer(ctx context.Context, tx domain.Tx, info domain.CustomerInfo, now time.Time) (*domain.Customer, error) {
	email := domain.NormalizeEmail(info.Email)
	existing, err := tx.Customers().GetByEmailForUpdate(ctx, email)
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		c := &domain.Customer{
			ID:           uuid.New(),
			Email:        email,
			CreatedAtUtc: now,
			UpdatedAtUtc: now,
		}
		c.Apply(info)
		if err := tx.Customers().Insert(ctx, c); err != nil {
			return nil, fmt.Errorf("insert customer: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.AuditCreate, domain.EntityCustomer, c.ID.String(), nil, c.Snapshot()); err != nil {
			return nil, err
		}
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("load customer: %w", err)
	}

	before := existing.Snapshot()
	existing.Apply(info)
	after := existing.Snapshot()
	if reflect.DeepEqual(before, after) {
		return existing, nil
	}
	existing.UpdatedAtUtc = now
	if err := tx.Customers().Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	if err := s.audit.Record(ctx, tx, domain.AuditUpdate, domain.EntityCustomer, existing.ID.String(), before, after); err != nil {
		return nil, err
	}
	return existing, nil
}

// lineItemsFor turns reservations into line items, deriving the nightly unit
// price from the exact reserved amount.
func lineItemsFor(bookingID uuid.UUID, res []domain.LineReservation, nights int, ids []uuid.UUID) []domain.BookingLineItem {
	items := make([]domain.BookingLineItem, 0, len(res))
	for i, r := range res {
		id := uuid.New()
		if i < len(ids) && ids[i] != uuid.Nil {
			id = ids[i]
		}
		units := decimal.NewFromInt(int64(nights * r.Quantity))
		unit := decimal.Zero
		if units.IsPositive() {
			unit = r.Price.DivRound(units, 2)
		}
		items = append(items, domain.BookingLineItem{
			ID:                id,
			BookingID:         bookingID,
			ResourceTypeID:    r.ResourceTypeID,
			Quantity:          r.Quantity,
			UnitPricePerNight: unit,
			Amount:            r.Price,
		})
	}
	return items
}

func linesOf(b *domain.Booking) []domain.LineRequest {
	lines := make([]domain.LineRequest, 0, len(b.LineItems))
	for _, li := range b.LineItems {
		lines = append(lines, domain.LineRequest{ResourceTypeID: li.ResourceTypeID, Quantity: li.Quantity})
	}
	return lines
}

func (s *BookingService) Create(ctx context.Context, in domain.CreateBookingInput) (b *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.Create", trace.WithAttributes(
		attribute.String("check_in", domain.FormatDate(in.CheckIn)),
		attribute.String("check_out", domain.FormatDate(in.CheckOut)),
		attribute.Int("lines", len(in.Lines)),
	))
	defer func() { endSpan(span, err) }()

	if err := s.validateCreate(in); err != nil {
		s.logRejected("booking create rejected", err)
		return nil, err
	}
	checkIn, checkOut := domain.DateOf(in.CheckIn), domain.DateOf(in.CheckOut)

	if err := s.precheck(ctx, in.Lines, checkIn, checkOut); err != nil {
		s.logRejected("booking create rejected by availability pre-check", err)
		return nil, err
	}

	err = withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		now := time.Now().UTC()
		customer, err := s.upsertCustomer(ctx, tx, in.Customer, now)
		if err != nil {
			return err
		}

		total, reservations, err := s.orchestrator.ReserveMany(ctx, tx, in.Lines, checkIn, checkOut)
		if err != nil {
			return err
		}

		booking := &domain.Booking{
			ID:           uuid.New(),
			CustomerID:   customer.ID,
			CheckIn:      checkIn,
			CheckOut:     checkOut,
			AmountPaid:   in.AmountPaid,
			Status:       domain.BookingConfirmed,
			Notes:        strings.TrimSpace(in.Notes),
			CreatedAtUtc: now,
			UpdatedAtUtc: now,
		}
		booking.LineItems = lineItemsFor(booking.ID, reservations, domain.Nights(checkIn, checkOut), nil)
		booking.TotalAmount = total
		if in.ManualTotal != nil {
			booking.TotalAmount = *in.ManualTotal
		}

		if err := tx.Bookings().Insert(ctx, booking); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.AuditCreate, domain.EntityBooking, booking.ID.String(), nil, booking.Snapshot()); err != nil {
			return err
		}
		if err := s.outbox.Enqueue(ctx, tx, domain.NewBookingCreatedEvent(booking)); err != nil {
			return err
		}
		b = booking
		return nil
	})
	if err != nil {
		s.logRejected("booking create failed", err)
		return nil, err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID.String()),
		zap.String("customer_id", b.CustomerID.String()),
		zap.String("total_amount", b.TotalAmount.String()),
	)
	return b, nil
}

func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID, reason string) (b *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.Cancel", trace.WithAttributes(
		attribute.String("booking.id", id.String()),
	))
	defer func() { endSpan(span, err) }()

	err = withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		booking, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking.Status == domain.BookingCancelled {
			return domain.ErrAlreadyCancelled
		}

		before := booking.Snapshot()
		if err := s.orchestrator.ReleaseMany(ctx, tx, linesOf(booking), booking.CheckIn, booking.CheckOut); err != nil {
			return err
		}

		booking.Status = domain.BookingCancelled
		if reason = strings.TrimSpace(reason); reason != "" {
			booking.AppendNote("Cancellation reason: " + reason)
		}
		booking.UpdatedAtUtc = time.Now().UTC()
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.AuditCancel, domain.EntityBooking, booking.ID.String(), before, booking.Snapshot()); err != nil {
			return err
		}
		if err := s.outbox.Enqueue(ctx, tx, domain.NewBookingCancelledEvent(booking, reason)); err != nil {
			return err
		}
		b = booking
		return nil
	})
	if err != nil {
		s.logRejected("booking cancel failed", err, zap.String("booking_id", id.String()))
		return nil, err
	}

	s.logger.Info("booking cancelled", zap.String("booking_id", id.String()))
	return b, nil
}

// modifyTarget picks the line a resource type or quantity change applies to.
func modifyTarget(b *domain.Booking, in domain.ModifyBookingInput) (int, error) {
	if in.LineItemID != nil {
		for i, li := range b.LineItems {
			if li.ID == *in.LineItemID {
				return i, nil
			}
		}
		return -1, domain.NewValidationError("line item " + in.LineItemID.String() + " not found on booking")
	}
	if len(b.LineItems) != 1 {
		return -1, domain.NewValidationError("line item id is required for bookings with several line items")
	}
	return 0, nil
}

func modificationNote(today time.Time, old, cur *domain.Booking, target int) string {
	var changes []string
	if !old.CheckIn.Equal(cur.CheckIn) || !old.CheckOut.Equal(cur.CheckOut) {
		changes = append(changes, fmt.Sprintf("Dates changed from %s - %s to %s - %s",
			domain.FormatDate(old.CheckIn), domain.FormatDate(old.CheckOut),
			domain.FormatDate(cur.CheckIn), domain.FormatDate(cur.CheckOut)))
	}
	if target >= 0 {
		o, n := old.LineItems[target], cur.LineItems[target]
		if o.ResourceTypeID != n.ResourceTypeID {
			changes = append(changes, fmt.Sprintf("Resource type changed from %d to %d", o.ResourceTypeID, n.ResourceTypeID))
		}
		if o.Quantity != n.Quantity {
			changes = append(changes, fmt.Sprintf("Units changed from %d to %d", o.Quantity, n.Quantity))
		}
	}
	return fmt.Sprintf("Modified on %s: %s", domain.FormatDate(today), strings.Join(changes, "; "))
}

// Modify moves a booking to new dates, resource type or quantity. The old
// reservation is released and the new one taken in the same transaction, so
// a failed attempt leaves the original capacity held.
func (s *BookingService) Modify(ctx context.Context, in domain.ModifyBookingInput) (b *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.Modify", trace.WithAttributes(
		attribute.String("booking.id", in.BookingID.String()),
	))
	defer func() { endSpan(span, err) }()

	err = withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		booking, err := tx.Bookings().GetForUpdate(ctx, in.BookingID)
		if err != nil {
			return err
		}
		today := s.clock.Today()
		if !booking.Status.Modifiable() {
			return domain.NewBookingNotModifiable("booking is " + string(booking.Status))
		}
		if booking.CheckOut.Before(today) {
			return domain.NewBookingNotModifiable("stay has already ended")
		}

		next := booking.Clone()
		if in.NewCheckIn != nil {
			next.CheckIn = domain.DateOf(*in.NewCheckIn)
		}
		if in.NewCheckOut != nil {
			next.CheckOut = domain.DateOf(*in.NewCheckOut)
		}
		if err := domain.ValidateStay(next.CheckIn, next.CheckOut); err != nil {
			return err
		}
		if !next.CheckIn.Equal(booking.CheckIn) && next.CheckIn.Before(today) {
			return domain.NewInvalidDateRange("check-in cannot be in the past")
		}

		target := -1
		if in.NewResourceTypeID != nil || in.NewQuantity != nil {
			if target, err = modifyTarget(booking, in); err != nil {
				return err
			}
			if in.NewResourceTypeID != nil {
				next.LineItems[target].ResourceTypeID = *in.NewResourceTypeID
			}
			if in.NewQuantity != nil {
				next.LineItems[target].Quantity = *in.NewQuantity
			}
		}

		newLines := linesOf(next)
		if next.CheckIn.Equal(booking.CheckIn) && next.CheckOut.Equal(booking.CheckOut) &&
			reflect.DeepEqual(newLines, linesOf(booking)) {
			b = booking
			return nil
		}
		if err := validateLines(newLines); err != nil {
			return err
		}

		// Lock old and new types, then old and new spans, so the release and the
		// reservation never wait on each other's rows out of order.
		var oldIDs, newIDs []int64
		for _, l := range linesOf(booking) {
			oldIDs = append(oldIDs, l.ResourceTypeID)
		}
		for _, l := range newLines {
			newIDs = append(newIDs, l.ResourceTypeID)
		}
		if _, err := lockResourceTypes(ctx, tx, append(append([]int64(nil), oldIDs...), newIDs...)); err != nil {
			return err
		}
		keys := append(lockKeysFor(oldIDs, booking.CheckIn, booking.CheckOut),
			lockKeysFor(newIDs, next.CheckIn, next.CheckOut)...)
		if err := tx.Capacity().Lock(ctx, keys); err != nil {
			return fmt.Errorf("lock capacity: %w", err)
		}

		before := booking.Snapshot()
		if err := s.orchestrator.ReleaseMany(ctx, tx, linesOf(booking), booking.CheckIn, booking.CheckOut); err != nil {
			return err
		}

		for _, l := range newLines {
			if _, err := tx.ResourceTypes().GetByID(ctx, l.ResourceTypeID); err != nil {
				return fmt.Errorf("resource type %d: %w", l.ResourceTypeID, err)
			}
			res, err := s.availability.Check(ctx, tx.Capacity(), l.ResourceTypeID, next.CheckIn, next.CheckOut, l.Quantity)
			if err != nil {
				return err
			}
			if err := availabilityErr(res); err != nil {
				return err
			}
		}

		_, reservations, err := s.orchestrator.ReserveMany(ctx, tx, newLines, next.CheckIn, next.CheckOut)
		if err != nil {
			return err
		}

		lineIDs := make([]uuid.UUID, 0, len(next.LineItems))
		for _, li := range next.LineItems {
			lineIDs = append(lineIDs, li.ID)
		}
		next.LineItems = lineItemsFor(next.ID, reservations, next.Nights(), lineIDs)
		next.TotalAmount = next.ComputedTotal()
		next.AppendNote(modificationNote(today, booking, next, target))
		next.UpdatedAtUtc = time.Now().UTC()

		if err := tx.Bookings().Update(ctx, next); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.AuditModify, domain.EntityBooking, next.ID.String(), before, next.Snapshot()); err != nil {
			return err
		}
		if err := s.outbox.Enqueue(ctx, tx, domain.NewBookingModifiedEvent(next)); err != nil {
			return err
		}
		b = next
		return nil
	})
	if err != nil {
		s.logRejected("booking modify failed", err, zap.String("booking_id", in.BookingID.String()))
		return nil, err
	}

	s.logger.Info("booking modified",
		zap.String("booking_id", b.ID.String()),
		zap.String("total_amount", b.TotalAmount.String()),
	)
	return b, nil
}

// transition moves a booking between two statuses under its row lock.
func (s *BookingService) transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error) {
	var b *domain.Booking
	err := withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		booking, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking.Status != from {
			return domain.NewBookingNotModifiable(fmt.Sprintf("booking is %s, expected %s", booking.Status, from))
		}
		before := booking.Snapshot()
		booking.Status = to
		booking.UpdatedAtUtc = time.Now().UTC()
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.AuditUpdate, domain.EntityBooking, booking.ID.String(), before, booking.Snapshot()); err != nil {
			return err
		}
		b = booking
		return nil
	})
	if err != nil {
		s.logRejected("booking status change failed", err,
			zap.String("booking_id", id.String()), zap.String("to", string(to)))
		return nil, err
	}
	s.logger.Info("booking status changed", zap.String("booking_id", id.String()), zap.String("status", string(to)))
	return b, nil
}

func (s *BookingService) CheckIn(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingConfirmed, domain.BookingCheckedIn)
}

func (s *BookingService) CheckOut(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingCheckedIn, domain.BookingCheckedOut)
}

func (s *BookingService) RecordPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*domain.Booking, error) {
	if !amount.IsPositive() {
		err := domain.NewValidationError("payment amount must be positive")
		s.logRejected("payment rejected", err, zap.String("booking_id", id.String()))
		return nil, err
	}

	var b *domain.Booking
	err := withinTx(ctx, s.tm, func(ctx context.Context, tx domain.Tx) error {
		booking, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking.Status == domain.BookingCancelled {
			return domain.NewBookingNotModifiable("booking is cancelled")
		}
		before := booking.Snapshot()
		booking.AmountPaid = booking.AmountPaid.Add(amount)
		booking.UpdatedAtUtc = time.Now().UTC()
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.AuditUpdate, domain.EntityBooking, booking.ID.String(), before, booking.Snapshot()); err != nil {
			return err
		}
		b = booking
		return nil
	})
	if err != nil {
		s.logRejected("payment failed", err, zap.String("booking_id", id.String()))
		return nil, err
	}
	s.logger.Info("payment recorded",
		zap.String("booking_id", id.String()),
		zap.String("amount", amount.String()),
		zap.String("balance_due", b.BalanceDue().String()),
	)
	return b, nil
}
