package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

var errTxDone = errors.New("memory: transaction already committed or rolled back")

// Capacity

type capacityRepo struct {
	t *tx
}

func (r *capacityRepo) Get(ctx context.Context, resourceTypeID int64, date time.Time) (*domain.CapacityRecord, error) {
	k := domain.CapacityKey{ResourceTypeID: resourceTypeID, Date: domain.DateOf(date)}
	rec, ok := r.t.capacityView(k)
	if !ok {
		return nil, &domain.CapacityRecordMissingError{ResourceTypeID: resourceTypeID, Dates: []time.Time{k.Date}}
	}
	return &rec, nil
}

func (r *capacityRepo) ListRange(ctx context.Context, resourceTypeID int64, from, to time.Time) ([]domain.CapacityRecord, error) {
	var out []domain.CapacityRecord
	for _, k := range domain.KeysForSpan(resourceTypeID, from, to) {
		if rec, ok := r.t.capacityView(k); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *capacityRepo) Lock(ctx context.Context, keys []domain.CapacityKey) error {
	for _, k := range domain.SortCapacityKeys(keys) {
		if err := r.t.lock(ctx, capacityLockKey(k)); err != nil {
			return err
		}
	}
	return nil
}

func (r *capacityRepo) UpsertIfAbsent(ctx context.Context, rec domain.CapacityRecord) (bool, error) {
	k := rec.Key()
	if err := r.t.lock(ctx, capacityLockKey(k)); err != nil {
		return false, err
	}
	if _, ok := r.t.capacityView(k); ok {
		return false, nil
	}
	rec.Date = k.Date
	if rec.UpdatedAtUtc.IsZero() {
		rec.UpdatedAtUtc = time.Now().UTC()
	}
	r.t.capNew[k] = rec
	return true, nil
}

func (r *capacityRepo) ApplyDelta(ctx context.Context, resourceTypeID int64, date time.Time, delta int) (int, error) {
	k := domain.CapacityKey{ResourceTypeID: resourceTypeID, Date: domain.DateOf(date)}
	if err := r.t.lock(ctx, capacityLockKey(k)); err != nil {
		return 0, err
	}
	rec, ok := r.t.capacityView(k)
	if !ok {
		return 0, &domain.CapacityRecordMissingError{ResourceTypeID: resourceTypeID, Dates: []time.Time{k.Date}}
	}
	next := rec.AvailableUnits + delta
	if next < 0 {
		return 0, &domain.CapacityUnavailableError{
			ResourceTypeID: resourceTypeID,
			Date:           k.Date,
			Requested:      -delta,
			Available:      rec.AvailableUnits,
		}
	}
	r.t.capDelta[k] += delta
	return next, nil
}

func (r *capacityRepo) ListByResourceType(ctx context.Context, resourceTypeID int64) ([]domain.CapacityRecord, error) {
	keys := make(map[domain.CapacityKey]struct{})
	r.t.s.mu.RLock()
	for k := range r.t.s.capacity {
		if k.ResourceTypeID == resourceTypeID {
			keys[k] = struct{}{}
		}
	}
	r.t.s.mu.RUnlock()
	for k := range r.t.capNew {
		if k.ResourceTypeID == resourceTypeID {
			keys[k] = struct{}{}
		}
	}

	out := make([]domain.CapacityRecord, 0, len(keys))
	for k := range keys {
		if rec, ok := r.t.capacityView(k); ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *capacityRepo) SetPrice(ctx context.Context, resourceTypeID int64, date time.Time, price decimal.Decimal) error {
	k := domain.CapacityKey{ResourceTypeID: resourceTypeID, Date: domain.DateOf(date)}
	if err := r.t.lock(ctx, capacityLockKey(k)); err != nil {
		return err
	}
	if _, ok := r.t.capacityView(k); !ok {
		return &domain.CapacityRecordMissingError{ResourceTypeID: resourceTypeID, Dates: []time.Time{k.Date}}
	}
	r.t.capPrice[k] = price
	return nil
}

// Resource types

type resourceTypeRepo struct {
	t *tx
}

func (r *resourceTypeRepo) GetByID(ctx context.Context, id int64) (*domain.ResourceType, error) {
	rt, ok := r.t.resourceTypeView(id)
	if !ok {
		return nil, domain.ErrResourceTypeNotFound
	}
	return &rt, nil
}

func (r *resourceTypeRepo) GetForShare(ctx context.Context, id int64) (*domain.ResourceType, error) {
	if err := r.t.lockShared(ctx, resourceTypeLockKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *resourceTypeRepo) GetForUpdate(ctx context.Context, id int64) (*domain.ResourceType, error) {
	if err := r.t.lock(ctx, resourceTypeLockKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// nameTaken reports the id of another live type using name, case-insensitively.
func (r *resourceTypeRepo) nameTaken(name string, self int64) (int64, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	seen := make(map[int64]string)
	r.t.s.mu.RLock()
	for id, rt := range r.t.s.resourceTypes {
		seen[id] = rt.Name
	}
	r.t.s.mu.RUnlock()
	for id, rt := range r.t.rtUpserts {
		seen[id] = rt.Name
	}
	for id := range r.t.rtDeletes {
		delete(seen, id)
	}
	for id, n := range seen {
		if id != self && strings.ToLower(strings.TrimSpace(n)) == name {
			return id, true
		}
	}
	return 0, false
}

func (r *resourceTypeRepo) Upsert(ctx context.Context, rt *domain.ResourceType) error {
	if err := r.t.lock(ctx, resourceTypeLockKey(rt.ID)); err != nil {
		return err
	}
	if err := r.t.lock(ctx, resourceTypeNameLockKey(rt.Name)); err != nil {
		return err
	}
	if other, taken := r.nameTaken(rt.Name, rt.ID); taken {
		return domain.NewValidationError(fmt.Sprintf("resource type name %q is already used by %d", rt.Name, other))
	}
	if rt.UpdatedAtUtc.IsZero() {
		rt.UpdatedAtUtc = time.Now().UTC()
	}
	delete(r.t.rtDeletes, rt.ID)
	r.t.rtUpserts[rt.ID] = *rt
	return nil
}

func (r *resourceTypeRepo) Delete(ctx context.Context, id int64) error {
	if err := r.t.lock(ctx, resourceTypeLockKey(id)); err != nil {
		return err
	}
	if _, ok := r.t.resourceTypeView(id); !ok {
		return domain.ErrResourceTypeNotFound
	}
	delete(r.t.rtUpserts, id)
	r.t.rtDeletes[id] = struct{}{}
	return nil
}

// Bookings

type bookingRepo struct {
	t *tx
}

func (r *bookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := r.t.bookingView(id)
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	if err := r.t.lock(ctx, bookingLockKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := r.t.lock(ctx, bookingLockKey(b.ID)); err != nil {
		return err
	}
	if _, exists := r.t.bookingView(b.ID); exists {
		return errors.New("memory: duplicate booking id " + b.ID.String())
	}
	r.t.bookings[b.ID] = b.Clone()
	return nil
}

func (r *bookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	if err := r.t.lock(ctx, bookingLockKey(b.ID)); err != nil {
		return err
	}
	if _, exists := r.t.bookingView(b.ID); !exists {
		return domain.ErrBookingNotFound
	}
	r.t.bookings[b.ID] = b.Clone()
	return nil
}

func (r *bookingRepo) CountActiveByResourceType(ctx context.Context, resourceTypeID int64) (int, error) {
	seen := make(map[uuid.UUID]*domain.Booking)
	r.t.s.mu.RLock()
	for id, b := range r.t.s.bookings {
		seen[id] = b
	}
	r.t.s.mu.RUnlock()
	for id, b := range r.t.bookings {
		seen[id] = b
	}

	n := 0
	for _, b := range seen {
		if !b.Status.Holds() {
			continue
		}
		for _, li := range b.LineItems {
			if li.ResourceTypeID == resourceTypeID {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *bookingRepo) List(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, error) {
	merged := make(map[uuid.UUID]*domain.Booking)
	r.t.s.mu.RLock()
	for id, b := range r.t.s.bookings {
		merged[id] = b
	}
	r.t.s.mu.RUnlock()
	for id, b := range r.t.bookings {
		merged[id] = b
	}

	var out []*domain.Booking
	for _, b := range merged {
		if f.Matches(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAtUtc.Equal(out[j].CreatedAtUtc) {
			return out[i].CreatedAtUtc.After(out[j].CreatedAtUtc)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Customers

type customerRepo struct {
	t *tx
}

func (r *customerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	if c, ok := r.t.customers[id]; ok {
		return &c, nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	c, ok := r.t.s.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &c, nil
}

func (r *customerRepo) GetByEmailForUpdate(ctx context.Context, email string) (*domain.Customer, error) {
	email = domain.NormalizeEmail(email)
	if err := r.t.lock(ctx, customerLockKey(email)); err != nil {
		return nil, err
	}
	id, ok := r.t.customerEmail[email]
	if !ok {
		r.t.s.mu.RLock()
		id, ok = r.t.s.customerByEmail[email]
		r.t.s.mu.RUnlock()
	}
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *customerRepo) Insert(ctx context.Context, c *domain.Customer) error {
	c.Email = domain.NormalizeEmail(c.Email)
	if err := r.t.lock(ctx, customerLockKey(c.Email)); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.t.customers[c.ID] = *c
	r.t.customerEmail[c.Email] = c.ID
	return nil
}

func (r *customerRepo) Update(ctx context.Context, c *domain.Customer) error {
	c.Email = domain.NormalizeEmail(c.Email)
	if err := r.t.lock(ctx, customerLockKey(c.Email)); err != nil {
		return err
	}
	r.t.customers[c.ID] = *c
	return nil
}

// Audit

type auditRepo struct {
	t *tx
}

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.t.audit = append(r.t.audit, e)
	return nil
}

// List returns matching entries newest first.
func (r *auditRepo) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	r.t.s.mu.RLock()
	all := append([]domain.AuditEntry(nil), r.t.s.audit...)
	r.t.s.mu.RUnlock()
	all = append(all, r.t.audit...)

	var out []domain.AuditEntry
	for i := len(all) - 1; i >= 0; i-- {
		if f.Matches(all[i]) {
			out = append(out, all[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampUtc.After(out[j].TimestampUtc)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Outbox

type outboxRepo struct {
	s *Store
	t *tx
}

func (r *outboxRepo) Insert(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAtUtc == 0 {
		msg.OccurredAtUtc = time.Now().UTC().Unix()
	}
	if r.t != nil {
		r.t.outbox = append(r.t.outbox, msg)
		return nil
	}
	r.s.mu.Lock()
	r.s.outbox = append(r.s.outbox, msg)
	r.s.mu.Unlock()
	return nil
}

func (r *outboxRepo) GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]domain.OutboxMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.OutboxMessage
	for _, msg := range r.s.outbox {
		if msg.ProcessedAtUtc != nil || msg.RetryCount >= maxRetry {
			continue
		}
		out = append(out, msg)
		if len(out) == batchSize {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) Save(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		return errors.New("outbox message id is empty")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == msg.ID {
			r.s.outbox[i].RetryCount = msg.RetryCount
			if msg.ProcessedAtUtc != nil {
				r.s.outbox[i].ProcessedAtUtc = msg.ProcessedAtUtc
			}
			return nil
		}
	}
	return errors.New("outbox message not found: " + msg.ID.String())
}
