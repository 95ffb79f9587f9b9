// Package memory is an in-process transactional store. Every capacity key,
// booking id, customer email and resource type is guarded by its own lock,
// taken on first touch inside a transaction and held until Commit or Rollback.
// Resource type locks come in shared and exclusive modes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

type Store struct {
	mu              sync.RWMutex
	resourceTypes   map[int64]domain.ResourceType
	capacity        map[domain.CapacityKey]domain.CapacityRecord
	bookings        map[uuid.UUID]*domain.Booking
	customers       map[uuid.UUID]domain.Customer
	customerByEmail map[string]uuid.UUID
	audit           []domain.AuditEntry
	outbox          []domain.OutboxMessage

	locks *keyedLocks
}

func NewStore() *Store {
	return &Store{
		resourceTypes:   make(map[int64]domain.ResourceType),
		capacity:        make(map[domain.CapacityKey]domain.CapacityRecord),
		bookings:        make(map[uuid.UUID]*domain.Booking),
		customers:       make(map[uuid.UUID]domain.Customer),
		customerByEmail: make(map[string]uuid.UUID),
		locks:           newKeyedLocks(),
	}
}

func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{
		s:             s,
		ctx:           ctx,
		held:          make(map[string]lockMode),
		capDelta:      make(map[domain.CapacityKey]int),
		capNew:        make(map[domain.CapacityKey]domain.CapacityRecord),
		capPrice:      make(map[domain.CapacityKey]decimal.Decimal),
		rtUpserts:     make(map[int64]domain.ResourceType),
		rtDeletes:     make(map[int64]struct{}),
		bookings:      make(map[uuid.UUID]*domain.Booking),
		customers:     make(map[uuid.UUID]domain.Customer),
		customerEmail: make(map[string]uuid.UUID),
	}, nil
}

// Outbox exposes the committed outbox to the dispatcher.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepo{s: s}
}

// Snapshot is a consistent copy of the committed capacity and bookings.
type Snapshot struct {
	ResourceTypes map[int64]domain.ResourceType
	Capacity      map[domain.CapacityKey]domain.CapacityRecord
	Bookings      []*domain.Booking
	Audit         []domain.AuditEntry
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ResourceTypes: make(map[int64]domain.ResourceType, len(s.resourceTypes)),
		Capacity:      make(map[domain.CapacityKey]domain.CapacityRecord, len(s.capacity)),
		Bookings:      make([]*domain.Booking, 0, len(s.bookings)),
		Audit:         append([]domain.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.resourceTypes {
		snap.ResourceTypes[k] = v
	}
	for k, v := range s.capacity {
		snap.Capacity[k] = v
	}
	for _, b := range s.bookings {
		snap.Bookings = append(snap.Bookings, b.Clone())
	}
	sort.Slice(snap.Bookings, func(i, j int) bool {
		return snap.Bookings[i].CreatedAtUtc.Before(snap.Bookings[j].CreatedAtUtc)
	})
	return snap
}

type tx struct {
	s    *Store
	ctx  context.Context
	held map[string]lockMode
	done bool

	capDelta      map[domain.CapacityKey]int
	capNew        map[domain.CapacityKey]domain.CapacityRecord
	capPrice      map[domain.CapacityKey]decimal.Decimal
	rtUpserts     map[int64]domain.ResourceType
	rtDeletes     map[int64]struct{}
	bookings      map[uuid.UUID]*domain.Booking
	customers     map[uuid.UUID]domain.Customer
	customerEmail map[string]uuid.UUID
	audit         []domain.AuditEntry
	outbox        []domain.OutboxMessage
}

func (t *tx) lock(ctx context.Context, key string) error {
	return t.lockMode(ctx, key, lockExclusive)
}

func (t *tx) lockShared(ctx context.Context, key string) error {
	return t.lockMode(ctx, key, lockShared)
}

func (t *tx) lockMode(ctx context.Context, key string, mode lockMode) error {
	cur, ok := t.held[key]
	if ok && cur >= mode {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, mode, ok); err != nil {
		return err
	}
	t.held[key] = mode
	return nil
}

func (t *tx) releaseAll() {
	for key, mode := range t.held {
		t.s.locks.release(key, mode)
	}
	t.held = map[string]lockMode{}
}

func (t *tx) Capacity() domain.CapacityRepository          { return &capacityRepo{t: t} }
func (t *tx) ResourceTypes() domain.ResourceTypeRepository { return &resourceTypeRepo{t: t} }
func (t *tx) Bookings() domain.BookingRepository           { return &bookingRepo{t: t} }
func (t *tx) Customers() domain.CustomerRepository         { return &customerRepo{t: t} }
func (t *tx) Audit() domain.AuditRepository                { return &auditRepo{t: t} }
func (t *tx) Outbox() domain.OutboxRepository              { return &outboxRepo{s: t.s, t: t} }

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}
	if err := t.ctx.Err(); err != nil {
		t.rollback()
		return err
	}

	s := t.s
	s.mu.Lock()
	if err := t.checkDeltas(); err != nil {
		s.mu.Unlock()
		t.rollback()
		return err
	}

	for id, rt := range t.rtUpserts {
		s.resourceTypes[id] = rt
	}
	for id := range t.rtDeletes {
		delete(s.resourceTypes, id)
		for k := range s.capacity {
			if k.ResourceTypeID == id {
				delete(s.capacity, k)
			}
		}
	}
	now := time.Now().UTC()
	for k, rec := range t.capNew {
		if _, ok := s.resourceTypes[k.ResourceTypeID]; !ok {
			continue
		}
		if _, exists := s.capacity[k]; !exists {
			s.capacity[k] = rec
		}
	}
	for k, d := range t.capDelta {
		if d == 0 {
			continue
		}
		rec := s.capacity[k]
		rec.AvailableUnits += d
		rec.UpdatedAtUtc = now
		s.capacity[k] = rec
	}
	for k, p := range t.capPrice {
		if rec, ok := s.capacity[k]; ok {
			rec.Price = p
			rec.UpdatedAtUtc = now
			s.capacity[k] = rec
		}
	}
	for id, c := range t.customers {
		s.customers[id] = c
	}
	for email, id := range t.customerEmail {
		s.customerByEmail[email] = id
	}
	for id, b := range t.bookings {
		s.bookings[id] = b.Clone()
	}
	s.audit = append(s.audit, t.audit...)
	s.outbox = append(s.outbox, t.outbox...)
	s.mu.Unlock()

	t.done = true
	t.releaseAll()
	return nil
}

// checkDeltas refuses a commit that would move a count on a record that no
// longer exists or take it below zero. Callers hold s.mu.
func (t *tx) checkDeltas() error {
	for k, d := range t.capDelta {
		if d == 0 {
			continue
		}
		rec, ok := t.s.capacity[k]
		if !ok {
			rec, ok = t.capNew[k]
		}
		if _, deleted := t.rtDeletes[k.ResourceTypeID]; deleted {
			ok = false
		}
		if !ok {
			return &domain.InvariantViolationError{
				ResourceTypeID: k.ResourceTypeID,
				Date:           k.Date,
				Detail:         fmt.Sprintf("delta %d on a capacity record that no longer exists", d),
			}
		}
		if rec.AvailableUnits+d < 0 {
			return &domain.InvariantViolationError{
				ResourceTypeID: k.ResourceTypeID,
				Date:           k.Date,
				Detail:         fmt.Sprintf("delta %d would take %d available units below zero", d, rec.AvailableUnits),
			}
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.rollback()
	return nil
}

func (t *tx) rollback() {
	t.done = true
	t.releaseAll()
}

// capacityView resolves a key against the committed state plus this
// transaction's pending writes.
func (t *tx) capacityView(k domain.CapacityKey) (domain.CapacityRecord, bool) {
	t.s.mu.RLock()
	rec, ok := t.s.capacity[k]
	t.s.mu.RUnlock()
	if !ok {
		rec, ok = t.capNew[k]
	}
	if !ok {
		return domain.CapacityRecord{}, false
	}
	rec.AvailableUnits += t.capDelta[k]
	if p, ok := t.capPrice[k]; ok {
		rec.Price = p
	}
	return rec, true
}

func (t *tx) bookingView(id uuid.UUID) (*domain.Booking, bool) {
	if b, ok := t.bookings[id]; ok {
		return b.Clone(), true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

func (t *tx) resourceTypeView(id int64) (domain.ResourceType, bool) {
	if _, deleted := t.rtDeletes[id]; deleted {
		return domain.ResourceType{}, false
	}
	if rt, ok := t.rtUpserts[id]; ok {
		return rt, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rt, ok := t.s.resourceTypes[id]
	return rt, ok
}
