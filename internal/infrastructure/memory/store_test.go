package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

var day = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, units int) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ResourceTypes().Upsert(ctx, &domain.ResourceType{
		ID: 1, Name: "Deluxe", TotalUnits: units, BasePrice: decimal.NewFromInt(100),
	}))
	for i := 0; i < 3; i++ {
		created, err := tx.Capacity().UpsertIfAbsent(ctx, domain.CapacityRecord{
			ResourceTypeID: 1,
			Date:           day.AddDate(0, 0, i),
			AvailableUnits: units,
			Price:          decimal.NewFromInt(100),
		})
		require.NoError(t, err)
		require.True(t, created)
	}
	require.NoError(t, tx.Commit())
}

func available(t *testing.T, s *Store, date time.Time) int {
	t.Helper()
	rec, ok := s.Snapshot().Capacity[domain.CapacityKey{ResourceTypeID: 1, Date: date}]
	require.True(t, ok)
	return rec.AvailableUnits
}

func TestApplyDeltaCommitAndRollback(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	next, err := tx.Capacity().ApplyDelta(ctx, 1, day, -3)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// Pending writes are visible inside the transaction only.
	rec, err := tx.Capacity().Get(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.AvailableUnits)
	assert.Equal(t, 5, available(t, s, day))

	require.NoError(t, tx.Rollback())
	assert.Equal(t, 5, available(t, s, day))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Capacity().ApplyDelta(ctx, 1, day, -3)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 2, available(t, s, day))
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")
}

func TestApplyDeltaRejectsNegativeAndMissing(t *testing.T) {
	s := NewStore()
	seed(t, s, 2)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Capacity().ApplyDelta(ctx, 1, day, -3)
	var unavailable *domain.CapacityUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 2, unavailable.Available)
	assert.Equal(t, 3, unavailable.Requested)

	_, err = tx.Capacity().ApplyDelta(ctx, 1, day.AddDate(0, 0, 10), -1)
	assert.ErrorIs(t, err, domain.ErrCapacityRecordMissing)
}

func TestUpsertIfAbsentSkipsExisting(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	created, err := tx.Capacity().UpsertIfAbsent(ctx, domain.CapacityRecord{
		ResourceTypeID: 1, Date: day, AvailableUnits: 99, Price: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 5, available(t, s, day))
}

func TestCapacityLockExcludesSecondTransaction(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()
	keys := domain.KeysForSpan(1, day, day.AddDate(0, 0, 2))

	first, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Capacity().Lock(ctx, keys))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	second, err := s.Begin(ctx)
	require.NoError(t, err)
	err = second.Capacity().Lock(waitCtx, keys)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NoError(t, second.Rollback())

	require.NoError(t, first.Commit())

	third, err := s.Begin(ctx)
	require.NoError(t, err)
	assert.NoError(t, third.Capacity().Lock(ctx, keys))
	require.NoError(t, third.Rollback())
}

func TestConcurrentDeltasNeverOversell(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()
	key := []domain.CapacityKey{{ResourceTypeID: 1, Date: day}}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if err != nil {
				return
			}
			defer tx.Rollback()
			if err := tx.Capacity().Lock(ctx, key); err != nil {
				return
			}
			if _, err := tx.Capacity().ApplyDelta(ctx, 1, day, -1); err != nil {
				return
			}
			if tx.Commit() == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, available(t, s, day))
}

func TestAuditListNewestFirstWithPaging(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, tx.Audit().Append(ctx, domain.AuditEntry{
			Action:       domain.AuditCreate,
			EntityType:   domain.EntityBooking,
			EntityID:     string(rune('a' + i)),
			TimestampUtc: day.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	entries, err := tx.Audit().List(ctx, domain.AuditFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].EntityID)
	assert.Equal(t, "c", entries[1].EntityID)
}

func TestOutboxOnlyPublishesCommittedMessages(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Outbox().Insert(ctx, domain.OutboxMessage{Type: "BookingCreated", PayloadJSON: "{}"}))
	require.NoError(t, tx.Rollback())

	pending, err := s.Outbox().GetPendingBatch(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Outbox().Insert(ctx, domain.OutboxMessage{Type: "BookingCreated", PayloadJSON: "{}"}))
	require.NoError(t, tx.Commit())

	pending, err = s.Outbox().GetPendingBatch(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	now := time.Now().Unix()
	msg := pending[0]
	msg.ProcessedAtUtc = &now
	require.NoError(t, s.Outbox().Save(ctx, msg))

	pending, err = s.Outbox().GetPendingBatch(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResourceTypeSharedLocksCoexistAndBlockDelete(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	first, err := s.Begin(ctx)
	require.NoError(t, err)
	second, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = first.ResourceTypes().GetForShare(ctx, 1)
	require.NoError(t, err)
	_, err = second.ResourceTypes().GetForShare(ctx, 1)
	require.NoError(t, err, "shared holders do not exclude each other")

	deleter, err := s.Begin(ctx)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = deleter.ResourceTypes().Delete(waitCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, deleter.Rollback())

	require.NoError(t, first.Rollback())
	require.NoError(t, second.Rollback())

	deleter, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, deleter.ResourceTypes().Delete(ctx, 1))
	require.NoError(t, deleter.Commit())
	assert.Empty(t, s.Snapshot().Capacity)
}

func TestSharedLockUpgradesWhenSoleHolder(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.ResourceTypes().GetForShare(ctx, 1)
	require.NoError(t, err)
	_, err = tx.ResourceTypes().GetForUpdate(ctx, 1)
	require.NoError(t, err)

	other, err := s.Begin(ctx)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = other.ResourceTypes().GetForShare(waitCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "exclusive holder blocks readers")
	require.NoError(t, other.Rollback())
	require.NoError(t, tx.Rollback())
}

func TestCommitRefusesDeltaOnDeletedResourceType(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	// The writer skips the resource type lock, so only the commit check stands
	// between it and a delta on a record that is gone.
	writer, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = writer.Capacity().ApplyDelta(ctx, 1, day, -2)
	require.NoError(t, err)

	deleter, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, deleter.ResourceTypes().Delete(ctx, 1))
	require.NoError(t, deleter.Commit())

	err = writer.Commit()
	var violation *domain.InvariantViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, int64(1), violation.ResourceTypeID)
	assert.Empty(t, s.Snapshot().Capacity, "no record is resurrected")
}

func TestResourceTypeNamesAreUnique(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.ResourceTypes().Upsert(ctx, &domain.ResourceType{
		ID: 2, Name: " deluxe ", TotalUnits: 1, BasePrice: decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.NoError(t, tx.ResourceTypes().Upsert(ctx, &domain.ResourceType{
		ID: 1, Name: "DELUXE", TotalUnits: 5, BasePrice: decimal.NewFromInt(100),
	}), "a type may keep its own name")
}

func TestSetPriceAndListByResourceType(t *testing.T) {
	s := NewStore()
	seed(t, s, 5)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Capacity().SetPrice(ctx, 1, day.AddDate(0, 0, 1), decimal.NewFromInt(150)))
	err = tx.Capacity().SetPrice(ctx, 1, day.AddDate(0, 0, 9), decimal.NewFromInt(150))
	assert.ErrorIs(t, err, domain.ErrCapacityRecordMissing)
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	recs, err := tx.Capacity().ListByResourceType(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].Date.Equal(day))
	assert.True(t, recs[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, recs[1].Price.Equal(decimal.NewFromInt(150)))
}
