package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

func TestGenerateHorizonIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.horizon.RegisterResourceType(ctx, domain.ResourceType{
		ID: 1, Name: "Deluxe", TotalUnits: 4, BasePrice: decimal.NewFromInt(80),
	}))

	created, err := f.horizon.GenerateHorizon(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = f.horizon.GenerateHorizon(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, f.auditCount(domain.AuditGenerate, domain.EntityResourceType, "1"))

	for _, d := range []string{"2024-12-31", "2025-01-01", "2025-01-02"} {
		assert.Equal(t, 4, f.available(t, 1, d))
	}
	_, ok := f.store.Snapshot().Capacity[domain.CapacityKey{ResourceTypeID: 1, Date: date("2025-01-03")}]
	assert.False(t, ok)
}

func TestGenerateHorizonKeepsReservedCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addResourceType(t, 1, "Deluxe", 4, 80, "2025-01-01", "2025-01-03")

	_, err := f.bookings.Create(ctx, createInput("a@x.io", "2025-01-01", "2025-01-02", line(1, 3)))
	require.NoError(t, err)

	created, err := f.horizon.GenerateHorizonRange(ctx, 1, date("2025-01-01"), date("2025-01-05"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, f.available(t, 1, "2025-01-01"))
	f.assertConserved(t)
}

func TestGenerateHorizonDefaultsAndPriceOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.horizon.RegisterResourceType(ctx, domain.ResourceType{
		ID: 2, Name: "Suite", TotalUnits: 1, BasePrice: decimal.NewFromInt(200),
	}))

	created, err := f.horizon.GenerateHorizon(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, created)

	price := decimal.NewFromInt(260)
	created, err = f.horizon.GenerateHorizonRange(ctx, 2, date("2025-02-14"), date("2025-02-15"), &price)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	rec := f.store.Snapshot().Capacity[domain.CapacityKey{ResourceTypeID: 2, Date: date("2025-02-14")}]
	assert.True(t, price.Equal(rec.Price))

	_, err = f.horizon.GenerateHorizon(ctx, 9, 3)
	assert.ErrorIs(t, err, domain.ErrResourceTypeNotFound)

	_, err = f.horizon.GenerateHorizonRange(ctx, 2, date("2025-02-15"), date("2025-02-15"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	zero := decimal.Zero
	_, err = f.horizon.GenerateHorizonRange(ctx, 2, date("2025-02-15"), date("2025-02-16"), &zero)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegisterResourceType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.horizon.RegisterResourceType(ctx, domain.ResourceType{ID: 1, Name: "", TotalUnits: 1, BasePrice: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	err = f.horizon.RegisterResourceType(ctx, domain.ResourceType{ID: 1, Name: "Twin", TotalUnits: -1, BasePrice: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	rt := domain.ResourceType{ID: 1, Name: "Twin", TotalUnits: 2, BasePrice: decimal.NewFromInt(90)}
	require.NoError(t, f.horizon.RegisterResourceType(ctx, rt))
	rt.BasePrice = decimal.NewFromInt(95)
	require.NoError(t, f.horizon.RegisterResourceType(ctx, rt))

	assert.Equal(t, 1, f.auditCount(domain.AuditCreate, domain.EntityResourceType, "1"))
	assert.Equal(t, 1, f.auditCount(domain.AuditUpdate, domain.EntityResourceType, "1"))
	assert.True(t, decimal.NewFromInt(95).Equal(f.store.Snapshot().ResourceTypes[1].BasePrice))
}

func TestDeleteResourceType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addResourceType(t, 1, "Deluxe", 2, 100, "2025-01-01", "2025-01-03")

	b, err := f.bookings.Create(ctx, createInput("a@x.io", "2025-01-01", "2025-01-02", line(1, 1)))
	require.NoError(t, err)

	err = f.horizon.DeleteResourceType(ctx, 1)
	require.ErrorIs(t, err, domain.ErrResourceTypeInUse)

	_, err = f.bookings.Cancel(ctx, b.ID, "plans changed")
	require.NoError(t, err)
	require.NoError(t, f.horizon.DeleteResourceType(ctx, 1))

	snap := f.store.Snapshot()
	_, ok := snap.ResourceTypes[1]
	assert.False(t, ok)
	assert.Empty(t, snap.Capacity)
	assert.Equal(t, 1, f.auditCount(domain.AuditDelete, domain.EntityResourceType, "1"))

	assert.ErrorIs(t, f.horizon.DeleteResourceType(ctx, 1), domain.ErrResourceTypeNotFound)
}

func TestRegisterResourceTypeRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addResourceType(t, 1, "Deluxe", 2, 100, "2025-01-01", "2025-01-03")

	err := f.horizon.RegisterResourceType(ctx, domain.ResourceType{
		ID: 2, Name: "DELUXE", TotalUnits: 1, BasePrice: decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, ok := f.store.Snapshot().ResourceTypes[2]
	assert.False(t, ok)

	require.NoError(t, f.horizon.RegisterResourceType(ctx, domain.ResourceType{
		ID: 1, Name: "Deluxe King", TotalUnits: 2, BasePrice: decimal.NewFromInt(100),
	}))
	require.NoError(t, f.horizon.RegisterResourceType(ctx, domain.ResourceType{
		ID: 2, Name: "Deluxe", TotalUnits: 1, BasePrice: decimal.NewFromInt(50),
	}), "a released name can be reused")
}

func TestRegisterResourceTypeResizesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addResourceType(t, 1, "Deluxe", 5, 100, "2025-01-01", "2025-01-05")

	b, err := f.bookings.Create(ctx, createInput("a@x.io", "2025-01-01", "2025-01-03", line(1, 3)))
	require.NoError(t, err)

	resize := func(units int) error {
		return f.horizon.RegisterResourceType(ctx, domain.ResourceType{
			ID: 1, Name: "Deluxe", TotalUnits: units, BasePrice: decimal.NewFromInt(100),
		})
	}

	require.NoError(t, resize(7))
	assert.Equal(t, 4, f.available(t, 1, "2025-01-01"))
	assert.Equal(t, 7, f.available(t, 1, "2025-01-04"))
	f.assertConserved(t)

	err = resize(2)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 7, f.store.Snapshot().ResourceTypes[1].TotalUnits)
	assert.Equal(t, 4, f.available(t, 1, "2025-01-01"))

	_, err = f.bookings.Cancel(ctx, b.ID, "")
	require.NoError(t, err)
	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04"} {
		assert.Equal(t, 7, f.available(t, 1, d), d)
	}

	require.NoError(t, resize(2))
	assert.Equal(t, 2, f.available(t, 1, "2025-01-01"))
	f.assertConserved(t)
}

func TestDeleteWaitsForReservationInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addResourceType(t, 1, "Deluxe", 2, 100, "2025-01-01", "2025-01-03")

	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = f.coordinator.Reserve(ctx, tx, 1, date("2025-01-01"), date("2025-01-03"), 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.horizon.DeleteResourceType(ctx, 1) }()

	select {
	case err := <-done:
		t.Fatalf("delete finished while a reservation held the type: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Bookings().Insert(ctx, &domain.Booking{
		CheckIn:      date("2025-01-01"),
		CheckOut:     date("2025-01-03"),
		LineItems:    []domain.BookingLineItem{{ResourceTypeID: 1, Quantity: 1}},
		Status:       domain.BookingConfirmed,
		CreatedAtUtc: time.Now().UTC(),
	}))
	require.NoError(t, tx.Commit())

	require.ErrorIs(t, <-done, domain.ErrResourceTypeInUse)
	assert.Equal(t, 1, f.available(t, 1, "2025-01-01"))
	f.assertConserved(t)
}

func TestConcurrentCreateAndDeleteStayConsistent(t *testing.T) {
	for round := 0; round < 10; round++ {
		f := newFixture(t)
		f.addResourceType(t, 1, "Deluxe", 4, 100, "2025-01-01", "2025-01-05")
		ctx := context.Background()

		var wg sync.WaitGroup
		createErrs := make([]error, 4)
		var deleteErr error
		for i := range createErrs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, createErrs[i] = f.bookings.Create(ctx,
					createInput(fmt.Sprintf("g%d@x.io", i), "2025-01-01", "2025-01-03", line(1, 1)))
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleteErr = f.horizon.DeleteResourceType(ctx, 1)
		}()
		wg.Wait()

		snap := f.store.Snapshot()
		if _, exists := snap.ResourceTypes[1]; exists {
			require.ErrorIs(t, deleteErr, domain.ErrResourceTypeInUse, "round %d", round)
			f.assertConserved(t)
			continue
		}

		require.NoError(t, deleteErr, "round %d", round)
		assert.Empty(t, snap.Capacity, "round %d", round)
		for _, b := range snap.Bookings {
			assert.False(t, b.Status.Holds(), "round %d: live booking %s outlived its type", round, b.ID)
		}
		for _, err := range createErrs {
			require.Error(t, err, "round %d", round)
			// The unlocked precheck can see the type just before its records vanish.
			assert.True(t, errors.Is(err, domain.ErrResourceTypeNotFound) || errors.Is(err, domain.ErrCapacityRecordMissing),
				"round %d: %v", round, err)
		}
	}
}

func TestSetPrice(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithActor(context.Background(), "revenue")
	f.addResourceType(t, 1, "Deluxe", 5, 100, "2025-01-01", "2025-01-06")

	require.NoError(t, f.horizon.SetPrice(ctx, 1, date("2025-01-02"), date("2025-01-04"), decimal.NewFromInt(120)))
	require.Equal(t, 1, f.auditCount(domain.AuditUpdate, domain.EntityInventory, "1"))
	audit := f.store.Snapshot().Audit
	entry := audit[len(audit)-1]
	assert.Equal(t, map[string]any{"prices": map[string]any{"2025-01-02": "100", "2025-01-03": "100"}}, entry.Before)
	assert.Equal(t, "120", entry.After["price"])
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "revenue", *entry.ActorID)

	require.NoError(t, f.horizon.SetPrice(ctx, 1, date("2025-01-02"), date("2025-01-04"), decimal.NewFromInt(120)))
	assert.Equal(t, 1, f.auditCount(domain.AuditUpdate, domain.EntityInventory, "1"), "unchanged prices are not audited")

	b, err := f.bookings.Create(ctx, createInput("a@x.io", "2025-01-01", "2025-01-03", line(1, 1)))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(220).Equal(b.TotalAmount), "total %s", b.TotalAmount)

	err = f.horizon.SetPrice(ctx, 1, date("2025-01-05"), date("2025-01-08"), decimal.NewFromInt(90))
	assert.ErrorIs(t, err, domain.ErrCapacityRecordMissing)
	rec := f.store.Snapshot().Capacity[domain.CapacityKey{ResourceTypeID: 1, Date: date("2025-01-05")}]
	assert.True(t, decimal.NewFromInt(100).Equal(rec.Price), "a failed update changes nothing")

	assert.ErrorIs(t, f.horizon.SetPrice(ctx, 1, date("2025-01-02"), date("2025-01-03"), decimal.Zero), domain.ErrValidation)
	assert.ErrorIs(t, f.horizon.SetPrice(ctx, 9, date("2025-01-02"), date("2025-01-03"), decimal.NewFromInt(1)), domain.ErrResourceTypeNotFound)
	assert.ErrorIs(t, f.horizon.SetPrice(ctx, 1, date("2025-01-03"), date("2025-01-02"), decimal.NewFromInt(1)), domain.ErrInvalidDateRange)
	f.assertConserved(t)
}

func TestListCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addResourceType(t, 1, "Deluxe", 5, 100, "2025-01-01", "2025-01-04")

	_, err := f.bookings.Create(ctx, createInput("a@x.io", "2025-01-02", "2025-01-03", line(1, 2)))
	require.NoError(t, err)

	recs, err := f.horizon.ListCapacity(ctx, 1, date("2024-12-30"), date("2025-01-10"))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, date("2025-01-01"), recs[0].Date)
	assert.Equal(t, []int{5, 3, 5}, []int{recs[0].AvailableUnits, recs[1].AvailableUnits, recs[2].AvailableUnits})

	_, err = f.horizon.ListCapacity(ctx, 9, date("2025-01-01"), date("2025-01-02"))
	assert.ErrorIs(t, err, domain.ErrResourceTypeNotFound)
	_, err = f.horizon.ListCapacity(ctx, 1, date("2025-01-01"), date("2027-01-03"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
