package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/infrastructure/memory"
)

func date(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	store       *memory.Store
	audit       *AuditRecorder
	coordinator *ReservationCoordinator
	orch        *Orchestrator
	bookings    *BookingService
	horizon     *HorizonService
}

// newFixture wires every service over a fresh in-memory store with today
// fixed at 2024-12-31.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	clock := domain.FixedClock{Day: date("2024-12-31")}
	audit := NewAuditRecorder()
	coordinator := NewReservationCoordinator(audit)
	orch := NewOrchestrator(coordinator)
	return &fixture{
		store:       store,
		audit:       audit,
		coordinator: coordinator,
		orch:        orch,
		bookings: NewBookingService(store, NewAvailabilityChecker(), orch, audit,
			NewOutboxWriter(), clock, logger),
		horizon: NewHorizonService(store, audit, clock, 5, logger),
	}
}

// addResourceType registers a type and generates capacity for [from, to) at price.
func (f *fixture) addResourceType(t *testing.T, id int64, name string, units int, price int64, from, to string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.horizon.RegisterResourceType(ctx, domain.ResourceType{
		ID: id, Name: name, TotalUnits: units, BasePrice: decimal.NewFromInt(price),
	}))
	_, err := f.horizon.GenerateHorizonRange(ctx, id, date(from), date(to), nil)
	require.NoError(t, err)
}

func (f *fixture) available(t *testing.T, rt int64, d string) int {
	t.Helper()
	rec, ok := f.store.Snapshot().Capacity[domain.CapacityKey{ResourceTypeID: rt, Date: date(d)}]
	require.True(t, ok, "no capacity for %d on %s", rt, d)
	return rec.AvailableUnits
}

func createInput(email string, checkIn, checkOut string, lines ...domain.LineRequest) domain.CreateBookingInput {
	return domain.CreateBookingInput{
		Customer: domain.CustomerInfo{Name: "Guest " + email, Email: email},
		Lines:    lines,
		CheckIn:  date(checkIn),
		CheckOut: date(checkOut),
	}
}

func line(rt int64, qty int) domain.LineRequest {
	return domain.LineRequest{ResourceTypeID: rt, Quantity: qty}
}

// assertConserved checks availableUnits + reserved units of live bookings ==
// totalUnits for every capacity record.
func (f *fixture) assertConserved(t *testing.T) {
	t.Helper()
	snap := f.store.Snapshot()
	held := make(map[domain.CapacityKey]int)
	for _, b := range snap.Bookings {
		if !b.Status.Holds() {
			continue
		}
		for _, li := range b.LineItems {
			for _, d := range domain.DatesInRange(b.CheckIn, b.CheckOut) {
				held[domain.CapacityKey{ResourceTypeID: li.ResourceTypeID, Date: d}] += li.Quantity
			}
		}
	}
	for k, rec := range snap.Capacity {
		rt := snap.ResourceTypes[k.ResourceTypeID]
		require.Equal(t, rt.TotalUnits, rec.AvailableUnits+held[k],
			"conservation broken for resource type %d on %s", k.ResourceTypeID, domain.FormatDate(k.Date))
	}
}

func (f *fixture) auditCount(action domain.AuditAction, entity domain.EntityType, id string) int {
	n := 0
	for _, e := range f.store.Snapshot().Audit {
		if e.Action == action && e.EntityType == entity && (id == "" || e.EntityID == id) {
			n++
		}
	}
	return n
}
