package application

import (
	"context"
	"testing"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

func TestResourceTypeCreatedHandler(t *testing.T) {
	f := newFixture(t)
	h := NewResourceTypeCreatedHandler(f.horizon, zaptest.NewLogger(t))
	ctx := context.Background()

	env := primitives.NewIntegrationEventEnvelope("ResourceTypeCreated",
		`{"resourceTypeId":7,"name":"Family","totalUnits":3,"basePrice":"150.00"}`)
	require.NoError(t, h.Handle(ctx, &env))

	snap := f.store.Snapshot()
	rt, ok := snap.ResourceTypes[7]
	require.True(t, ok)
	assert.Equal(t, "Family", rt.Name)
	assert.True(t, decimal.NewFromInt(150).Equal(rt.BasePrice))
	assert.Len(t, snap.Capacity, 5)
	assert.Equal(t, 3, f.available(t, 7, "2024-12-31"))

	// Redelivery creates nothing new.
	require.NoError(t, h.Handle(ctx, &env))
	assert.Len(t, f.store.Snapshot().Capacity, 5)
	assert.Equal(t, 1, f.auditCount(domain.AuditGenerate, domain.EntityResourceType, "7"))
}

func TestResourceTypeCreatedHandlerDropsBadMessages(t *testing.T) {
	f := newFixture(t)
	h := NewResourceTypeCreatedHandler(f.horizon, zaptest.NewLogger(t))
	ctx := context.Background()

	for _, env := range []primitives.IntegrationEventEnvelope{
		primitives.NewIntegrationEventEnvelope("ResourceTypeRenamed", `{"resourceTypeId":1}`),
		primitives.NewIntegrationEventEnvelope("ResourceTypeCreated", `{not json`),
		primitives.NewIntegrationEventEnvelope("ResourceTypeCreated",
			`{"resourceTypeId":1,"name":"","totalUnits":3,"basePrice":"10"}`),
	} {
		env := env
		assert.NoError(t, h.Handle(ctx, &env))
	}
	snap := f.store.Snapshot()
	assert.Empty(t, snap.ResourceTypes)
	assert.Empty(t, snap.Capacity)
}
