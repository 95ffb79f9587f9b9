package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

func TestSanitizeMap(t *testing.T) {
	id := uuid.MustParse("6f1c2a52-2f8d-4a55-9c55-6b1f0e2c9a10")
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	got := sanitizeMap(map[string]any{
		"name":            "Ana",
		"hashed_password": "x",
		"API_Token":       "y",
		"nested":          map[string]any{"client_secret": "z", "count": 2},
		"price":           decimal.RequireFromString("99.50"),
		"id":              id,
		"at":              at,
		"lines":           []int{1, 2},
		"missing":         (*string)(nil),
		"struct":          struct{ A int }{A: 1},
	})

	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, redacted, got["hashed_password"])
	assert.Equal(t, redacted, got["API_Token"])
	assert.Equal(t, map[string]any{"client_secret": redacted, "count": 2}, got["nested"])
	assert.Equal(t, "99.5", got["price"])
	assert.Equal(t, id.String(), got["id"])
	assert.Equal(t, "2025-01-01T11:00:00Z", got["at"])
	assert.Equal(t, []any{1, 2}, got["lines"])
	assert.Nil(t, got["missing"])
	assert.Equal(t, "{1}", got["struct"])

	assert.Nil(t, sanitizeMap(nil))
}

func TestSanitizeMapRedactsTypedMaps(t *testing.T) {
	got := sanitizeMap(map[string]any{
		"headers": map[string]string{"Auth_Token": "abc", "Host": "example.com"},
		"prices":  map[int]decimal.Decimal{1: decimal.RequireFromString("10.00")},
		"deep":    []map[string]string{{"secret": "s", "k": "v"}},
		"empty":   map[string]string(nil),
	})

	assert.Equal(t, map[string]any{"Auth_Token": redacted, "Host": "example.com"}, got["headers"])
	assert.Equal(t, map[string]any{"1": "10"}, got["prices"])
	assert.Equal(t, []any{map[string]any{"secret": redacted, "k": "v"}}, got["deep"])
	assert.Nil(t, got["empty"])
	assert.NotContains(t, fmt.Sprint(got), "abc")
}

func TestRecordIsDiscardedWithTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithActor(context.Background(), "admin")

	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.audit.Record(ctx, tx, domain.AuditUpdate, domain.EntityBooking, "b1", nil, map[string]any{"secret": "s"}))
	require.NoError(t, tx.Rollback())
	assert.Empty(t, f.store.Snapshot().Audit)

	tx, err = f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.audit.Record(ctx, tx, domain.AuditUpdate, domain.EntityBooking, "b1", nil, map[string]any{"secret": "s"}))
	require.NoError(t, tx.Commit())

	entries := f.store.Snapshot().Audit
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, "admin", *entries[0].ActorID)
	assert.Equal(t, redacted, entries[0].After["secret"])
	assert.Nil(t, entries[0].Before)
}
