package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

type stubReader []domain.CapacityRecord

func (s stubReader) ListRange(_ context.Context, rt int64, from, to time.Time) ([]domain.CapacityRecord, error) {
	var out []domain.CapacityRecord
	for _, r := range s {
		if r.ResourceTypeID == rt && !r.Date.Before(from) && r.Date.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func capRec(d string, units int, price int64) domain.CapacityRecord {
	return domain.CapacityRecord{ResourceTypeID: 1, Date: date(d), AvailableUnits: units, Price: decimal.NewFromInt(price)}
}

func TestAvailabilityChecker(t *testing.T) {
	reader := stubReader{
		capRec("2025-03-01", 4, 100),
		capRec("2025-03-02", 1, 120),
		capRec("2025-03-03", 3, 100),
	}
	checker := NewAvailabilityChecker()
	ctx := context.Background()

	tests := []struct {
		name         string
		in, out      string
		qty          int
		ok           bool
		limiting     int
		limitingDate string
		missing      []string
		price        int64
	}{
		{"fits", "2025-03-01", "2025-03-02", 2, true, 4, "2025-03-01", nil, 200},
		{"limited by middle night", "2025-03-01", "2025-03-04", 2, false, 1, "2025-03-02", nil, 640},
		{"exact fit", "2025-03-02", "2025-03-03", 1, true, 1, "2025-03-02", nil, 120},
		{"missing tail", "2025-03-03", "2025-03-05", 1, false, 3, "2025-03-03", []string{"2025-03-04"}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := checker.Check(ctx, reader, 1, date(tt.in), date(tt.out), tt.qty)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.limiting, res.LimitingUnits)
			require.NotNil(t, res.LimitingDate)
			assert.Equal(t, tt.limitingDate, domain.FormatDate(*res.LimitingDate))
			if tt.missing == nil {
				assert.Empty(t, res.MissingDates)
			} else {
				assert.Equal(t, tt.missing, formatDates(res.MissingDates))
			}
			assert.True(t, decimal.NewFromInt(tt.price).Equal(res.EstimatedPrice), "price %s", res.EstimatedPrice)
		})
	}
}

func TestAvailabilityCheckerRejectsBadInput(t *testing.T) {
	checker := NewAvailabilityChecker()
	ctx := context.Background()

	_, err := checker.Check(ctx, stubReader{}, 1, date("2025-03-02"), date("2025-03-02"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	_, err = checker.Check(ctx, stubReader{}, 1, date("2025-03-01"), date("2025-03-02"), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = checker.Check(ctx, stubReader{}, 1, date("2025-03-01"), date("2026-03-02"), 1)
	assert.ErrorIs(t, err, domain.ErrValidation, "366 nights")

	_, err = checker.Check(ctx, stubReader{}, 1, date("2025-03-01"), date("2026-03-01"), 1)
	assert.NoError(t, err, "365 nights")

	res, err := checker.Check(ctx, stubReader{}, 1, date("2025-03-01"), date("2025-03-03"), 1)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Nil(t, res.LimitingDate)
	assert.ErrorIs(t, availabilityErr(res), domain.ErrCapacityRecordMissing)
}
