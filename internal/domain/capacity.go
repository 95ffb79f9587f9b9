package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type CapacityKey struct {
	ResourceTypeID int64
	Date           time.Time
}

func (k CapacityKey) Less(o CapacityKey) bool {
	if k.ResourceTypeID != o.ResourceTypeID {
		return k.ResourceTypeID < o.ResourceTypeID
	}
	return k.Date.Before(o.Date)
}

// SortCapacityKeys orders keys by (resource type, date) and drops duplicates.
func SortCapacityKeys(keys []CapacityKey) []CapacityKey {
	out := make([]CapacityKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, CapacityKey{ResourceTypeID: k.ResourceTypeID, Date: DateOf(k.Date)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })

	uniq := out[:0]
	for i, k := range out {
		if i > 0 && k == out[i-1] {
			continue
		}
		uniq = append(uniq, k)
	}
	return uniq
}

// KeysForSpan lists the capacity keys of one resource type over [checkIn, checkOut).
func KeysForSpan(resourceTypeID int64, checkIn, checkOut time.Time) []CapacityKey {
	dates := DatesInRange(checkIn, checkOut)
	keys := make([]CapacityKey, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, CapacityKey{ResourceTypeID: resourceTypeID, Date: d})
	}
	return keys
}

type CapacityRecord struct {
	ResourceTypeID int64
	Date           time.Time
	AvailableUnits int
	Price          decimal.Decimal
	UpdatedAtUtc   time.Time
}

func (c CapacityRecord) Key() CapacityKey {
	return CapacityKey{ResourceTypeID: c.ResourceTypeID, Date: DateOf(c.Date)}
}

// AvailabilityResult is the outcome of a non-locking availability pre-check.
type AvailabilityResult struct {
	ResourceTypeID int64
	CheckIn        time.Time
	CheckOut       time.Time
	Quantity       int
	OK             bool
	// LimitingUnits is the minimum available count observed across the span.
	LimitingUnits int
	LimitingDate  *time.Time
	MissingDates  []time.Time
	// EstimatedPrice is advisory; the reservation computes the authoritative price.
	EstimatedPrice decimal.Decimal
}
