package domain

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DatesInRange lists every night of the half-open interval [from, to) in ascending order.
func DatesInRange(from, to time.Time) []time.Time {
	from, to = DateOf(from), DateOf(to)
	if !to.After(from) {
		return nil
	}
	dates := make([]time.Time, 0, Nights(from, to))
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Nights counts the chargeable nights between check-in and check-out.
func Nights(checkIn, checkOut time.Time) int {
	n := int(DateOf(checkOut).Sub(DateOf(checkIn)).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

const (
	// MaxStayNights bounds a single booking or availability query.
	MaxStayNights = 365
	// MaxHorizonDays bounds one capacity generation, price change or listing.
	MaxHorizonDays = 731
)

// ValidateStay checks that [checkIn, checkOut) is a non-empty span of at
// most MaxStayNights nights.
func ValidateStay(checkIn, checkOut time.Time) error {
	return validateSpan(checkIn, checkOut, MaxStayNights, "check-out must be after check-in")
}

// ValidateHorizon is ValidateStay for catalog ranges.
func ValidateHorizon(from, to time.Time) error {
	return validateSpan(from, to, MaxHorizonDays, "range end must be after its start")
}

func validateSpan(from, to time.Time, max int, inverted string) error {
	if !DateOf(to).After(DateOf(from)) {
		return NewInvalidDateRange(inverted)
	}
	if n := Nights(from, to); n > max {
		return NewValidationError(fmt.Sprintf("span of %d days exceeds the limit of %d", n, max))
	}
	return nil
}
