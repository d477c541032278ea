// Package billing holds the canonical, side-effect-free billing arithmetic:
// due-date calendar math, proration, the proportional late fee and balance /
// aging derivation. Every job and every read path goes through this package,
// so the same inputs always produce the same figures. Nothing here touches
// the clock; callers pass explicit dates.
package billing

import (
	"fmt"
	"time"

	"github.com/ugacribs/rentpay/internal/utils"
)

// Date normalises a timestamp to a pure calendar date (UTC midnight). All
// billing comparisons operate on such dates.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b (date-normalised, may be
// negative).
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DueDateIn returns the due-day occurrence within the given month. A due day
// beyond the month's length clamps to its last day, so "due on the 31st"
// means the 28th/29th in February.
func DueDateIn(year int, month time.Month, dueDay int) time.Time {
	last := DaysInMonth(year, month)
	day := dueDay
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NextDueDate returns the first due-day occurrence strictly after the given
// date.
func NextDueDate(dueDay int, after time.Time) time.Time {
	after = Date(after)
	candidate := DueDateIn(after.Year(), after.Month(), dueDay)
	if candidate.After(after) {
		return candidate
	}
	// Step via the first of the following month. AddDate on a clamped
	// month-end date normalises past short months (Jan 31 + 1 month = Mar 3)
	// and would skip an occurrence.
	next := time.Date(after.Year(), after.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return DueDateIn(next.Year(), next.Month(), dueDay)
}

// PrevDueDate returns the most recent due-day occurrence on or before the
// given date.
func PrevDueDate(dueDay int, onOrBefore time.Time) time.Time {
	onOrBefore = Date(onOrBefore)
	candidate := DueDateIn(onOrBefore.Year(), onOrBefore.Month(), dueDay)
	if !candidate.After(onOrBefore) {
		return candidate
	}
	// Day 0 is the last day of the previous month; same normalisation trap
	// as in NextDueDate.
	prev := time.Date(onOrBefore.Year(), onOrBefore.Month(), 0, 0, 0, 0, 0, time.UTC)
	return DueDateIn(prev.Year(), prev.Month(), dueDay)
}

// Cycle keys give a charge its billing-cycle identity up front, instead of
// re-deriving "has this cycle been handled" from the most recent transaction
// of some type. The ledger's unique index on (lease_id, cycle_key) turns a
// duplicate post for the same cycle into a storage-level rejection.

const cycleKeyDateLayout = "2006-01-02"

// RentCycleKey keys the monthly rent charge for the cycle starting at dueDate.
func RentCycleKey(dueDate time.Time) string {
	return fmt.Sprintf("rent:%s", Date(dueDate).Format(cycleKeyDateLayout))
}

// LateFeeCycleKey keys the late fee for the cycle whose due date is dueDate.
func LateFeeCycleKey(dueDate time.Time) string {
	return fmt.Sprintf("late_fee:%s", Date(dueDate).Format(cycleKeyDateLayout))
}

// ProrationKey keys the one-time prorated charge of a lease.
func ProrationKey(leaseID utils.SixID) string {
	return fmt.Sprintf("prorated:%s", leaseID.String())
}

// PaymentKey keys the ledger credit produced by one payment attempt.
func PaymentKey(attemptID utils.SixID) string {
	return fmt.Sprintf("payment:%s", attemptID.String())
}
