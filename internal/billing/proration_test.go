package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProratedRent_MidCycle(t *testing.T) {
	// Rent 500,000 due on the 15th, signed 2025-05-10: 5 days of a 30-day
	// period (Apr 15 - May 15).
	res := ProratedRent(500_000, 15, date(2025, time.May, 10))

	assert.Equal(t, int64(83_333), res.Amount)
	assert.Equal(t, 5, res.Days)
	assert.Equal(t, 30, res.PeriodDays)
	assert.Equal(t, date(2025, time.May, 10), res.PeriodStart)
	assert.Equal(t, date(2025, time.May, 14), res.PeriodEnd)
}

func TestProratedRent_SignedOnDueDay(t *testing.T) {
	// Signing exactly on the due day owes the full cycle: the next occurrence
	// is a month out, so days == periodDays and the charge is the full rent.
	res := ProratedRent(500_000, 15, date(2025, time.May, 15))

	assert.Equal(t, int64(500_000), res.Amount)
	assert.Equal(t, res.PeriodDays, res.Days)
	assert.Equal(t, date(2025, time.June, 14), res.PeriodEnd)
}

func TestProratedRent_DayBeforeDueDay(t *testing.T) {
	// One day of a 31-day period (May 15 - Jun 15).
	res := ProratedRent(500_000, 15, date(2025, time.June, 14))

	assert.Equal(t, 1, res.Days)
	assert.Equal(t, 31, res.PeriodDays)
	assert.Equal(t, int64(16_129), res.Amount) // 500000/31 = 16129.03..., rounds down
}

func TestProratedRent_ClampedDueDay(t *testing.T) {
	// Due day 31 in February clamps to the 28th; a lease signed Feb 10 2025 is
	// prorated over the Jan 31 - Feb 28 period (28 days), 18 of them charged.
	res := ProratedRent(280_000, 31, date(2025, time.February, 10))

	assert.Equal(t, 18, res.Days)
	assert.Equal(t, 28, res.PeriodDays)
	assert.Equal(t, int64(180_000), res.Amount)
}

func TestProratedRent_MonthEndSigning(t *testing.T) {
	// Due day 31 signed on Jan 31 2025 sits exactly on a due-day occurrence,
	// so it owes the full Jan 31 - Feb 28 cycle: 28 days of a 28-day period,
	// not a double-length one spilling into March.
	res := ProratedRent(500_000, 31, date(2025, time.January, 31))

	assert.Equal(t, 28, res.Days)
	assert.Equal(t, 28, res.PeriodDays)
	assert.Equal(t, int64(500_000), res.Amount)
	assert.Equal(t, date(2025, time.February, 27), res.PeriodEnd)
	assert.Equal(t, date(2025, time.February, 28), FirstBillingDate(31, date(2025, time.January, 31)))
}

func TestFirstBillingDate(t *testing.T) {
	assert.Equal(t, date(2025, time.May, 15), FirstBillingDate(15, date(2025, time.May, 10)))
	// On the due day the prorated charge covers the full cycle just started,
	// so recurring billing must not anchor on it.
	assert.Equal(t, date(2025, time.June, 15), FirstBillingDate(15, date(2025, time.May, 15)))
}

// A year of billing must be contiguous: the prorated fragment plus the twelve
// monthly charges cover every day from signing with no gap and no overlap.
func TestProration_RoundTripWithRecurringCycles(t *testing.T) {
	for _, tc := range []struct {
		dueDay  int
		signing time.Time
	}{
		{15, date(2025, time.May, 10)},
		{15, date(2025, time.May, 15)},
		{15, date(2025, time.May, 16)},
		{15, date(2025, time.January, 31)},
		{31, date(2025, time.January, 31)},
		{31, date(2025, time.February, 28)},
		{31, date(2025, time.March, 15)},
		{30, date(2025, time.January, 30)},
	} {
		res := ProratedRent(500_000, tc.dueDay, tc.signing)
		first := FirstBillingDate(tc.dueDay, tc.signing)

		// The prorated period ends the day before the first recurring cycle
		// starts.
		assert.Equal(t, first, res.PeriodEnd.AddDate(0, 0, 1), "due day %d signing %s", tc.dueDay, tc.signing)

		// Walk twelve recurring cycles and count the days each covers. The
		// fragment plus the cycles must account for every day from signing to
		// the final due date, exactly once.
		covered := res.Days
		start := first
		for i := 0; i < 12; i++ {
			end := NextDueDate(tc.dueDay, start)
			covered += DaysBetween(start, end)
			start = end
		}
		assert.Equal(t, DaysBetween(Date(tc.signing), start), covered, "due day %d signing %s", tc.dueDay, tc.signing)
	}
}
