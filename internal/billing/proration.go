package billing

import (
	"time"

	"github.com/ugacribs/rentpay/internal/utils"
)

// Prorated first-month rent. A lease signed mid-cycle owes rent for the days
// between signing and the next due date, priced against the length of the
// billing period the signing falls in. Signing exactly on the due day owes a
// full cycle (the "next" occurrence is next month's).

// ProrationResult describes the one-time charge computed at signing.
type ProrationResult struct {
	Amount      int64     // round-half-up of rent * days/periodDays; may be 0 for tiny rents
	PeriodStart time.Time // signing date
	PeriodEnd   time.Time // day before the first due date after signing
	Days        int       // days charged for
	PeriodDays  int       // length of the billing period the signing falls in
}

// ProratedRent computes the prorated charge for a lease signed on signingDate
// with the given monthly rent and due day.
func ProratedRent(monthlyRent int64, dueDay int, signingDate time.Time) ProrationResult {
	signing := Date(signingDate)
	next := NextDueDate(dueDay, signing)
	prev := PrevDueDate(dueDay, signing)

	days := DaysBetween(signing, next)
	periodDays := DaysBetween(prev, next)

	return ProrationResult{
		Amount:      utils.MulDivRoundHalfUp(monthlyRent, int64(days), int64(periodDays)),
		PeriodStart: signing,
		PeriodEnd:   next.AddDate(0, 0, -1),
		Days:        days,
		PeriodDays:  periodDays,
	}
}

// FirstBillingDate returns the due-date occurrence the recurring billing job
// anchors on: the first due date after signing, i.e. the day after the
// prorated period ends. The job posts each monthly charge the day before its
// due date, so the cycle covered by proration is never charged twice and no
// day between signing and the first regular cycle goes unbilled.
func FirstBillingDate(dueDay int, signingDate time.Time) time.Time {
	return NextDueDate(dueDay, signingDate)
}
