package billing

import (
	"time"

	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/utils"
)

// Balance and aging derivation. The ledger is the source of truth: a lease's
// balance is its opening balance plus the sum of all transaction amounts, and
// nothing in the system caches it.

// AgingBucket classifies how long a positive balance has gone unpaid.
type AgingBucket string

const (
	BucketCurrent    AgingBucket = "current" // 0-30 days
	BucketDays31to60 AgingBucket = "31-60"
	BucketDays61to90 AgingBucket = "61-90"
	BucketOver90     AgingBucket = "over90"
	BucketPrepaid    AgingBucket = "prepaid" // balance <= 0, no aging
)

// Aging is the result of walking one lease's ledger as of a given date.
type Aging struct {
	AsOf        time.Time   `json:"as_of"`
	Balance     int64       `json:"balance"`
	Bucket      AgingBucket `json:"bucket"`
	DaysOverdue int         `json:"days_overdue"`
	// OldestUnpaid is the date the currently outstanding balance first became
	// positive; nil when the balance is not positive or when the opening
	// balance alone carries it (in which case DaysOverdue is 0).
	OldestUnpaid *time.Time `json:"oldest_unpaid,omitempty"`
}

// ComputeBalance returns openingBalance plus the sum of all transaction
// amounts. The sum is order-independent; callers that also need aging must
// pass the transactions in creation order.
func ComputeBalance(openingBalance int64, txns []models.Transaction) int64 {
	balance := openingBalance
	for i := range txns {
		balance += txns[i].Amount
	}
	return balance
}

// ComputeAging walks the ledger oldest to newest and buckets the outstanding
// balance by how long it has been unpaid. The "oldest unpaid date" is the
// transaction date of the most recent transition of the running balance from
// <= 0 to > 0 that has not since returned to <= 0. A positive balance with no
// such transition (an opening balance never touched by any transaction) is
// treated as current.
//
// Transactions must be in creation order; the bucketing, unlike the sum, is
// order-dependent.
func ComputeAging(asOf time.Time, openingBalance int64, txns []models.Transaction) Aging {
	asOf = Date(asOf)
	running := openingBalance
	var unpaidSince *time.Time

	for i := range txns {
		prev := running
		running += txns[i].Amount
		switch {
		case running <= 0:
			unpaidSince = nil
		case prev <= 0:
			d := Date(txns[i].TransactionDate)
			unpaidSince = &d
		}
	}

	aging := Aging{AsOf: asOf, Balance: running}

	if running <= 0 {
		aging.Bucket = BucketPrepaid
		return aging
	}

	if unpaidSince == nil {
		aging.Bucket = BucketCurrent
		return aging
	}

	aging.OldestUnpaid = unpaidSince
	aging.DaysOverdue = DaysBetween(*unpaidSince, asOf)
	switch {
	case aging.DaysOverdue <= 30:
		aging.Bucket = BucketCurrent
	case aging.DaysOverdue <= 60:
		aging.Bucket = BucketDays31to60
	case aging.DaysOverdue <= 90:
		aging.Bucket = BucketDays61to90
	default:
		aging.Bucket = BucketOver90
	}
	return aging
}

// ProportionalLateFee computes the late fee for an outstanding balance: the
// base fee scaled by balance/monthlyRent, round-half-up. Half a month of
// arrears costs half the base fee; two months cost double. The fee has no
// upper bound, matching the billing policy as it stands.
func ProportionalLateFee(balance, monthlyRent, lateFeeBase int64) int64 {
	if balance <= 0 || monthlyRent <= 0 || lateFeeBase <= 0 {
		return 0
	}
	return utils.MulDivRoundHalfUp(balance, lateFeeBase, monthlyRent)
}
