package models

import (
	"time"

	"github.com/ugacribs/rentpay/internal/utils"
)

// TransactionType classifies a ledger entry. Charges carry positive amounts,
// payments and credit adjustments negative ones.
type TransactionType string

const (
	TransactionRent         TransactionType = "rent"
	TransactionProratedRent TransactionType = "prorated_rent"
	TransactionLateFee      TransactionType = "late_fee"
	TransactionPayment      TransactionType = "payment"
	TransactionAdjustment   TransactionType = "adjustment"
)

// IsCharge reports whether entries of this type may only be posted against an
// active lease.
func (t TransactionType) IsCharge() bool {
	switch t {
	case TransactionRent, TransactionProratedRent, TransactionLateFee:
		return true
	}
	return false
}

// Transaction is one immutable entry in a lease's ledger. Entries are never
// updated or deleted; the single exception is the cascading delete when a
// terminated lease is permanently removed.
//
// TransactionDate is the business-meaningful calendar date (UTC midnight);
// CreatedAt plus Seq give the total order every balance computation walks.
type Transaction struct {
	Base        `bson:",inline"`
	LeaseID     utils.SixID     `bson:"lease_id" json:"lease_id"`
	Type        TransactionType `bson:"type" json:"type"`
	Amount      int64           `bson:"amount" json:"amount"`
	Description string          `bson:"description" json:"description"`

	TransactionDate time.Time `bson:"transaction_date" json:"transaction_date"`

	// CycleKey identifies the billing cycle a charge belongs to (for example
	// "rent:2025-06-15"). A unique partial index on (lease_id, cycle_key)
	// makes the second of two racing posts for the same cycle fail with a
	// duplicate key error instead of double-charging the tenant.
	CycleKey string `bson:"cycle_key,omitempty" json:"-"`

	Seq       int64     `bson:"seq" json:"seq"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
