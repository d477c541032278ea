package models

import (
	"time"

	"github.com/ugacribs/rentpay/internal/utils"
)

// LeaseStatus tracks the tenancy lifecycle.
type LeaseStatus string

const (
	LeaseStatusPending    LeaseStatus = "pending"
	LeaseStatusActive     LeaseStatus = "active"
	LeaseStatusTerminated LeaseStatus = "terminated"
)

// Lease represents one tenancy and carries the billing anchors the recurring
// jobs run from. OpeningBalance and RentDueDay are frozen at signing; all
// amounts are int64 minor currency units.
type Lease struct {
	Base         `bson:",inline"`
	TenantID     utils.SixID `bson:"tenant_id" json:"tenant_id"`
	UnitID       utils.SixID `bson:"unit_id" json:"unit_id"`
	TenantEmail  string      `bson:"tenant_email" json:"tenant_email"` // Receipt/reminder delivery address
	CurrencyCode string      `bson:"currency_code" json:"currency_code"`

	MonthlyRent    int64 `bson:"monthly_rent" json:"monthly_rent"`       // > 0
	LateFeeBase    int64 `bson:"late_fee_base" json:"late_fee_base"`     // >= 0, fee for one full month of arrears
	RentDueDay     int   `bson:"rent_due_day" json:"rent_due_day"`       // 1..31, clamped to short months
	OpeningBalance int64 `bson:"opening_balance" json:"opening_balance"` // Signed; positive = owed, negative = credit

	Status              LeaseStatus `bson:"status" json:"status"`
	ProratedRentCharged bool        `bson:"prorated_rent_charged" json:"prorated_rent_charged"`
	FirstBillingDate    *time.Time  `bson:"first_billing_date,omitempty" json:"first_billing_date,omitempty"`
	SignedAt            *time.Time  `bson:"signed_at,omitempty" json:"signed_at,omitempty"`
	TerminatedAt        *time.Time  `bson:"terminated_at,omitempty" json:"terminated_at,omitempty"`

	// TxnSeq is the per-lease transaction sequence counter, bumped atomically
	// on every append. It gives the ledger a stable total order even when two
	// inserts land on the same millisecond.
	TxnSeq int64 `bson:"txn_seq" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	Deleted   bool      `bson:"deleted" json:"-"`
}

// IsActive reports whether the lease is currently billable.
func (l *Lease) IsActive() bool {
	return l.Status == LeaseStatusActive && !l.Deleted
}
