package models

import (
	"time"

	"github.com/ugacribs/rentpay/internal/utils"
)

// PaymentGatewayName identifies which mobile-money provider carries a payment.
type PaymentGatewayName string

const (
	GatewayMTNMoMo     PaymentGatewayName = "mtn_momo"
	GatewayAirtelMoney PaymentGatewayName = "airtel_money"
)

// PaymentAttemptStatus is the attempt state machine: pending is the only
// non-terminal state; completed and failed are final.
type PaymentAttemptStatus string

const (
	PaymentPending   PaymentAttemptStatus = "pending"
	PaymentCompleted PaymentAttemptStatus = "completed"
	PaymentFailed    PaymentAttemptStatus = "failed"
)

// PaymentAttempt correlates one gateway transaction to a lease and, once
// completed, to exactly one ledger Transaction. Gateway callbacks may be
// replayed; the reconciler must treat completion as idempotent.
type PaymentAttempt struct {
	Base        `bson:",inline"`
	LeaseID     utils.SixID        `bson:"lease_id" json:"lease_id"`
	Gateway     PaymentGatewayName `bson:"gateway" json:"gateway"`
	PayerHandle string             `bson:"payer_handle" json:"payer_handle"` // MSISDN the debit is requested from

	// CorrelationID is ours (a UUID sent to the gateway); GatewayRef is theirs.
	CorrelationID string `bson:"correlation_id" json:"correlation_id"`
	GatewayRef    string `bson:"gateway_ref,omitempty" json:"gateway_ref,omitempty"`

	Amount int64                `bson:"amount" json:"amount"` // positive; ledger credit is posted as -Amount
	Status PaymentAttemptStatus `bson:"status" json:"status"`

	TransactionID *utils.SixID `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	FailureReason string       `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the attempt can transition no further.
func (p *PaymentAttempt) IsTerminal() bool {
	return p.Status == PaymentCompleted || p.Status == PaymentFailed
}
