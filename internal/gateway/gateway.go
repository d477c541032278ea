// Package gateway holds the mobile-money provider adapters. Each adapter
// translates one provider's API and vocabulary into the common Initiate /
// QueryStatus surface; nothing outside this package knows provider-specific
// status codes.
package gateway

import (
	"context"
	"fmt"

	"github.com/ugacribs/rentpay/internal/models"
)

// Status is the provider-neutral state of a collection request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// InitiateRequest asks the provider to debit the payer.
type InitiateRequest struct {
	CorrelationID string // Our UUID; the provider must echo it back
	PayerHandle   string // MSISDN in international format
	Amount        int64  // Minor currency units
	CurrencyCode  string
	Description   string
}

// InitiateResult is the provider's acknowledgement of a collection request.
// Acceptance only means "queued"; the final outcome arrives via callback or
// polling.
type InitiateResult struct {
	GatewayRef string
}

// StatusResult is the provider's current view of a collection request.
type StatusResult struct {
	Status        Status
	GatewayRef    string
	FailureReason string
}

// IGateway is one mobile-money provider.
type IGateway interface {
	Name() models.PaymentGatewayName
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	QueryStatus(ctx context.Context, correlationID string) (*StatusResult, error)

	// ParseCallback decodes a provider webhook body into the correlation ID
	// it refers to and the reported status. Bodies that do not parse or lack
	// the correlation ID return an error; callbacks are never trusted beyond
	// what a status query would confirm anyway.
	ParseCallback(body []byte) (correlationID string, result *StatusResult, err error)
}

// Registry maps provider names to adapters.
type Registry map[models.PaymentGatewayName]IGateway

// Get returns the adapter for the named provider.
func (r Registry) Get(name models.PaymentGatewayName) (IGateway, error) {
	gw, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment gateway: %s", name)
	}
	return gw, nil
}
