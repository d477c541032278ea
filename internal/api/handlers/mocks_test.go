package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/utils"
)

// Shared testify mocks for the handler tests.

// MockLeaseService implements services.ILeaseService
type MockLeaseService struct {
	mock.Mock
}

func (m *MockLeaseService) CreateLease(ctx context.Context, params services.CreateLeaseParams) (*models.Lease, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lease), args.Error(1)
}

func (m *MockLeaseService) SignLease(ctx context.Context, leaseID utils.SixID, signedAt time.Time) (*models.Lease, error) {
	args := m.Called(ctx, leaseID, signedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lease), args.Error(1)
}

func (m *MockLeaseService) TerminateLease(ctx context.Context, leaseID utils.SixID, at time.Time) (*models.Lease, error) {
	args := m.Called(ctx, leaseID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lease), args.Error(1)
}

func (m *MockLeaseService) PostAdjustment(ctx context.Context, leaseID utils.SixID, amount int64, description string) (*models.Transaction, error) {
	args := m.Called(ctx, leaseID, amount, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLeaseService) DeleteLeasePermanently(ctx context.Context, leaseID utils.SixID) error {
	args := m.Called(ctx, leaseID)
	return args.Error(0)
}

// MockLedgerService implements services.ILedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLedgerService) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockLedgerService) ListTransactions(ctx context.Context, leaseID utils.SixID) ([]models.Transaction, error) {
	args := m.Called(ctx, leaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockLedgerService) HasCycleCharge(ctx context.Context, leaseID utils.SixID, cycleKey string) (bool, error) {
	args := m.Called(ctx, leaseID, cycleKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerService) Balance(ctx context.Context, leaseID utils.SixID) (int64, error) {
	args := m.Called(ctx, leaseID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) Aging(ctx context.Context, leaseID utils.SixID, asOf time.Time) (*billing.Aging, error) {
	args := m.Called(ctx, leaseID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Aging), args.Error(1)
}

func (m *MockLedgerService) FindLease(ctx context.Context, id utils.SixID) (*models.Lease, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lease), args.Error(1)
}

func (m *MockLedgerService) ListActiveLeases(ctx context.Context) ([]models.Lease, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Lease), args.Error(1)
}

// MockPaymentService implements services.IPaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitiatePayment(ctx context.Context, leaseID utils.SixID, gatewayName models.PaymentGatewayName, payerHandle string, amount int64) (*models.PaymentAttempt, error) {
	args := m.Called(ctx, leaseID, gatewayName, payerHandle, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentAttempt), args.Error(1)
}

func (m *MockPaymentService) HandleCallback(ctx context.Context, gatewayName models.PaymentGatewayName, body []byte) error {
	args := m.Called(ctx, gatewayName, body)
	return args.Error(0)
}

func (m *MockPaymentService) PollPendingAttempts(ctx context.Context, minAge time.Duration) (*services.RunReport, error) {
	args := m.Called(ctx, minAge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RunReport), args.Error(1)
}

func (m *MockPaymentService) FindAttempt(ctx context.Context, id utils.SixID) (*models.PaymentAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentAttempt), args.Error(1)
}

func (m *MockPaymentService) ListAttempts(ctx context.Context, leaseID utils.SixID) ([]models.PaymentAttempt, error) {
	args := m.Called(ctx, leaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentAttempt), args.Error(1)
}

// MockBillingRunService implements services.IBillingRunService
type MockBillingRunService struct {
	mock.Mock
}

func (m *MockBillingRunService) RunRecurringBilling(ctx context.Context, runDate time.Time) (*services.RunReport, error) {
	args := m.Called(ctx, runDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RunReport), args.Error(1)
}

func (m *MockBillingRunService) RunLateFees(ctx context.Context, runDate time.Time) (*services.RunReport, error) {
	args := m.Called(ctx, runDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RunReport), args.Error(1)
}

func (m *MockBillingRunService) DueSoonLeases(ctx context.Context, runDate time.Time) ([]models.Lease, error) {
	args := m.Called(ctx, runDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Lease), args.Error(1)
}

// MockStatementService implements services.IStatementService
type MockStatementService struct {
	mock.Mock
}

func (m *MockStatementService) RenderStatement(ctx context.Context, leaseID utils.SixID, asOf time.Time) (*services.Statement, error) {
	args := m.Called(ctx, leaseID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Statement), args.Error(1)
}

func (m *MockStatementService) ArchiveStatement(ctx context.Context, leaseID utils.SixID, asOf time.Time) (string, error) {
	args := m.Called(ctx, leaseID, asOf)
	return args.String(0), args.Error(1)
}

func (m *MockStatementService) BuildAgingReport(ctx context.Context, asOf time.Time) (*services.AgingReport, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AgingReport), args.Error(1)
}
