package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/models"
)

func newTestBillingRun(t *testing.T, name string) (ILedgerService, ILeaseService, IBillingRunService) {
	t.Helper()
	db, ledger, leases := newTestLedger(t, name)
	cfg := &config.Config{LateFeeGraceDays: 5, ReminderDaysBefore: 3}
	settings := NewSettingsService(db, cfg, nil)
	return ledger, leases, NewBillingRunService(cfg, ledger, settings)
}

func TestBillingRun_PostsRentDayBeforeDueDate(t *testing.T) {
	ledger, leases, runs := newTestBillingRun(t, "run_rent")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))

	// June 14: June 15 rent goes out.
	report, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 0, report.Failed)

	has, err := ledger.HasCycleCharge(ctx, lease.ID, "rent:2025-06-15")
	require.NoError(t, err)
	assert.True(t, has)

	// Any other day is a no-op for this lease.
	report, err = runs.RunRecurringBilling(ctx, testDate(2025, time.June, 20))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Successful)
	assert.Equal(t, 1, report.Skipped)
}

func TestBillingRun_ReplayIsIdempotent(t *testing.T) {
	ledger, leases, runs := newTestBillingRun(t, "run_replay")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))

	for i := 0; i < 3; i++ {
		_, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
		require.NoError(t, err)
	}

	txns, err := ledger.ListTransactions(ctx, lease.ID)
	require.NoError(t, err)
	rent := 0
	for _, txn := range txns {
		if txn.Type == models.TransactionRent {
			rent++
		}
	}
	assert.Equal(t, 1, rent)
}

func TestBillingRun_ProratedCycleNotDoubleCharged(t *testing.T) {
	ledger, leases, runs := newTestBillingRun(t, "run_prorated_overlap")
	ctx := context.Background()

	// Signed on the due day: the prorated charge covers May 15 - Jun 14 in
	// full, so the first recurring charge must be the June 15 cycle, not the
	// May 15 one.
	lease := createActiveLease(t, leases, testDate(2025, time.May, 15))

	report, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)

	has, err := ledger.HasCycleCharge(ctx, lease.ID, "rent:2025-05-15")
	require.NoError(t, err)
	assert.False(t, has, "the cycle covered by proration must not get a rent charge")

	balance, err := ledger.Balance(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), balance) // Full-cycle proration + June rent
}

func TestBillingRun_OneBadLeaseDoesNotBlockOthers(t *testing.T) {
	db, ledger, leases := newTestLedger(t, "run_bulkhead")
	cfg := &config.Config{LateFeeGraceDays: 5, ReminderDaysBefore: 3}
	runs := NewBillingRunService(cfg, ledger, NewSettingsService(db, cfg, nil))
	ctx := context.Background()

	good := createActiveLease(t, leases, testDate(2025, time.May, 10))
	bad := createActiveLease(t, leases, testDate(2025, time.May, 10))

	// Corrupt the second lease: active without a first billing date.
	_, err := db.Collection(leasesCollection).UpdateOne(ctx,
		bson.M{"_id": bad.ID},
		bson.M{"$unset": bson.M{"first_billing_date": ""}},
	)
	require.NoError(t, err)

	report, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors, bad.ID.String())

	has, err := ledger.HasCycleCharge(ctx, good.ID, "rent:2025-06-15")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBillingRun_HoldsOffUntilProratedChargePosted(t *testing.T) {
	db, ledger, leases := newTestLedger(t, "run_unprorated")
	cfg := &config.Config{LateFeeGraceDays: 5, ReminderDaysBefore: 3}
	runs := NewBillingRunService(cfg, ledger, NewSettingsService(db, cfg, nil))
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))

	// A signing that crashed between activation and the prorated charge
	// leaves the flag unset. Recurring billing must report the lease and
	// post nothing until a sign resume lands the charge.
	_, err := db.Collection(leasesCollection).UpdateOne(ctx,
		bson.M{"_id": lease.ID},
		bson.M{"$set": bson.M{"prorated_rent_charged": false}},
	)
	require.NoError(t, err)

	report, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors, lease.ID.String())

	has, err := ledger.HasCycleCharge(ctx, lease.ID, "rent:2025-06-15")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLateFeeRun_AssessesProportionalFee(t *testing.T) {
	ledger, leases, runs := newTestBillingRun(t, "run_latefee")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10)) // 83,333 prorated

	// Bill the June 15 cycle, then pay half of the total.
	_, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
	require.NoError(t, err)
	err = ledger.AppendTransaction(ctx, &models.Transaction{
		LeaseID: lease.ID, Type: models.TransactionPayment, Amount: -333_333,
		Description: "Partial payment", TransactionDate: testDate(2025, time.June, 16),
	})
	require.NoError(t, err)
	// Balance now 250,000 = half the monthly rent.

	// Grace expires June 20 (due June 15, grace 5 days).
	report, err := runs.RunLateFees(ctx, testDate(2025, time.June, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)

	balance, err := ledger.Balance(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000+25_000), balance) // Half the base fee

	// Replay changes nothing.
	report, err = runs.RunLateFees(ctx, testDate(2025, time.June, 20))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Successful)
	assert.Equal(t, 1, report.Skipped)

	// Any other day is a no-op too.
	report, err = runs.RunLateFees(ctx, testDate(2025, time.June, 21))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Successful)
}

func TestLateFeeRun_NoFeeWhenPaidUp(t *testing.T) {
	ledger, leases, runs := newTestBillingRun(t, "run_latefee_paid")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))
	_, err := runs.RunRecurringBilling(ctx, testDate(2025, time.June, 14))
	require.NoError(t, err)

	// Pay everything off before the grace period ends.
	err = ledger.AppendTransaction(ctx, &models.Transaction{
		LeaseID: lease.ID, Type: models.TransactionPayment, Amount: -583_333,
		Description: "Full payment", TransactionDate: testDate(2025, time.June, 16),
	})
	require.NoError(t, err)

	report, err := runs.RunLateFees(ctx, testDate(2025, time.June, 20))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Successful)
	assert.Equal(t, 1, report.Skipped)

	balance, err := ledger.Balance(ctx, lease.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestDueSoonLeases(t *testing.T) {
	_, leases, runs := newTestBillingRun(t, "run_due_soon")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))

	// Due on the 15th, reminder window 3 days: June 12 flags it.
	due, err := runs.DueSoonLeases(ctx, testDate(2025, time.June, 12))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, lease.ID, due[0].ID)

	due, err = runs.DueSoonLeases(ctx, testDate(2025, time.June, 13))
	require.NoError(t, err)
	assert.Empty(t, due)
}
