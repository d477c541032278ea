package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ugacribs/rentpay/internal/models"
)

func txn(typ models.TransactionType, amount int64, txnDate time.Time) models.Transaction {
	return models.Transaction{Type: typ, Amount: amount, TransactionDate: txnDate}
}

func TestComputeBalance(t *testing.T) {
	txns := []models.Transaction{
		txn(models.TransactionRent, 500_000, date(2025, time.May, 15)),
		txn(models.TransactionPayment, -300_000, date(2025, time.May, 20)),
		txn(models.TransactionLateFee, 20_000, date(2025, time.June, 20)),
	}

	assert.Equal(t, int64(220_000), ComputeBalance(0, txns))
	assert.Equal(t, int64(320_000), ComputeBalance(100_000, txns))
	assert.Equal(t, int64(0), ComputeBalance(0, nil))
}

func TestComputeAging_Prepaid(t *testing.T) {
	// Opening balance fully paid off: no outstanding amount, nothing ages.
	aging := ComputeAging(date(2025, time.July, 1), 100_000, []models.Transaction{
		txn(models.TransactionPayment, -100_000, date(2025, time.January, 1)),
	})

	assert.Equal(t, BucketPrepaid, aging.Bucket)
	assert.Equal(t, int64(0), aging.Balance)
	assert.Equal(t, 0, aging.DaysOverdue)
	assert.Nil(t, aging.OldestUnpaid)
}

func TestComputeAging_OpeningBalanceOnly(t *testing.T) {
	// A positive balance that never transitioned through a transaction has no
	// dateable origin, so it is reported as current.
	aging := ComputeAging(date(2025, time.July, 1), 100_000, nil)

	assert.Equal(t, BucketCurrent, aging.Bucket)
	assert.Equal(t, int64(100_000), aging.Balance)
	assert.Nil(t, aging.OldestUnpaid)
}

func TestComputeAging_Buckets(t *testing.T) {
	charge := date(2025, time.May, 15)
	txns := []models.Transaction{txn(models.TransactionRent, 500_000, charge)}

	cases := []struct {
		asOf    time.Time
		bucket  AgingBucket
		overdue int
	}{
		{date(2025, time.May, 15), BucketCurrent, 0},
		{date(2025, time.June, 14), BucketCurrent, 30},
		{date(2025, time.June, 15), BucketDays31to60, 31},
		{date(2025, time.July, 14), BucketDays31to60, 60},
		{date(2025, time.July, 15), BucketDays61to90, 61},
		{date(2025, time.August, 13), BucketDays61to90, 90},
		{date(2025, time.August, 14), BucketOver90, 91},
	}
	for _, c := range cases {
		aging := ComputeAging(c.asOf, 0, txns)
		assert.Equal(t, c.bucket, aging.Bucket, "as of %s", c.asOf)
		assert.Equal(t, c.overdue, aging.DaysOverdue, "as of %s", c.asOf)
		if assert.NotNil(t, aging.OldestUnpaid) {
			assert.Equal(t, charge, *aging.OldestUnpaid)
		}
	}
}

func TestComputeAging_FullPaymentResetsTheClock(t *testing.T) {
	// Rent charged in May, fully paid in June, charged again in July: the
	// outstanding balance dates from the July charge, not the May one.
	txns := []models.Transaction{
		txn(models.TransactionRent, 500_000, date(2025, time.May, 15)),
		txn(models.TransactionPayment, -500_000, date(2025, time.June, 1)),
		txn(models.TransactionRent, 500_000, date(2025, time.July, 15)),
	}

	aging := ComputeAging(date(2025, time.July, 20), 0, txns)
	assert.Equal(t, int64(500_000), aging.Balance)
	assert.Equal(t, 5, aging.DaysOverdue)
	assert.Equal(t, date(2025, time.July, 15), *aging.OldestUnpaid)
}

func TestComputeAging_PartialPaymentDoesNotReset(t *testing.T) {
	// A partial payment leaves the balance positive, so the original
	// transition still dates the debt.
	txns := []models.Transaction{
		txn(models.TransactionRent, 500_000, date(2025, time.May, 15)),
		txn(models.TransactionPayment, -200_000, date(2025, time.June, 1)),
		txn(models.TransactionRent, 500_000, date(2025, time.June, 15)),
	}

	aging := ComputeAging(date(2025, time.July, 1), 0, txns)
	assert.Equal(t, int64(800_000), aging.Balance)
	assert.Equal(t, date(2025, time.May, 15), *aging.OldestUnpaid)
	assert.Equal(t, 47, aging.DaysOverdue)
	assert.Equal(t, BucketDays31to60, aging.Bucket)
}

// forEachPermutation invokes fn with every ordering of txns.
func forEachPermutation(txns []models.Transaction, fn func([]models.Transaction)) {
	p := append([]models.Transaction(nil), txns...)
	var recurse func(k int)
	recurse = func(k int) {
		if k == len(p) {
			fn(p)
			return
		}
		for i := k; i < len(p); i++ {
			p[k], p[i] = p[i], p[k]
			recurse(k + 1)
			p[k], p[i] = p[i], p[k]
		}
	}
	recurse(0)
}

func TestComputeBalance_OrderIndependent(t *testing.T) {
	// The sum must not care how the ledger happens to be ordered.
	txns := []models.Transaction{
		txn(models.TransactionRent, 500_000, date(2025, time.May, 15)),
		txn(models.TransactionPayment, -500_000, date(2025, time.June, 1)),
		txn(models.TransactionRent, 500_000, date(2025, time.June, 15)),
		txn(models.TransactionLateFee, 20_000, date(2025, time.June, 25)),
	}
	want := ComputeBalance(100_000, txns)

	forEachPermutation(txns, func(p []models.Transaction) {
		assert.Equal(t, want, ComputeBalance(100_000, p))
	})
}

func TestComputeAging_OrderDependent(t *testing.T) {
	// Bucketing walks the running balance, so unlike the sum it depends on
	// the order transactions were created in. The same set with the payment
	// recorded last never dips to zero, so the debt keeps its May origin.
	asOf := date(2025, time.July, 20)
	creationOrder := []models.Transaction{
		txn(models.TransactionRent, 500_000, date(2025, time.May, 15)),
		txn(models.TransactionPayment, -500_000, date(2025, time.June, 1)),
		txn(models.TransactionRent, 500_000, date(2025, time.June, 15)),
	}
	paymentLast := []models.Transaction{
		creationOrder[0], creationOrder[2], creationOrder[1],
	}

	inOrder := ComputeAging(asOf, 0, creationOrder)
	reordered := ComputeAging(asOf, 0, paymentLast)

	assert.Equal(t, inOrder.Balance, reordered.Balance)
	assert.Equal(t, date(2025, time.June, 15), *inOrder.OldestUnpaid)
	assert.Equal(t, 35, inOrder.DaysOverdue)
	assert.Equal(t, BucketDays31to60, inOrder.Bucket)
	assert.Equal(t, date(2025, time.May, 15), *reordered.OldestUnpaid)
	assert.Equal(t, 66, reordered.DaysOverdue)
	assert.Equal(t, BucketDays61to90, reordered.Bucket)
}

func TestProportionalLateFee(t *testing.T) {
	// Half a month outstanding: half the base fee.
	assert.Equal(t, int64(25_000), ProportionalLateFee(250_000, 500_000, 50_000))
	// Full month.
	assert.Equal(t, int64(50_000), ProportionalLateFee(500_000, 500_000, 50_000))
	// Two months outstanding: double, no cap.
	assert.Equal(t, int64(100_000), ProportionalLateFee(1_000_000, 500_000, 50_000))
	// Round half up: 1/3 of 50,000 is 16,666.67.
	assert.Equal(t, int64(16_667), ProportionalLateFee(166_667, 500_000, 50_000))
}

func TestProportionalLateFee_NoFeeWhenNothingOwed(t *testing.T) {
	assert.Equal(t, int64(0), ProportionalLateFee(0, 500_000, 50_000))
	assert.Equal(t, int64(0), ProportionalLateFee(-100_000, 500_000, 50_000))
	assert.Equal(t, int64(0), ProportionalLateFee(250_000, 0, 50_000))
	assert.Equal(t, int64(0), ProportionalLateFee(250_000, 500_000, 0))
}
