package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/models"
)

// memoryArchive is an in-memory IStatementStorage.
type memoryArchive struct {
	objects map[string][]byte
}

func (m *memoryArchive) PutStatement(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = body
	return key, nil
}

func (m *memoryArchive) GeneratePresignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://archive.test/" + key, nil
}

func newTestStatements(t *testing.T, name string) (ILedgerService, ILeaseService, IStatementService, *memoryArchive) {
	t.Helper()
	db, ledger, leases := newTestLedger(t, name)
	cfg := &config.Config{LateFeeGraceDays: 5, ReminderDaysBefore: 3, StatementKeyPrefix: "statements"}
	archive := &memoryArchive{}
	stmts := NewStatementService(cfg, ledger, archive, NewSettingsService(db, cfg, nil))
	return ledger, leases, stmts, archive
}

func TestStatementService_Render(t *testing.T) {
	ledger, leases, stmts, _ := newTestStatements(t, "stmt_render")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))
	err := ledger.AppendTransaction(ctx, &models.Transaction{
		LeaseID: lease.ID, Type: models.TransactionPayment, Amount: -50_000,
		Description: "Mobile money payment", TransactionDate: testDate(2025, time.May, 20),
	})
	require.NoError(t, err)

	st, err := stmts.RenderStatement(ctx, lease.ID, testDate(2025, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(33_333), st.Balance)
	assert.Len(t, st.Transactions, 2)

	text := st.Text()
	assert.Contains(t, text, "Statement of account for lease "+lease.ID.String())
	assert.Contains(t, text, "UGX 83,333")
	assert.Contains(t, text, "UGX -50,000")
	assert.Contains(t, text, "Balance due: UGX 33,333")
}

func TestStatementService_Archive(t *testing.T) {
	_, leases, stmts, archive := newTestStatements(t, "stmt_archive")
	ctx := context.Background()

	lease := createActiveLease(t, leases, testDate(2025, time.May, 10))

	key, err := stmts.ArchiveStatement(ctx, lease.ID, testDate(2025, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, "statements/"+lease.ID.String()+"/2025-06-01.txt", key)
	assert.Contains(t, string(archive.objects[key]), "Balance due")
}

func TestStatementService_AgingReport(t *testing.T) {
	ledger, leases, stmts, _ := newTestStatements(t, "stmt_aging")
	ctx := context.Background()

	owing := createActiveLease(t, leases, testDate(2025, time.May, 10)) // 83,333 since May 10
	paid := createActiveLease(t, leases, testDate(2025, time.May, 10))
	err := ledger.AppendTransaction(ctx, &models.Transaction{
		LeaseID: paid.ID, Type: models.TransactionPayment, Amount: -83_333,
		Description: "Payment", TransactionDate: testDate(2025, time.May, 11),
	})
	require.NoError(t, err)

	report, err := stmts.BuildAgingReport(ctx, testDate(2025, time.July, 1))
	require.NoError(t, err)
	require.Len(t, report.Leases, 2)

	assert.Equal(t, 1, report.Counts[billing.BucketDays31to60])
	assert.Equal(t, 1, report.Counts[billing.BucketPrepaid])
	assert.Equal(t, int64(83_333), report.Totals[billing.BucketDays31to60])
	assert.Zero(t, report.Totals[billing.BucketPrepaid])

	for _, row := range report.Leases {
		if row.LeaseID == owing.ID {
			assert.Equal(t, billing.BucketDays31to60, row.Bucket)
		}
	}
}
