package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/storage"
	"github.com/ugacribs/rentpay/internal/utils"
)

// Statement is one lease's rendered account history as of a date.
type Statement struct {
	Lease        *models.Lease        `json:"lease"`
	AsOf         time.Time            `json:"as_of"`
	Transactions []models.Transaction `json:"transactions"`
	Balance      int64                `json:"balance"`
	Aging        *billing.Aging       `json:"aging"`
}

// LeaseAging is one row of the portfolio aging report.
type LeaseAging struct {
	LeaseID  utils.SixID         `json:"lease_id"`
	TenantID utils.SixID         `json:"tenant_id"`
	UnitID   utils.SixID         `json:"unit_id"`
	Balance  int64               `json:"balance"`
	Bucket   billing.AgingBucket `json:"bucket"`
}

// AgingReport buckets every active lease's balance by age.
type AgingReport struct {
	AsOf   time.Time                     `json:"as_of"`
	Leases []LeaseAging                  `json:"leases"`
	Totals map[billing.AgingBucket]int64 `json:"totals"` // outstanding amount per bucket
	Counts map[billing.AgingBucket]int   `json:"counts"` // leases per bucket
}

// IStatementService renders tenant statements and the portfolio aging
// report, and archives statements to S3.
type IStatementService interface {
	RenderStatement(ctx context.Context, leaseID utils.SixID, asOf time.Time) (*Statement, error)

	// ArchiveStatement renders a lease's statement and uploads it; returns
	// the archive key.
	ArchiveStatement(ctx context.Context, leaseID utils.SixID, asOf time.Time) (string, error)

	// BuildAgingReport runs the aging walk over every active lease.
	BuildAgingReport(ctx context.Context, asOf time.Time) (*AgingReport, error)
}

type statementService struct {
	cfg      *config.Config
	ledger   ILedgerService
	archive  storage.IStatementStorage
	settings ISettingsService
}

// NewStatementService creates a new StatementService. The archive may be nil
// when S3 is not configured; ArchiveStatement then fails cleanly.
func NewStatementService(cfg *config.Config, ledger ILedgerService, archive storage.IStatementStorage, settings ISettingsService) IStatementService {
	return &statementService{
		cfg:      cfg,
		ledger:   ledger,
		archive:  archive,
		settings: settings,
	}
}

func (s *statementService) RenderStatement(ctx context.Context, leaseID utils.SixID, asOf time.Time) (*Statement, error) {
	lease, err := s.ledger.FindLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	txns, err := s.ledger.ListTransactions(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	aging := billing.ComputeAging(asOf, lease.OpeningBalance, txns)
	return &Statement{
		Lease:        lease,
		AsOf:         billing.Date(asOf),
		Transactions: txns,
		Balance:      aging.Balance,
		Aging:        &aging,
	}, nil
}

// Text renders the statement as the plain-text document that gets archived
// and emailed.
func (st *Statement) Text() string {
	var b strings.Builder
	lease := st.Lease
	fmt.Fprintf(&b, "Statement of account for lease %s\n", lease.ID.String())
	fmt.Fprintf(&b, "Unit %s, tenant %s\n", lease.UnitID.String(), lease.TenantID.String())
	fmt.Fprintf(&b, "As of %s\n\n", st.AsOf.Format("2006-01-02"))

	running := lease.OpeningBalance
	fmt.Fprintf(&b, "%-12s %-15s %-45s %15s %15s\n", "Date", "Type", "Description", "Amount", "Balance")
	fmt.Fprintf(&b, "%-12s %-15s %-45s %15s %15s\n", "", "opening", "Opening balance", "", utils.FormatMoney(lease.CurrencyCode, running))
	for i := range st.Transactions {
		txn := &st.Transactions[i]
		running += txn.Amount
		fmt.Fprintf(&b, "%-12s %-15s %-45s %15s %15s\n",
			txn.TransactionDate.Format("2006-01-02"),
			txn.Type,
			txn.Description,
			utils.FormatMoney(lease.CurrencyCode, txn.Amount),
			utils.FormatMoney(lease.CurrencyCode, running),
		)
	}

	fmt.Fprintf(&b, "\nBalance due: %s\n", utils.FormatMoney(lease.CurrencyCode, st.Balance))
	if st.Aging != nil && st.Aging.Bucket != billing.BucketPrepaid && st.Aging.DaysOverdue > 0 {
		fmt.Fprintf(&b, "Oldest unpaid charge: %d days (%s)\n", st.Aging.DaysOverdue, st.Aging.Bucket)
	}
	return b.String()
}

func (s *statementService) ArchiveStatement(ctx context.Context, leaseID utils.SixID, asOf time.Time) (string, error) {
	if s.archive == nil {
		return "", fmt.Errorf("statement archive is not configured")
	}
	st, err := s.RenderStatement(ctx, leaseID, asOf)
	if err != nil {
		return "", err
	}
	prefix := s.settings.GetString(ctx, SettingStatementKeyPrefix, s.cfg.StatementKeyPrefix)
	key := fmt.Sprintf("%s/%s/%s.txt", prefix, leaseID.String(), st.AsOf.Format("2006-01-02"))
	return s.archive.PutStatement(ctx, key, []byte(st.Text()), "text/plain; charset=utf-8")
}

func (s *statementService) BuildAgingReport(ctx context.Context, asOf time.Time) (*AgingReport, error) {
	leases, err := s.ledger.ListActiveLeases(ctx)
	if err != nil {
		return nil, err
	}

	report := &AgingReport{
		AsOf:   billing.Date(asOf),
		Totals: make(map[billing.AgingBucket]int64),
		Counts: make(map[billing.AgingBucket]int),
	}
	for i := range leases {
		lease := &leases[i]
		txns, err := s.ledger.ListTransactions(ctx, lease.ID)
		if err != nil {
			return nil, err
		}
		aging := billing.ComputeAging(asOf, lease.OpeningBalance, txns)
		report.Leases = append(report.Leases, LeaseAging{
			LeaseID:  lease.ID,
			TenantID: lease.TenantID,
			UnitID:   lease.UnitID,
			Balance:  aging.Balance,
			Bucket:   aging.Bucket,
		})
		report.Counts[aging.Bucket]++
		if aging.Balance > 0 {
			report.Totals[aging.Bucket] += aging.Balance
		}
	}
	return report, nil
}
