package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/utils"
)

// RunReport summarizes one daily billing run. Failed leases are recorded and
// skipped; one broken lease never blocks the rest of the portfolio.
type RunReport struct {
	RunDate    time.Time         `json:"run_date"`
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`  // lease ID -> error message
	Charged    map[string]int64  `json:"charged,omitempty"` // lease ID -> amount posted
}

// IBillingRunService drives the idempotent daily jobs. Every operation takes
// an explicit run date rather than reading the clock, so a missed day can be
// replayed and a replayed day changes nothing.
type IBillingRunService interface {
	// RunRecurringBilling posts the monthly rent charge for every active
	// lease whose due date is the day after runDate. Already-charged cycles
	// and leases still covered by their prorated fragment are skipped.
	RunRecurringBilling(ctx context.Context, runDate time.Time) (*RunReport, error)

	// RunLateFees assesses late fees for every active lease whose most
	// recent due date lies exactly the grace period behind runDate and whose
	// balance is still positive. The fee scales with the outstanding balance.
	RunLateFees(ctx context.Context, runDate time.Time) (*RunReport, error)

	// DueSoonLeases returns the active leases whose next due date is exactly
	// the configured reminder window after runDate.
	DueSoonLeases(ctx context.Context, runDate time.Time) ([]models.Lease, error)
}

type billingRunService struct {
	cfg      *config.Config
	ledger   ILedgerService
	settings ISettingsService
}

// NewBillingRunService creates a new BillingRunService.
func NewBillingRunService(cfg *config.Config, ledger ILedgerService, settings ISettingsService) IBillingRunService {
	return &billingRunService{
		cfg:      cfg,
		ledger:   ledger,
		settings: settings,
	}
}

func newRunReport(runDate time.Time) *RunReport {
	return &RunReport{
		RunDate: runDate,
		Errors:  make(map[string]string),
		Charged: make(map[string]int64),
	}
}

func (r *RunReport) fail(leaseID utils.SixID, err error) {
	r.Failed++
	r.Errors[leaseID.String()] = err.Error()
}

func (s *billingRunService) RunRecurringBilling(ctx context.Context, runDate time.Time) (*RunReport, error) {
	runDate = billing.Date(runDate)
	report := newRunReport(runDate)

	leases, err := s.ledger.ListActiveLeases(ctx)
	if err != nil {
		return nil, err
	}
	report.Total = len(leases)

	for i := range leases {
		lease := &leases[i]
		posted, err := s.billLease(ctx, lease, runDate)
		switch {
		case err != nil:
			report.fail(lease.ID, err)
			log.Printf("Recurring billing failed for lease %s on %s: %v",
				lease.ID.String(), runDate.Format("2006-01-02"), err)
		case posted:
			report.Successful++
			report.Charged[lease.ID.String()] = lease.MonthlyRent
		default:
			report.Skipped++
		}
	}
	return report, nil
}

// billLease posts the rent charge for one lease if its due date is the day
// after runDate. Returns whether a charge was written.
func (s *billingRunService) billLease(ctx context.Context, lease *models.Lease, runDate time.Time) (bool, error) {
	dueDate := billing.NextDueDate(lease.RentDueDay, runDate)
	if billing.DaysBetween(runDate, dueDate) != 1 {
		return false, nil // Not due tomorrow
	}

	// Cycles already covered by the prorated first-month charge are not
	// billed again. A nil anchor means signing never completed; skip rather
	// than guess.
	if lease.FirstBillingDate == nil {
		return false, fmt.Errorf("lease %s is active without a first billing date", lease.ID.String())
	}
	if !lease.ProratedRentCharged {
		// Signing crashed before the prorated charge landed; the next sign
		// resume posts it. Billing ahead of it would invert the ledger order.
		return false, fmt.Errorf("lease %s has no prorated charge yet", lease.ID.String())
	}
	if dueDate.Before(*lease.FirstBillingDate) {
		return false, nil
	}

	periodEnd := billing.NextDueDate(lease.RentDueDay, dueDate)
	err := s.ledger.AppendTransaction(ctx, &models.Transaction{
		LeaseID: lease.ID,
		Type:    models.TransactionRent,
		Amount:  lease.MonthlyRent,
		Description: fmt.Sprintf("Monthly rent %s to %s",
			dueDate.Format("2006-01-02"), periodEnd.AddDate(0, 0, -1).Format("2006-01-02")),
		TransactionDate: dueDate,
		CycleKey:        billing.RentCycleKey(dueDate),
	})
	if errors.Is(err, ErrDuplicateCycleCharge) {
		return false, nil // Replayed run, cycle already charged
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *billingRunService) RunLateFees(ctx context.Context, runDate time.Time) (*RunReport, error) {
	runDate = billing.Date(runDate)
	report := newRunReport(runDate)
	graceDays := s.settings.GetInt(ctx, SettingLateFeeGraceDays, s.cfg.LateFeeGraceDays)

	leases, err := s.ledger.ListActiveLeases(ctx)
	if err != nil {
		return nil, err
	}
	report.Total = len(leases)

	for i := range leases {
		lease := &leases[i]
		fee, err := s.assessLateFee(ctx, lease, runDate, graceDays)
		switch {
		case err != nil:
			report.fail(lease.ID, err)
			log.Printf("Late fee assessment failed for lease %s on %s: %v",
				lease.ID.String(), runDate.Format("2006-01-02"), err)
		case fee > 0:
			report.Successful++
			report.Charged[lease.ID.String()] = fee
		default:
			report.Skipped++
		}
	}
	return report, nil
}

// assessLateFee posts the late fee for one lease if the grace period for its
// most recent due date expires on runDate and the balance is still positive.
// Returns the fee amount posted, zero when nothing was.
func (s *billingRunService) assessLateFee(ctx context.Context, lease *models.Lease, runDate time.Time, graceDays int) (int64, error) {
	if lease.LateFeeBase <= 0 {
		return 0, nil // Lease carries no late fee terms
	}

	dueDate := billing.PrevDueDate(lease.RentDueDay, runDate)
	if billing.DaysBetween(dueDate, runDate) != graceDays {
		return 0, nil // Grace period does not expire today
	}
	if lease.FirstBillingDate == nil || dueDate.Before(*lease.FirstBillingDate) {
		return 0, nil // No regular cycle has started yet
	}

	balance, err := s.ledger.Balance(ctx, lease.ID)
	if err != nil {
		return 0, err
	}
	fee := billing.ProportionalLateFee(balance, lease.MonthlyRent, lease.LateFeeBase)
	if fee <= 0 {
		return 0, nil // Paid up or in credit
	}

	err = s.ledger.AppendTransaction(ctx, &models.Transaction{
		LeaseID: lease.ID,
		Type:    models.TransactionLateFee,
		Amount:  fee,
		Description: fmt.Sprintf("Late fee for rent due %s (balance %s)",
			dueDate.Format("2006-01-02"), utils.FormatMoney(lease.CurrencyCode, balance)),
		TransactionDate: runDate,
		CycleKey:        billing.LateFeeCycleKey(dueDate),
	})
	if errors.Is(err, ErrDuplicateCycleCharge) {
		return 0, nil // Replayed run, fee already assessed
	}
	if err != nil {
		return 0, err
	}
	return fee, nil
}

func (s *billingRunService) DueSoonLeases(ctx context.Context, runDate time.Time) ([]models.Lease, error) {
	runDate = billing.Date(runDate)
	daysBefore := s.settings.GetInt(ctx, SettingReminderDaysBefore, s.cfg.ReminderDaysBefore)

	leases, err := s.ledger.ListActiveLeases(ctx)
	if err != nil {
		return nil, err
	}

	var due []models.Lease
	for i := range leases {
		lease := &leases[i]
		if lease.FirstBillingDate == nil {
			continue
		}
		next := billing.NextDueDate(lease.RentDueDay, runDate)
		if billing.DaysBetween(runDate, next) == daysBefore && !next.Before(*lease.FirstBillingDate) {
			due = append(due, *lease)
		}
	}
	return due, nil
}
