package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/db"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/utils"
)

// CreateLeaseParams carries the tenancy terms frozen at creation time.
type CreateLeaseParams struct {
	TenantID       utils.SixID
	UnitID         utils.SixID
	TenantEmail    string
	CurrencyCode   string
	MonthlyRent    int64
	LateFeeBase    int64
	RentDueDay     int
	OpeningBalance int64
}

// ILeaseService manages the lease lifecycle: pending on creation, active from
// signing, terminated at move-out. Signing is the only transition with side
// effects on the ledger (the prorated first-month charge).
type ILeaseService interface {
	CreateLease(ctx context.Context, params CreateLeaseParams) (*models.Lease, error)

	// SignLease activates a pending lease as of signedAt: it stamps the
	// billing anchors (first billing date, signing date) and posts the
	// prorated charge for the days between signing and the first due date.
	// Re-invoking after a mid-sign crash completes whatever step was left
	// undone; invoking on a fully signed or terminated lease returns
	// ErrInvalidState.
	SignLease(ctx context.Context, leaseID utils.SixID, signedAt time.Time) (*models.Lease, error)

	// TerminateLease ends an active or pending lease. The ledger survives;
	// only payments and adjustments may be posted afterwards.
	TerminateLease(ctx context.Context, leaseID utils.SixID, at time.Time) (*models.Lease, error)

	// PostAdjustment appends a manual correction to the ledger. Positive
	// amounts charge the tenant, negative ones credit them.
	PostAdjustment(ctx context.Context, leaseID utils.SixID, amount int64, description string) (*models.Transaction, error)

	// DeleteLeasePermanently removes a terminated lease together with its
	// transactions and payment attempts. This is the single exception to the
	// append-only ledger rule.
	DeleteLeasePermanently(ctx context.Context, leaseID utils.SixID) error
}

type leaseService struct {
	db     *mongo.Database
	ledger ILedgerService
}

// NewLeaseService creates a new LeaseService.
func NewLeaseService(database *mongo.Database, ledger ILedgerService) ILeaseService {
	return &leaseService{db: database, ledger: ledger}
}

func (s *leaseService) CreateLease(ctx context.Context, params CreateLeaseParams) (*models.Lease, error) {
	if params.MonthlyRent <= 0 {
		return nil, fmt.Errorf("%w: monthly rent must be positive", ErrInvalidState)
	}
	if params.LateFeeBase < 0 {
		return nil, fmt.Errorf("%w: late fee base cannot be negative", ErrInvalidState)
	}
	if params.RentDueDay < 1 || params.RentDueDay > 31 {
		return nil, fmt.Errorf("%w: rent due day must be within 1..31", ErrInvalidState)
	}
	if params.CurrencyCode == "" {
		return nil, fmt.Errorf("%w: currency code is required", ErrInvalidState)
	}

	now := time.Now().UTC()
	lease, err := db.InsertOne(ctx, s.db.Collection(leasesCollection), &models.Lease{
		TenantID:       params.TenantID,
		UnitID:         params.UnitID,
		TenantEmail:    params.TenantEmail,
		CurrencyCode:   params.CurrencyCode,
		MonthlyRent:    params.MonthlyRent,
		LateFeeBase:    params.LateFeeBase,
		RentDueDay:     params.RentDueDay,
		OpeningBalance: params.OpeningBalance,
		Status:         models.LeaseStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lease: %w", err)
	}
	return lease, nil
}

func (s *leaseService) SignLease(ctx context.Context, leaseID utils.SixID, signedAt time.Time) (*models.Lease, error) {
	lease, err := s.ledger.FindLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	switch lease.Status {
	case models.LeaseStatusTerminated:
		return nil, fmt.Errorf("%w: lease %s is terminated", ErrInvalidState, leaseID.String())
	case models.LeaseStatusActive:
		if lease.ProratedRentCharged {
			return nil, fmt.Errorf("%w: lease %s is already signed", ErrInvalidState, leaseID.String())
		}
		// A previous signing crashed between activation and the prorated
		// charge. Resume from the stored anchors.
		if lease.SignedAt != nil {
			signedAt = *lease.SignedAt
		}
	case models.LeaseStatusPending:
		signed := billing.Date(signedAt)
		firstDue := billing.FirstBillingDate(lease.RentDueDay, signed)
		now := time.Now().UTC()

		res, err := s.db.Collection(leasesCollection).UpdateOne(ctx,
			bson.M{"_id": leaseID, "status": models.LeaseStatusPending, "deleted": false},
			bson.M{"$set": bson.M{
				"status":             models.LeaseStatusActive,
				"signed_at":          signed,
				"first_billing_date": firstDue,
				"updated_at":         now,
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to activate lease %s: %w", leaseID.String(), err)
		}
		if res.MatchedCount == 0 {
			// Lost a race with a concurrent transition; report the conflict.
			return nil, fmt.Errorf("%w: lease %s changed state concurrently", ErrInvalidState, leaseID.String())
		}
		signedAt = signed
	}

	// Post the prorated fragment. The cycle key makes a replay (including the
	// crash-resume path above) land on ErrDuplicateCycleCharge, which is the
	// desired outcome here.
	prorated := billing.ProratedRent(lease.MonthlyRent, lease.RentDueDay, signedAt)
	if prorated.Amount > 0 {
		err = s.ledger.AppendTransaction(ctx, &models.Transaction{
			LeaseID: leaseID,
			Type:    models.TransactionProratedRent,
			Amount:  prorated.Amount,
			Description: fmt.Sprintf("Prorated rent %s to %s (%d of %d days)",
				prorated.PeriodStart.Format("2006-01-02"), prorated.PeriodEnd.Format("2006-01-02"),
				prorated.Days, prorated.PeriodDays),
			TransactionDate: prorated.PeriodStart,
			CycleKey:        billing.ProrationKey(leaseID),
		})
		if err != nil && !errors.Is(err, ErrDuplicateCycleCharge) {
			return nil, fmt.Errorf("failed to post prorated rent for lease %s: %w", leaseID.String(), err)
		}
	}

	_, err = s.db.Collection(leasesCollection).UpdateOne(ctx,
		bson.M{"_id": leaseID},
		bson.M{"$set": bson.M{"prorated_rent_charged": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		// The charge is in; the flag will be set on the next resume.
		log.Printf("Warning: failed to flag prorated rent charged for lease %s: %v", leaseID.String(), err)
	}

	return s.ledger.FindLease(ctx, leaseID)
}

func (s *leaseService) TerminateLease(ctx context.Context, leaseID utils.SixID, at time.Time) (*models.Lease, error) {
	res, err := s.db.Collection(leasesCollection).UpdateOne(ctx,
		bson.M{
			"_id":     leaseID,
			"deleted": false,
			"status":  bson.M{"$in": []models.LeaseStatus{models.LeaseStatusPending, models.LeaseStatusActive}},
		},
		bson.M{"$set": bson.M{
			"status":        models.LeaseStatusTerminated,
			"terminated_at": at.UTC(),
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to terminate lease %s: %w", leaseID.String(), err)
	}
	if res.MatchedCount == 0 {
		// Either absent or already terminated; distinguish for the caller.
		if _, findErr := s.ledger.FindLease(ctx, leaseID); findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("%w: lease %s is already terminated", ErrInvalidState, leaseID.String())
	}
	return s.ledger.FindLease(ctx, leaseID)
}

func (s *leaseService) PostAdjustment(ctx context.Context, leaseID utils.SixID, amount int64, description string) (*models.Transaction, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: adjustment requires a description", ErrInvalidState)
	}
	txn := &models.Transaction{
		LeaseID:         leaseID,
		Type:            models.TransactionAdjustment,
		Amount:          amount,
		Description:     description,
		TransactionDate: time.Now().UTC(),
	}
	if err := s.ledger.AppendTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *leaseService) DeleteLeasePermanently(ctx context.Context, leaseID utils.SixID) error {
	lease, err := s.ledger.FindLease(ctx, leaseID)
	if err != nil {
		return err
	}
	if lease.Status != models.LeaseStatusTerminated {
		return fmt.Errorf("%w: only terminated leases can be deleted", ErrInvalidState)
	}

	if _, err := s.db.Collection(transactionsCollection).DeleteMany(ctx, bson.M{"lease_id": leaseID}); err != nil {
		return fmt.Errorf("failed to delete transactions for lease %s: %w", leaseID.String(), err)
	}
	if _, err := s.db.Collection(paymentAttemptsCollection).DeleteMany(ctx, bson.M{"lease_id": leaseID}); err != nil {
		return fmt.Errorf("failed to delete payment attempts for lease %s: %w", leaseID.String(), err)
	}
	if _, err := s.db.Collection(leasesCollection).DeleteOne(ctx, bson.M{"_id": leaseID}); err != nil {
		return fmt.Errorf("failed to delete lease %s: %w", leaseID.String(), err)
	}
	return nil
}
