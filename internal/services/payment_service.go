package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/db"
	"github.com/ugacribs/rentpay/internal/gateway"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/utils"
)

const paymentAttemptsCollection = "payment_attempts"

// IPaymentService owns the payment attempt lifecycle and its reconciliation
// with the ledger. A completed attempt maps to exactly one ledger credit no
// matter how many times the gateway reports the same outcome.
type IPaymentService interface {
	// InitiatePayment creates a pending attempt and asks the gateway to debit
	// the payer. A gateway rejection fails the attempt immediately; a timeout
	// leaves it pending for the poller to settle.
	InitiatePayment(ctx context.Context, leaseID utils.SixID, gatewayName models.PaymentGatewayName, payerHandle string, amount int64) (*models.PaymentAttempt, error)

	// HandleCallback processes a provider webhook body. Unparseable bodies
	// and unknown correlation IDs return ErrMalformedCallback; replayed
	// callbacks for settled attempts are acknowledged without effect.
	HandleCallback(ctx context.Context, gatewayName models.PaymentGatewayName, body []byte) error

	// PollPendingAttempts queries the gateway for every attempt still
	// pending after minAge and applies whatever outcome it reports. This is
	// the safety net for lost callbacks and crashes mid-completion.
	PollPendingAttempts(ctx context.Context, minAge time.Duration) (*RunReport, error)

	// FindAttempt returns an attempt by ID.
	FindAttempt(ctx context.Context, id utils.SixID) (*models.PaymentAttempt, error)

	// ListAttempts returns a lease's attempts, newest first.
	ListAttempts(ctx context.Context, leaseID utils.SixID) ([]models.PaymentAttempt, error)
}

type paymentService struct {
	db       *mongo.Database
	ledger   ILedgerService
	gateways gateway.Registry
	notifier INotificationService
}

// NewPaymentService creates a new PaymentService. The notifier may be nil;
// receipts are then simply not sent.
func NewPaymentService(database *mongo.Database, ledger ILedgerService, gateways gateway.Registry, notifier INotificationService) IPaymentService {
	return &paymentService{
		db:       database,
		ledger:   ledger,
		gateways: gateways,
		notifier: notifier,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, leaseID utils.SixID, gatewayName models.PaymentGatewayName, payerHandle string, amount int64) (*models.PaymentAttempt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidState)
	}
	if payerHandle == "" {
		return nil, fmt.Errorf("%w: payer handle is required", ErrInvalidState)
	}
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	lease, err := s.ledger.FindLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	attempt, err := db.InsertOne(ctx, s.db.Collection(paymentAttemptsCollection), &models.PaymentAttempt{
		LeaseID:       leaseID,
		Gateway:       gatewayName,
		PayerHandle:   payerHandle,
		CorrelationID: uuid.NewString(),
		Amount:        amount,
		Status:        models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment attempt: %w", err)
	}

	res, err := gw.Initiate(ctx, gateway.InitiateRequest{
		CorrelationID: attempt.CorrelationID,
		PayerHandle:   payerHandle,
		Amount:        amount,
		CurrencyCode:  lease.CurrencyCode,
		Description:   fmt.Sprintf("Rent payment for lease %s", leaseID.String()),
	})
	if err != nil {
		// The debit was never queued; settle the attempt as failed. If the
		// request actually reached the provider despite the error, the
		// poller's status query will not resurrect it, and the tenant simply
		// retries with a fresh attempt.
		return s.markFailed(ctx, attempt.ID, fmt.Sprintf("gateway initiate failed: %v", err))
	}

	_, err = s.db.Collection(paymentAttemptsCollection).UpdateOne(ctx,
		bson.M{"_id": attempt.ID},
		bson.M{"$set": bson.M{"gateway_ref": res.GatewayRef, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		log.Printf("Warning: failed to store gateway ref for attempt %s: %v", attempt.ID.String(), err)
	}
	return s.FindAttempt(ctx, attempt.ID)
}

func (s *paymentService) FindAttempt(ctx context.Context, id utils.SixID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.db.Collection(paymentAttemptsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *paymentService) findByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.db.Collection(paymentAttemptsCollection).
		FindOne(ctx, bson.M{"correlation_id": correlationID}).
		Decode(&attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *paymentService) ListAttempts(ctx context.Context, leaseID utils.SixID) ([]models.PaymentAttempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(paymentAttemptsCollection).Find(ctx, bson.M{"lease_id": leaseID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment attempts for lease %s: %w", leaseID.String(), err)
	}
	defer cursor.Close(ctx)

	var attempts []models.PaymentAttempt
	if err = cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode payment attempts for lease %s: %w", leaseID.String(), err)
	}
	return attempts, nil
}

func (s *paymentService) HandleCallback(ctx context.Context, gatewayName models.PaymentGatewayName, body []byte) error {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	correlationID, result, err := gw.ParseCallback(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	attempt, err := s.findByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: no attempt with correlation id %s", ErrMalformedCallback, correlationID)
		}
		return err
	}
	_, err = s.applyResult(ctx, attempt, result)
	return err
}

func (s *paymentService) PollPendingAttempts(ctx context.Context, minAge time.Duration) (*RunReport, error) {
	report := newRunReport(billing.Date(time.Now().UTC()))

	cutoff := time.Now().UTC().Add(-minAge)
	cursor, err := s.db.Collection(paymentAttemptsCollection).Find(ctx, bson.M{
		"status":     models.PaymentPending,
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payment attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []models.PaymentAttempt
	if err = cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode pending payment attempts: %w", err)
	}
	report.Total = len(attempts)

	for i := range attempts {
		attempt := &attempts[i]
		gw, err := s.gateways.Get(attempt.Gateway)
		if err != nil {
			report.fail(attempt.ID, err)
			continue
		}
		result, err := gw.QueryStatus(ctx, attempt.CorrelationID)
		if err != nil {
			report.fail(attempt.ID, err)
			log.Printf("Status query failed for attempt %s on %s: %v", attempt.ID.String(), attempt.Gateway, err)
			continue
		}
		settled, err := s.applyResult(ctx, attempt, result)
		switch {
		case err != nil:
			report.fail(attempt.ID, err)
		case settled:
			report.Successful++
		default:
			report.Skipped++ // Still pending at the provider
		}
	}
	return report, nil
}

// applyResult moves an attempt toward its terminal state. Order matters for
// completion: the ledger credit goes in first (its cycle key absorbs
// replays), then the status flips. A crash in between leaves a pending
// attempt whose credit already exists; the next application finds the credit
// via its cycle key and just finishes the flip.
func (s *paymentService) applyResult(ctx context.Context, attempt *models.PaymentAttempt, result *gateway.StatusResult) (bool, error) {
	// Re-read for the terminal check; the cached copy may predate a callback.
	current, err := s.FindAttempt(ctx, attempt.ID)
	if err != nil {
		return false, err
	}
	if current.IsTerminal() {
		return false, nil
	}

	switch result.Status {
	case gateway.StatusPending:
		return false, nil

	case gateway.StatusFailed:
		_, err := s.db.Collection(paymentAttemptsCollection).UpdateOne(ctx,
			bson.M{"_id": attempt.ID, "status": models.PaymentPending},
			bson.M{"$set": bson.M{
				"status":         models.PaymentFailed,
				"failure_reason": result.FailureReason,
				"updated_at":     time.Now().UTC(),
			}},
		)
		if err != nil {
			return false, fmt.Errorf("failed to mark attempt %s failed: %w", attempt.ID.String(), err)
		}
		return true, nil

	case gateway.StatusCompleted:
		txnID, err := s.creditLedger(ctx, current)
		if err != nil {
			return false, err
		}
		update := bson.M{
			"status":         models.PaymentCompleted,
			"transaction_id": txnID,
			"updated_at":     time.Now().UTC(),
		}
		if result.GatewayRef != "" {
			update["gateway_ref"] = result.GatewayRef
		}
		_, err = s.db.Collection(paymentAttemptsCollection).UpdateOne(ctx,
			bson.M{"_id": attempt.ID, "status": models.PaymentPending},
			bson.M{"$set": update},
		)
		if err != nil {
			return false, fmt.Errorf("failed to mark attempt %s completed: %w", attempt.ID.String(), err)
		}
		s.sendReceipt(ctx, current)
		return true, nil
	}
	return false, fmt.Errorf("unknown gateway status %q for attempt %s", result.Status, attempt.ID.String())
}

// creditLedger posts the payment credit for an attempt, or finds the one a
// previous half-finished completion already posted.
func (s *paymentService) creditLedger(ctx context.Context, attempt *models.PaymentAttempt) (utils.SixID, error) {
	txn := &models.Transaction{
		LeaseID:         attempt.LeaseID,
		Type:            models.TransactionPayment,
		Amount:          -attempt.Amount,
		Description:     fmt.Sprintf("Payment via %s from %s", attempt.Gateway, attempt.PayerHandle),
		TransactionDate: time.Now().UTC(),
		CycleKey:        billing.PaymentKey(attempt.ID),
	}
	err := s.ledger.AppendTransaction(ctx, txn)
	if err == nil {
		return txn.ID, nil
	}
	if !errors.Is(err, ErrDuplicateCycleCharge) {
		return utils.SixID{}, fmt.Errorf("failed to credit ledger for attempt %s: %w", attempt.ID.String(), err)
	}

	// The credit exists from an earlier pass; recover its ID.
	var existing models.Transaction
	err = s.db.Collection(transactionsCollection).FindOne(ctx, bson.M{
		"lease_id":  attempt.LeaseID,
		"cycle_key": billing.PaymentKey(attempt.ID),
	}).Decode(&existing)
	if err != nil {
		return utils.SixID{}, fmt.Errorf("failed to locate existing credit for attempt %s: %w", attempt.ID.String(), err)
	}
	return existing.ID, nil
}

// sendReceipt emails the tenant about a completed payment. Delivery problems
// are logged and swallowed; the ledger write already happened.
func (s *paymentService) sendReceipt(ctx context.Context, attempt *models.PaymentAttempt) {
	if s.notifier == nil {
		return
	}
	lease, err := s.ledger.FindLease(ctx, attempt.LeaseID)
	if err != nil {
		log.Printf("Warning: cannot load lease %s for receipt: %v", attempt.LeaseID.String(), err)
		return
	}
	if err := s.notifier.SendPaymentReceipt(ctx, lease, attempt); err != nil {
		log.Printf("Warning: failed to send receipt for attempt %s: %v", attempt.ID.String(), err)
	}
}

// markFailed settles an attempt that never reached the provider.
func (s *paymentService) markFailed(ctx context.Context, attemptID utils.SixID, reason string) (*models.PaymentAttempt, error) {
	_, err := s.db.Collection(paymentAttemptsCollection).UpdateOne(ctx,
		bson.M{"_id": attemptID, "status": models.PaymentPending},
		bson.M{"$set": bson.M{
			"status":         models.PaymentFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark attempt %s failed: %w", attemptID.String(), err)
	}
	return s.FindAttempt(ctx, attemptID)
}
