package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/db"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/utils"
)

// ILedgerService is the append-only ledger and everything derived from it.
// Transactions are never updated or deleted once written; balance and aging
// are recomputed from the full ledger on every read.
type ILedgerService interface {
	EnsureIndexes(ctx context.Context) error

	// AppendTransaction posts one entry to a lease's ledger. Charges require
	// an active lease; payments and adjustments are accepted for terminated
	// leases too (final settlements). When the transaction carries a cycle
	// key that the lease already has a charge for, ErrDuplicateCycleCharge is
	// returned and nothing is written.
	AppendTransaction(ctx context.Context, txn *models.Transaction) error

	// ListTransactions returns a lease's full ledger in creation order.
	ListTransactions(ctx context.Context, leaseID utils.SixID) ([]models.Transaction, error)

	// HasCycleCharge reports whether the lease already has a transaction for
	// the given cycle key.
	HasCycleCharge(ctx context.Context, leaseID utils.SixID, cycleKey string) (bool, error)

	// Balance returns the lease's current balance: opening balance plus the
	// sum of all ledger entries. Positive means the tenant owes.
	Balance(ctx context.Context, leaseID utils.SixID) (int64, error)

	// Aging buckets the lease's outstanding balance by age as of the given
	// date.
	Aging(ctx context.Context, leaseID utils.SixID, asOf time.Time) (*billing.Aging, error)

	// FindLease returns a lease by ID; mongo.ErrNoDocuments when absent or
	// deleted.
	FindLease(ctx context.Context, id utils.SixID) (*models.Lease, error)

	// ListActiveLeases returns every lease eligible for billing runs.
	ListActiveLeases(ctx context.Context) ([]models.Lease, error)
}

const (
	leasesCollection       = "leases"
	transactionsCollection = "transactions"

	// leaseCycleIndexName is the unique partial index on (lease_id,
	// cycle_key). Whichever of two racing writers loses gets a duplicate key
	// error naming this index; the ledger maps that to
	// ErrDuplicateCycleCharge instead of retrying.
	leaseCycleIndexName = "lease_cycle_unique"
)

type ledgerService struct {
	db *mongo.Database
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(database *mongo.Database) ILedgerService {
	return &ledgerService{db: database}
}

func (s *ledgerService) EnsureIndexes(ctx context.Context) error {
	txns := s.db.Collection(transactionsCollection)
	_, err := txns.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "lease_id", Value: 1}, {Key: "cycle_key", Value: 1}},
			Options: options.Index().
				SetName(leaseCycleIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"cycle_key": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "lease_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "seq", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}

	attempts := s.db.Collection(paymentAttemptsCollection)
	_, err = attempts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create payment attempt indexes: %w", err)
	}

	leases := s.db.Collection(leasesCollection)
	_, err = leases.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "deleted", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create lease indexes: %w", err)
	}
	return nil
}

func (s *ledgerService) FindLease(ctx context.Context, id utils.SixID) (*models.Lease, error) {
	var lease models.Lease
	err := s.db.Collection(leasesCollection).
		FindOne(ctx, bson.M{"_id": id, "deleted": false}).
		Decode(&lease)
	if err != nil {
		return nil, err // mongo.ErrNoDocuments passes through
	}
	return &lease, nil
}

func (s *ledgerService) ListActiveLeases(ctx context.Context) ([]models.Lease, error) {
	cursor, err := s.db.Collection(leasesCollection).Find(ctx, bson.M{
		"status":  models.LeaseStatusActive,
		"deleted": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query active leases: %w", err)
	}
	defer cursor.Close(ctx)

	var leases []models.Lease
	if err = cursor.All(ctx, &leases); err != nil {
		return nil, fmt.Errorf("failed to decode active leases: %w", err)
	}
	return leases, nil
}

// nextSeq reserves the next per-lease sequence number with an atomic
// increment on the lease document.
func (s *ledgerService) nextSeq(ctx context.Context, leaseID utils.SixID) (int64, error) {
	var lease models.Lease
	err := s.db.Collection(leasesCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": leaseID, "deleted": false},
		bson.M{"$inc": bson.M{"txn_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&lease)
	if err != nil {
		return 0, err
	}
	return lease.TxnSeq, nil
}

func (s *ledgerService) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.Amount == 0 {
		return fmt.Errorf("%w: zero-amount transaction", ErrInvalidState)
	}
	if txn.Type.IsCharge() && txn.Amount < 0 {
		return fmt.Errorf("%w: negative %s charge", ErrInvalidState, txn.Type)
	}
	if txn.Type == models.TransactionPayment && txn.Amount > 0 {
		return fmt.Errorf("%w: payment must credit the ledger", ErrInvalidState)
	}

	lease, err := s.FindLease(ctx, txn.LeaseID)
	if err != nil {
		return err
	}
	if txn.Type.IsCharge() && !lease.IsActive() {
		return fmt.Errorf("%w: cannot charge lease %s in status %s", ErrInvalidState, lease.ID.String(), lease.Status)
	}

	seq, err := s.nextSeq(ctx, txn.LeaseID)
	if err != nil {
		return fmt.Errorf("failed to reserve ledger sequence for lease %s: %w", txn.LeaseID.String(), err)
	}
	txn.Seq = seq
	txn.TransactionDate = billing.Date(txn.TransactionDate)
	txn.CreatedAt = time.Now().UTC()

	collection := s.db.Collection(transactionsCollection)
	// Retry only _id collisions; a cycle-key collision means the cycle is
	// already charged and retrying would just lose the race again.
	err = db.WithRetries(func() error {
		txn.GenID()
		_, insertErr := collection.InsertOne(ctx, txn)
		return insertErr
	}, db.DefaultMaxRetries, func(err error) bool {
		return db.DuplicateKeyIndexName(err) == "_id_"
	})
	if err != nil {
		if db.DuplicateKeyIndexName(err) == leaseCycleIndexName {
			return ErrDuplicateCycleCharge
		}
		return fmt.Errorf("failed to append transaction for lease %s: %w", txn.LeaseID.String(), err)
	}
	return nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, leaseID utils.SixID) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := s.db.Collection(transactionsCollection).Find(ctx, bson.M{"lease_id": leaseID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger for lease %s: %w", leaseID.String(), err)
	}
	defer cursor.Close(ctx)

	var txns []models.Transaction
	if err = cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode ledger for lease %s: %w", leaseID.String(), err)
	}
	return txns, nil
}

func (s *ledgerService) HasCycleCharge(ctx context.Context, leaseID utils.SixID, cycleKey string) (bool, error) {
	count, err := s.db.Collection(transactionsCollection).CountDocuments(ctx, bson.M{
		"lease_id":  leaseID,
		"cycle_key": cycleKey,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check cycle %q for lease %s: %w", cycleKey, leaseID.String(), err)
	}
	return count > 0, nil
}

func (s *ledgerService) Balance(ctx context.Context, leaseID utils.SixID) (int64, error) {
	lease, err := s.FindLease(ctx, leaseID)
	if err != nil {
		return 0, err
	}
	txns, err := s.ListTransactions(ctx, leaseID)
	if err != nil {
		return 0, err
	}
	return billing.ComputeBalance(lease.OpeningBalance, txns), nil
}

func (s *ledgerService) Aging(ctx context.Context, leaseID utils.SixID, asOf time.Time) (*billing.Aging, error) {
	lease, err := s.FindLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	txns, err := s.ListTransactions(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	aging := billing.ComputeAging(asOf, lease.OpeningBalance, txns)
	return &aging, nil
}
