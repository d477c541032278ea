package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/models"
)

// InsertOne inserts a document, generating a fresh ID for it. On a duplicate
// key error the ID is regenerated and the insert retried, so an _id collision
// never surfaces to the caller. Collisions on any other unique index also get
// retried and will exhaust the retries; callers that rely on such indexes
// (the ledger's cycle-key index) do their own inserts instead.
func InsertOne[T models.IBase](ctx context.Context, coll *mongo.Collection, doc T) (T, error) {
	err := Try(func() error {
		doc.GenID()
		_, insertErr := coll.InsertOne(ctx, doc)
		return insertErr
	})
	return doc, err
}
