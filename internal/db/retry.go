package db

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a single storage action, retried as a whole.
type Operation func() error

// IsDuplicateKeyError decides whether a failure is worth retrying.
type IsDuplicateKeyError func(err error) bool

const DefaultMaxRetries = 3

// Try runs an operation with the default retry budget, retrying only on
// Mongo duplicate key errors. Intended for inserts that regenerate their
// random ID inside the operation.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op up to maxRetries+1 times. Duplicate key errors trigger
// another attempt after a short incremental backoff; any other error returns
// immediately.
func WithRetries(op Operation, maxRetries int, isDuplicateKey IsDuplicateKeyError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		if !isDuplicateKey(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsMongoDuplicateKeyError reports whether err is a MongoDB duplicate key
// error (code 11000), in either a write or bulk write exception.
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, we := range bwe.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	return false
}

// DuplicateKeyIndexName extracts the index name from a duplicate key error
// message, or "" when err is not a duplicate key error. The ledger uses it to
// tell an _id collision (regenerate and retry) from a cycle-key collision
// (the cycle is already charged, do not retry).
func DuplicateKeyIndexName(err error) string {
	var e mongo.WriteException
	if !errors.As(err, &e) {
		return ""
	}
	for _, we := range e.WriteErrors {
		if we.Code != 11000 {
			continue
		}
		// Server message shape: "E11000 duplicate key error collection:
		// rentpay.transactions index: lease_cycle_unique dup key: ..."
		_, rest, found := strings.Cut(we.Message, " index: ")
		if !found {
			continue
		}
		name, _, _ := strings.Cut(rest, " ")
		return name
	}
	return ""
}
