package db

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/utils"
)

// duplicateKeyError builds an error IsMongoDuplicateKeyError recognizes, with
// the server's message shape so index-name extraction can be exercised too.
func duplicateKeyError(index, key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: rentpay.test index: %s dup key: { : \"%s\" }", index, key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	err := WithRetries(func() error {
		opCalled++
		return nil
	}, 3, IsMongoDuplicateKeyError)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	err := WithRetries(func() error {
		opCalled++
		return expectedErr
	}, 3, IsMongoDuplicateKeyError)

	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return duplicateKeyError("_id_", "000001")
	}

	maxRetries := 3
	err := WithRetries(operation, maxRetries, IsMongoDuplicateKeyError)

	if err == nil {
		t.Fatal("Expected a duplicate key error, got nil")
	}
	if !IsMongoDuplicateKeyError(err) {
		t.Errorf("Expected a Mongo duplicate key error, got %T: %v", err, err)
	}
	if opCalled != maxRetries+1 {
		t.Errorf("Expected operation to be called %d times, got %d", maxRetries+1, opCalled)
	}
}

func TestWithRetries_CollisionResolves(t *testing.T) {
	originalHook := utils.NewSixIDHook
	defer func() { utils.NewSixIDHook = originalHook }()

	id1 := utils.SixID{1, 2, 3, 4, 5, 1}
	id2 := utils.SixID{1, 2, 3, 4, 5, 2}

	// NewSixID() hands out id1 twice (both collide), then id2.
	idsToReturn := []utils.SixID{id1, id1, id2}
	hookCallCount := 0
	utils.NewSixIDHook = func() (utils.SixID, bool) {
		if hookCallCount < len(idsToReturn) {
			id := idsToReturn[hookCallCount]
			hookCallCount++
			return id, true
		}
		return utils.SixID{}, false
	}

	inserted := map[utils.SixID]bool{id1: true}

	var opCalled int
	operation := func() error {
		opCalled++
		newID := utils.NewSixID()
		if inserted[newID] {
			return duplicateKeyError("_id_", newID.String())
		}
		inserted[newID] = true
		return nil
	}

	if err := WithRetries(operation, 3, IsMongoDuplicateKeyError); err != nil {
		t.Fatalf("Expected collision to resolve, got: %v", err)
	}
	if opCalled != 3 {
		t.Errorf("Expected operation to be called 3 times, got %d", opCalled)
	}
	if !inserted[id2] {
		t.Errorf("Expected ID %s to be inserted after retry", id2.String())
	}
}

func TestDuplicateKeyIndexName(t *testing.T) {
	if name := DuplicateKeyIndexName(duplicateKeyError("lease_cycle_unique", "rent:2025-06-15")); name != "lease_cycle_unique" {
		t.Errorf("Expected index name lease_cycle_unique, got %q", name)
	}
	if name := DuplicateKeyIndexName(duplicateKeyError("_id_", "000001")); name != "_id_" {
		t.Errorf("Expected index name _id_, got %q", name)
	}
	if name := DuplicateKeyIndexName(errors.New("not a mongo error")); name != "" {
		t.Errorf("Expected empty index name, got %q", name)
	}
}
