package storage

import (
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
)

type UserOperationStatus string

const (
	// StatusSubmitted means the bundler accepted the operation.
	StatusSubmitted UserOperationStatus = "submitted"
	// StatusIncluded means a receipt was observed and the operation succeeded.
	StatusIncluded UserOperationStatus = "included"
	// StatusReverted means a receipt was observed but execution reverted.
	StatusReverted UserOperationStatus = "reverted"
)

// UserOperationRecord is a journal entry for an operation sent to a bundler.
type UserOperationRecord struct {
	Hash            common.Hash                 `json:"hash"`
	EntryPoint      common.Address              `json:"entryPoint"`
	Operation       *models.PackedUserOperation `json:"operation"`
	Status          UserOperationStatus         `json:"status"`
	SubmittedAt     time.Time                   `json:"submittedAt"`
	TransactionHash *common.Hash                `json:"transactionHash,omitempty"`
	Reason          string                      `json:"reason,omitempty"`
}

type UserOperationIndexer interface {
	// Store a newly submitted operation.
	// Batch is required to batch multiple indexer operations, skipped if nil.
	// Expected errors:
	// - errors.ErrDuplicate if an operation with the same hash already exists
	Store(record *UserOperationRecord, batch *pebble.Batch) error

	// Get an operation by its hash.
	// Expected errors:
	// - errors.ErrNotFound if the operation is not journaled
	Get(hash common.Hash) (*UserOperationRecord, error)

	// UpdateStatus records the outcome of an operation once a receipt is known.
	// Expected errors:
	// - errors.ErrNotFound if the operation is not journaled
	UpdateStatus(hash common.Hash, status UserOperationStatus, txHash *common.Hash, reason string) error

	// List returns the most recent operations first, optionally filtered by
	// sender. A limit of 0 returns everything.
	List(sender *common.Address, limit int) ([]*UserOperationRecord, error)

	// Count returns the number of journaled operations.
	Count() (uint64, error)

	// Prune removes the operations submitted before the cutoff and returns
	// how many were removed.
	Prune(before time.Time) (int, error)
}
