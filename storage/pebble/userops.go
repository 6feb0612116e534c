package pebble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"

	"github.com/zeroknots/lazyaccount/storage"
	errs "github.com/zeroknots/lazyaccount/storage/errors"
)

var _ storage.UserOperationIndexer = &UserOperations{}

type UserOperations struct {
	store *Storage
	mux   sync.RWMutex
}

func NewUserOperations(store *Storage) *UserOperations {
	return &UserOperations{
		store: store,
		mux:   sync.RWMutex{},
	}
}

// Store a user operation record in the journal.
//
// Storing a record creates the following mappings:
// - operation hash => encoded record
// - sender + submission time + operation hash => operation hash
// - submission time + operation hash => operation hash
func (u *UserOperations) Store(record *storage.UserOperationRecord, batch *pebble.Batch) error {
	u.mux.Lock()
	defer u.mux.Unlock()

	if record.Operation == nil {
		return fmt.Errorf("user operation record %s has no operation", record.Hash)
	}

	_, err := u.store.get(userOpHashKey, record.Hash.Bytes())
	if err == nil {
		return fmt.Errorf("user operation %s: %w", record.Hash, errs.ErrDuplicate)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	val, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode user operation record: %w", err)
	}

	hash := record.Hash.Bytes()
	at := timeBytes(record.SubmittedAt)

	if err := u.store.set(userOpHashKey, hash, val, batch); err != nil {
		return fmt.Errorf("failed to store user operation: %w", err)
	}

	senderKey := append(append(record.Operation.Sender.Bytes(), at...), hash...)
	if err := u.store.set(userOpSenderKey, senderKey, hash, batch); err != nil {
		return fmt.Errorf("failed to store user operation sender index: %w", err)
	}

	if err := u.store.set(userOpTimeKey, append(at, hash...), hash, batch); err != nil {
		return fmt.Errorf("failed to store user operation time index: %w", err)
	}

	count, err := u.count()
	if err != nil {
		return err
	}

	return u.store.set(userOpCountKey, nil, uint64Bytes(count+1), batch)
}

func (u *UserOperations) Get(hash common.Hash) (*storage.UserOperationRecord, error) {
	u.mux.RLock()
	defer u.mux.RUnlock()

	return u.get(hash)
}

func (u *UserOperations) UpdateStatus(
	hash common.Hash,
	status storage.UserOperationStatus,
	txHash *common.Hash,
	reason string,
) error {
	u.mux.Lock()
	defer u.mux.Unlock()

	record, err := u.get(hash)
	if err != nil {
		return err
	}

	record.Status = status
	record.TransactionHash = txHash
	record.Reason = reason

	val, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode user operation record: %w", err)
	}

	return u.store.set(userOpHashKey, hash.Bytes(), val, nil)
}

func (u *UserOperations) List(sender *common.Address, limit int) ([]*storage.UserOperationRecord, error) {
	u.mux.RLock()
	defer u.mux.RUnlock()

	lower := []byte{userOpTimeKey}
	upper := []byte{userOpTimeKey + 1}
	if sender != nil {
		lower = makePrefix(userOpSenderKey, sender.Bytes())
		upper = []byte{userOpSenderKey + 1}
		if next := incrementBytes(sender.Bytes()); next != nil {
			upper = makePrefix(userOpSenderKey, next)
		}
	}

	iterator, err := u.store.db.NewIter(&pebble.IterOptions{
		LowerBound: lower, // inclusive
		UpperBound: upper, // exclusive
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		err := iterator.Close()
		if err != nil {
			u.store.log.Error().Err(err).Msg("failed to close user operation iterator")
		}
	}()

	records := make([]*storage.UserOperationRecord, 0)

	// newest first
	for iterator.Last(); iterator.Valid(); iterator.Prev() {
		if limit > 0 && len(records) >= limit {
			break
		}

		val, err := iterator.ValueAndErr()
		if err != nil {
			return nil, err
		}

		record, err := u.get(common.BytesToHash(val))
		if err != nil {
			return nil, fmt.Errorf("failed to load user operation %x: %w", val, err)
		}
		records = append(records, record)
	}

	return records, nil
}

func (u *UserOperations) Count() (uint64, error) {
	u.mux.RLock()
	defer u.mux.RUnlock()

	return u.count()
}

func (u *UserOperations) count() (uint64, error) {
	val, err := u.store.get(userOpCountKey)
	if errors.Is(err, errs.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed getting user operation count: %w", err)
	}

	return binary.BigEndian.Uint64(val), nil
}

func (u *UserOperations) get(hash common.Hash) (*storage.UserOperationRecord, error) {
	val, err := u.store.get(userOpHashKey, hash.Bytes())
	if err != nil {
		return nil, err
	}

	var record storage.UserOperationRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, fmt.Errorf("failed to decode user operation record: %w", err)
	}

	return &record, nil
}

// incrementBytes returns the smallest key greater than every key prefixed by b,
// or nil when b is all 0xff.
func incrementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out
		}
	}
	return nil
}
