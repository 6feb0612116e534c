package pebble

import (
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// PruneBatchSize is the number of operations removed in a single batch.
const PruneBatchSize = 100

// Prune removes every operation submitted before the cutoff and returns how
// many were removed.
//
// Operations are removed oldest first, in batches of PruneBatchSize. Each batch
// deletes the record, both of its index entries and updates the count, so an
// interrupted prune leaves the journal consistent.
func (u *UserOperations) Prune(before time.Time) (int, error) {
	u.mux.Lock()
	defer u.mux.Unlock()

	u.store.log.Info().
		Time("before", before).
		Msg("starting user operation pruning")

	removed := 0
	for {
		hashes, err := u.pruneCandidates(before, PruneBatchSize)
		if err != nil {
			return removed, err
		}
		if len(hashes) == 0 {
			break
		}

		if err := u.pruneBatch(hashes); err != nil {
			return removed, fmt.Errorf("failed to prune batch of %d operations: %w", len(hashes), err)
		}
		removed += len(hashes)

		if len(hashes) < PruneBatchSize {
			break
		}
	}

	u.store.log.Info().
		Int("removed", removed).
		Msg("user operation pruning completed")

	return removed, nil
}

// pruneCandidates returns up to limit of the oldest operation hashes
// submitted before the cutoff.
func (u *UserOperations) pruneCandidates(before time.Time, limit int) ([]common.Hash, error) {
	iterator, err := u.store.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{userOpTimeKey},                          // inclusive
		UpperBound: makePrefix(userOpTimeKey, timeBytes(before)), // exclusive
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

	hashes := make([]common.Hash, 0, limit)
	for iterator.First(); iterator.Valid() && len(hashes) < limit; iterator.Next() {
		val, err := iterator.ValueAndErr()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, common.BytesToHash(val))
	}

	return hashes, nil
}

func (u *UserOperations) pruneBatch(hashes []common.Hash) error {
	batch := u.store.NewBatch()
	defer func() {
		if err := batch.Close(); err != nil {
			u.store.log.Error().Err(err).Msg("failed to close batch")
		}
	}()

	for _, hash := range hashes {
		record, err := u.get(hash)
		if err != nil {
			return fmt.Errorf("failed to load user operation %s: %w", hash, err)
		}

		at := timeBytes(record.SubmittedAt)
		keys := [][]byte{
			makePrefix(userOpHashKey, hash.Bytes()),
			makePrefix(userOpSenderKey, record.Operation.Sender.Bytes(), at, hash.Bytes()),
			makePrefix(userOpTimeKey, at, hash.Bytes()),
		}
		for _, key := range keys {
			if err := batch.Delete(key, nil); err != nil {
				return err
			}
		}
	}

	count, err := u.count()
	if err != nil {
		return err
	}
	remaining := uint64(0)
	if count > uint64(len(hashes)) {
		remaining = count - uint64(len(hashes))
	}
	if err := u.store.set(userOpCountKey, nil, uint64Bytes(remaining), batch); err != nil {
		return err
	}

	return batch.Commit(pebble.Sync)
}
