package pebble

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroknots/lazyaccount/storage/mocks"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func runDB(name string, t *testing.T, f func(t *testing.T, db *Storage)) {
	dir := t.TempDir()

	db, err := New(dir, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	t.Run(name, func(t *testing.T) {
		f(t, db)
	})
}

func TestUserOperations_Batch(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	runDB("store in batch", t, func(t *testing.T, db *Storage) {
		ops := NewUserOperations(db)
		record := mocks.NewUserOperationRecord(alice, 0, start)

		err := WithBatch(db, func(batch *pebble.Batch) error {
			return ops.Store(record, batch)
		})
		require.NoError(t, err)

		_, err = ops.Get(record.Hash)
		require.NoError(t, err)

		count, err := ops.Count()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)
	})

	runDB("failed batch is not committed", t, func(t *testing.T, db *Storage) {
		ops := NewUserOperations(db)
		record := mocks.NewUserOperationRecord(alice, 0, start)

		err := WithBatch(db, func(batch *pebble.Batch) error {
			if err := ops.Store(record, batch); err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		count, err := ops.Count()
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestUserOperations_Prune(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	runDB("prune across batches", t, func(t *testing.T, db *Storage) {
		ops := NewUserOperations(db)

		total := PruneBatchSize*2 + 5
		for i := 0; i < total; i++ {
			record := mocks.NewUserOperationRecord(alice, int64(i), start.Add(time.Duration(i)*time.Second))
			require.NoError(t, ops.Store(record, nil))
		}

		// keep the last 5
		cutoff := start.Add(time.Duration(PruneBatchSize*2) * time.Second)
		removed, err := ops.Prune(cutoff)
		require.NoError(t, err)
		assert.Equal(t, PruneBatchSize*2, removed)

		count, err := ops.Count()
		require.NoError(t, err)
		assert.Equal(t, uint64(5), count)

		remaining, err := ops.List(&alice, 0)
		require.NoError(t, err)
		require.Len(t, remaining, 5)
		assert.True(t, remaining[4].SubmittedAt.Equal(cutoff))
	})

	runDB("nothing to prune", t, func(t *testing.T, db *Storage) {
		ops := NewUserOperations(db)
		require.NoError(t, ops.Store(mocks.NewUserOperationRecord(alice, 0, start), nil))

		removed, err := ops.Prune(start)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

func TestIncrementBytes(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x01}, incrementBytes([]byte{0x01, 0x00}))
	assert.Equal(t, []byte{0x02, 0x00}, incrementBytes([]byte{0x01, 0xff}))
	assert.Nil(t, incrementBytes([]byte{0xff, 0xff}))
}

func TestTimeBytes(t *testing.T) {
	earlier := timeBytes(time.Unix(1, 0))
	later := timeBytes(time.Unix(2, 0))
	assert.Len(t, earlier, 8)
	assert.Equal(t, -1, bytes.Compare(earlier, later))
}

