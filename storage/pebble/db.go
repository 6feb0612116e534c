package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/hashicorp/go-multierror"
)

const (
	cacheSize    = 8 << 20
	memTableSize = 4 << 20
	blockSize    = 16 << 10
)

// OpenDB opens the journal database in dir, creating it when missing. The
// journal holds at most a few records per submitted operation, so the tree
// is kept small: a single level configuration reused for every level.
func OpenDB(dir string) (*pebble.DB, error) {
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:              cache,
		FormatMajorVersion: pebble.FormatNewest,
		MemTableSize:       memTableSize,
		MaxOpenFiles:       256,
		Levels: []pebble.LevelOptions{{
			BlockSize: blockSize,
			// operations are read back by hash
			FilterPolicy: bloom.FilterPolicy(10),
			FilterType:   pebble.TableFilter,
		}},
	}
	opts.EnsureDefaults()

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database in %s: %w", dir, err)
	}
	return db, nil
}

// WithBatch runs f against a new batch and commits it durably when f
// succeeds. A failing batch close is reported together with any other error.
func WithBatch(store *Storage, f func(batch *pebble.Batch) error) (err error) {
	batch := store.NewBatch()
	defer func() {
		if closeErr := batch.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close batch: %w", closeErr))
		}
	}()

	if err := f(batch); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
