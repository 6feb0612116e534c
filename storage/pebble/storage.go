package pebble

import (
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	errs "github.com/zeroknots/lazyaccount/storage/errors"
)

type Storage struct {
	db  *pebble.DB
	log zerolog.Logger
}

// New creates a new storage instance using the provided dir location as the storage directory.
func New(dir string, log zerolog.Logger) (*Storage, error) {
	db, err := OpenDB(dir)
	if err != nil {
		return nil, err
	}

	return &Storage{
		db:  db,
		log: log.With().Str("component", "storage").Logger(),
	}, nil
}

// set key value pair identified by the key code (which act as an entity identifier).
//
// Optional batch argument makes the operation atomic, but it's up to the caller to
// commit the batch or revert it.
func (s *Storage) set(keyCode byte, key []byte, value []byte, batch *pebble.Batch) error {
	prefixedKey := makePrefix(keyCode, key)

	if batch != nil {
		return batch.Set(prefixedKey, value, nil)
	}

	return s.db.Set(prefixedKey, value, pebble.Sync)
}

func (s *Storage) get(keyCode byte, key ...[]byte) ([]byte, error) {
	prefixedKey := makePrefix(keyCode, key...)

	data, closer, err := s.db.Get(prefixedKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	defer func(closer io.Closer) {
		err = closer.Close()
		if err != nil {
			s.log.Error().Err(err).Msg("failed to close storage reader")
		}
	}(closer)

	// data is only valid until the closer is closed
	value := make([]byte, len(data))
	copy(value, data)

	return value, nil
}

func (s *Storage) NewBatch() *pebble.Batch {
	return s.db.NewBatch()
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
