package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/zeroknots/lazyaccount/storage/errors"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
)

// UserOperationTestSuite checks the behaviour every UserOperationIndexer must
// have. NewRecord builds the fixtures, and Start is the submission time of the
// first fixture.
type UserOperationTestSuite struct {
	suite.Suite
	UserOperations UserOperationIndexer
	NewRecord      func(sender common.Address, nonce int64, at time.Time) *UserOperationRecord
	Start          time.Time
}

func (s *UserOperationTestSuite) TestGet() {
	s.Run("existing operation", func() {
		record := s.NewRecord(alice, 100, s.Start)
		s.Require().NoError(s.UserOperations.Store(record, nil))

		got, err := s.UserOperations.Get(record.Hash)
		s.Require().NoError(err)
		s.Require().Equal(record.Hash, got.Hash)
		s.Require().Equal(record.EntryPoint, got.EntryPoint)
		s.Require().Equal(StatusSubmitted, got.Status)
		s.Require().True(record.SubmittedAt.Equal(got.SubmittedAt))
		s.Require().True(record.Operation.Equal(*got.Operation))
	})

	s.Run("non-existing operation", func() {
		got, err := s.UserOperations.Get(common.HexToHash("0xdead"))
		s.Require().Nil(got)
		s.Require().ErrorIs(err, errors.ErrNotFound)
	})
}

func (s *UserOperationTestSuite) TestStore() {
	s.Run("duplicate operation", func() {
		record := s.NewRecord(alice, 200, s.Start)
		s.Require().NoError(s.UserOperations.Store(record, nil))
		s.Require().ErrorIs(s.UserOperations.Store(record, nil), errors.ErrDuplicate)
	})

	s.Run("operation is required", func() {
		record := s.NewRecord(alice, 201, s.Start)
		record.Operation = nil
		s.Require().Error(s.UserOperations.Store(record, nil))
	})
}

func (s *UserOperationTestSuite) TestUpdateStatus() {
	s.Run("included", func() {
		record := s.NewRecord(alice, 300, s.Start)
		s.Require().NoError(s.UserOperations.Store(record, nil))

		txHash := common.HexToHash("0xabcdef")
		err := s.UserOperations.UpdateStatus(record.Hash, StatusReverted, &txHash, "execution reverted")
		s.Require().NoError(err)

		got, err := s.UserOperations.Get(record.Hash)
		s.Require().NoError(err)
		s.Require().Equal(StatusReverted, got.Status)
		s.Require().NotNil(got.TransactionHash)
		s.Require().Equal(txHash, *got.TransactionHash)
		s.Require().Equal("execution reverted", got.Reason)
	})

	s.Run("non-existing operation", func() {
		err := s.UserOperations.UpdateStatus(common.HexToHash("0xdead"), StatusIncluded, nil, "")
		s.Require().ErrorIs(err, errors.ErrNotFound)
	})
}

func (s *UserOperationTestSuite) TestList() {
	// later than every fixture of the other tests so they come first
	at := s.Start.Add(time.Hour)
	records := []*UserOperationRecord{
		s.NewRecord(alice, 400, at),
		s.NewRecord(bob, 401, at.Add(time.Second)),
		s.NewRecord(alice, 402, at.Add(2*time.Second)),
	}
	for _, r := range records {
		s.Require().NoError(s.UserOperations.Store(r, nil))
	}

	s.Run("newest first", func() {
		latest, err := s.UserOperations.List(nil, 3)
		s.Require().NoError(err)
		s.Require().Len(latest, 3)
		s.Require().Equal(records[2].Hash, latest[0].Hash)
		s.Require().Equal(records[1].Hash, latest[1].Hash)
		s.Require().Equal(records[0].Hash, latest[2].Hash)
	})

	s.Run("by sender", func() {
		fromBob, err := s.UserOperations.List(&bob, 0)
		s.Require().NoError(err)
		s.Require().Len(fromBob, 1)
		s.Require().Equal(records[1].Hash, fromBob[0].Hash)

		fromAlice, err := s.UserOperations.List(&alice, 2)
		s.Require().NoError(err)
		s.Require().Len(fromAlice, 2)
		s.Require().Equal(records[2].Hash, fromAlice[0].Hash)
		s.Require().Equal(records[0].Hash, fromAlice[1].Hash)
	})

	s.Run("unknown sender", func() {
		none, err := s.UserOperations.List(&common.Address{0x01}, 0)
		s.Require().NoError(err)
		s.Require().Empty(none)
	})
}

func (s *UserOperationTestSuite) TestPrune() {
	// earlier than every fixture of the other tests
	at := s.Start.Add(-time.Hour)
	old := s.NewRecord(bob, 500, at)
	kept := s.NewRecord(bob, 501, at.Add(time.Minute))
	s.Require().NoError(s.UserOperations.Store(old, nil))
	s.Require().NoError(s.UserOperations.Store(kept, nil))

	before, err := s.UserOperations.Count()
	s.Require().NoError(err)

	removed, err := s.UserOperations.Prune(at.Add(time.Second))
	s.Require().NoError(err)
	s.Require().Equal(1, removed)

	after, err := s.UserOperations.Count()
	s.Require().NoError(err)
	s.Require().Equal(before-1, after)

	_, err = s.UserOperations.Get(old.Hash)
	s.Require().ErrorIs(err, errors.ErrNotFound)

	_, err = s.UserOperations.Get(kept.Hash)
	s.Require().NoError(err)

	fromBob, err := s.UserOperations.List(&bob, 0)
	s.Require().NoError(err)
	for _, r := range fromBob {
		s.Require().NotEqual(old.Hash, r.Hash)
	}
}
