package mocks

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
	"github.com/zeroknots/lazyaccount/storage"
)

var EntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// NewUserOperationRecord returns a submitted record whose hash is derived from
// the nonce.
func NewUserOperationRecord(sender common.Address, nonce int64, at time.Time) *storage.UserOperationRecord {
	op := models.PackedUserOperation{}.
		WithSender(sender).
		WithNonce(big.NewInt(nonce)).
		WithCallData([]byte{0x01, byte(nonce)}).
		WithSignature([]byte{})
	op.CallGasLimit = big.NewInt(10_000_000)
	op.VerificationGasLimit = big.NewInt(10_000_000)
	op.PreVerificationGas = big.NewInt(10_000_000)
	op.MaxFeePerGas = big.NewInt(10_000)
	op.MaxPriorityFeePerGas = big.NewInt(10_000)

	return &storage.UserOperationRecord{
		Hash:        common.BigToHash(big.NewInt(nonce + 1)),
		EntryPoint:  EntryPoint,
		Operation:   &op,
		Status:      storage.StatusSubmitted,
		SubmittedAt: at.UTC(),
	}
}
