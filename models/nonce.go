package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// NonceKeyLength is the byte size of an ERC-4337 nonce key (uint192).
const NonceKeyLength = 24

// NonceKey is the client chosen upper 192 bits of an ERC-4337 nonce. The
// entry point keeps an independent 64-bit sequence for every key.
type NonceKey [NonceKeyLength]byte

// DeriveNonceKey places the validator address into the low 20 bytes of the
// key, leaving the top 4 bytes zero. Validator based accounts read the
// validator to use from the nonce key.
func DeriveNonceKey(validator common.Address) NonceKey {
	var key NonceKey
	copy(key[NonceKeyLength-common.AddressLength:], validator.Bytes())
	return key
}

// NonceKeyFromValidators derives the key from the first validator.
func NonceKeyFromValidators(validators []common.Address) (NonceKey, error) {
	if len(validators) == 0 {
		return NonceKey{}, errs.ErrValidatorNotFound
	}
	return DeriveNonceKey(validators[0]), nil
}

// Validator returns the address held in the low 160 bits of the key.
func (k NonceKey) Validator() common.Address {
	return common.BytesToAddress(k[NonceKeyLength-common.AddressLength:])
}

func (k NonceKey) Big() *big.Int {
	return new(big.Int).SetBytes(k[:])
}

func (k NonceKey) Hex() string {
	return hexutil.Encode(k[:])
}

func (k NonceKey) String() string {
	return k.Hex()
}

// ComposeNonce builds the full 256-bit nonce `key << 64 | sequence`.
func ComposeNonce(key NonceKey, sequence uint64) *big.Int {
	nonce := new(uint256.Int).SetBytes(key[:])
	nonce.Lsh(nonce, 64)
	nonce.Or(nonce, uint256.NewInt(sequence))
	return nonce.ToBig()
}

// SplitNonce is the inverse of ComposeNonce. Bits above 256 are ignored.
func SplitNonce(nonce *big.Int) (NonceKey, uint64) {
	var key NonceKey
	if nonce == nil {
		return key, 0
	}

	n, _ := uint256.FromBig(nonce)
	sequence := n.Uint64()

	k := new(uint256.Int).Rsh(n, 64)
	b := k.Bytes32()
	copy(key[:], b[32-NonceKeyLength:])
	return key, sequence
}
