package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

func TestDeriveNonceKey(t *testing.T) {
	t.Run("address in low bytes", func(t *testing.T) {
		validator := common.HexToAddress("0x4141414141414141414141414141414141414141")
		key := DeriveNonceKey(validator)

		assert.Equal(t, []byte{0, 0, 0, 0}, key[:4])
		assert.Equal(t, validator.Bytes(), key[4:])
		assert.Equal(t, "0x000000004141414141414141414141414141414141414141", key.Hex())
		assert.Equal(t, validator, key.Validator())
	})

	t.Run("zero address", func(t *testing.T) {
		key := DeriveNonceKey(common.Address{})
		assert.Equal(t, NonceKey{}, key)
		assert.Equal(t, 0, key.Big().Sign())
	})

	t.Run("integer value equals address value", func(t *testing.T) {
		validator := common.HexToAddress("0x00000000000000000000000000000000000000ff")
		assert.Equal(t, int64(255), DeriveNonceKey(validator).Big().Int64())
	})
}

func TestNonceKeyFromValidators(t *testing.T) {
	_, err := NonceKeyFromValidators(nil)
	require.ErrorIs(t, err, errs.ErrValidatorNotFound)

	first := common.HexToAddress("0x1111111111111111111111111111111111111111")
	second := common.HexToAddress("0x2222222222222222222222222222222222222222")

	key, err := NonceKeyFromValidators([]common.Address{first, second})
	require.NoError(t, err)
	assert.Equal(t, first, key.Validator())
}

func TestComposeNonce(t *testing.T) {
	t.Run("sequence in low 64 bits", func(t *testing.T) {
		validator := common.HexToAddress("0x4141414141414141414141414141414141414141")
		key := DeriveNonceKey(validator)

		nonce := ComposeNonce(key, 7)

		expected := new(big.Int).Lsh(key.Big(), 64)
		expected.Or(expected, big.NewInt(7))
		assert.Equal(t, 0, expected.Cmp(nonce))
	})

	t.Run("split is the inverse", func(t *testing.T) {
		key := DeriveNonceKey(common.HexToAddress("0x7579f9feedf32331c645828139aff78d517d0001"))

		splitKey, seq := SplitNonce(ComposeNonce(key, 1<<63+5))
		assert.Equal(t, key, splitKey)
		assert.Equal(t, uint64(1<<63+5), seq)
	})

	t.Run("nil nonce", func(t *testing.T) {
		key, seq := SplitNonce(nil)
		assert.Equal(t, NonceKey{}, key)
		assert.Zero(t, seq)
	})
}
