package erc7579

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

var (
	targetA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	targetB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestEncodeExecutions_Single(t *testing.T) {
	batch := models.NewExecutionBatch(models.NewExecution(targetA, big.NewInt(1), []byte{0xde, 0xad, 0xbe, 0xef}))

	calldata, err := EncodeExecutions(batch)
	require.NoError(t, err)

	assert.Equal(t, crypto.Keccak256([]byte("execute(bytes32,bytes)"))[:4], calldata[:4])

	mode, executionCalldata, err := DecodeExecute(calldata)
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, mode)

	expected := hexutil.MustDecode(
		"0x1111111111111111111111111111111111111111" +
			"0000000000000000000000000000000000000000000000000000000000000001" +
			"deadbeef",
	)
	assert.Equal(t, expected, executionCalldata)

	decoded, err := DecodeSingleExecution(executionCalldata)
	require.NoError(t, err)
	assert.Equal(t, targetA, decoded.Target)
	assert.Equal(t, int64(1), decoded.Value.Int64())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, decoded.CallData)
}

func TestEncodeExecutions_SingleEmptyCallData(t *testing.T) {
	batch := models.NewExecutionBatch(models.NewExecution(targetA, nil, nil))

	calldata, err := EncodeExecutions(batch)
	require.NoError(t, err)

	_, executionCalldata, err := DecodeExecute(calldata)
	require.NoError(t, err)
	assert.Len(t, executionCalldata, 52)
}

func TestEncodeExecutions_Batch(t *testing.T) {
	first := models.NewExecution(targetA, big.NewInt(1), []byte{0x01})
	second := models.NewExecution(targetB, big.NewInt(2), nil)

	t.Run("batch mode and concatenated tuples", func(t *testing.T) {
		calldata, err := EncodeExecutions(models.NewExecutionBatch(first, second))
		require.NoError(t, err)

		mode, executionCalldata, err := DecodeExecute(calldata)
		require.NoError(t, err)
		assert.Equal(t, models.ModeBatch.Bytes32(), mode)

		encodedFirst, err := EncodeBatchExecutions([]models.Execution{first})
		require.NoError(t, err)
		encodedSecond, err := EncodeBatchExecutions([]models.Execution{second})
		require.NoError(t, err)

		assert.Equal(t, append(append([]byte{}, encodedFirst...), encodedSecond...), executionCalldata)

		// each element starts with the offset of its tuple
		assert.Equal(t, common.LeftPadBytes([]byte{0x20}, 32), encodedFirst[:32])
		// offset + three head words + length + one padded data word
		assert.Len(t, encodedFirst, 6*32)
		assert.Len(t, encodedSecond, 5*32)
	})

	t.Run("order matters", func(t *testing.T) {
		ab, err := EncodeExecutions(models.NewExecutionBatch(first, second))
		require.NoError(t, err)
		ba, err := EncodeExecutions(models.NewExecutionBatch(second, first))
		require.NoError(t, err)

		assert.NotEqual(t, ab, ba)
	})

	t.Run("decodes back in order", func(t *testing.T) {
		third := models.NewExecution(targetA, big.NewInt(0), make([]byte, 70))
		calldata, err := EncodeExecutions(models.NewExecutionBatch(first, second, third))
		require.NoError(t, err)

		batch, err := DecodeExecutions(calldata)
		require.NoError(t, err)

		executions := batch.Executions()
		require.Len(t, executions, 3)
		assert.Equal(t, targetA, executions[0].Target)
		assert.Equal(t, []byte{0x01}, executions[0].CallData)
		assert.Equal(t, targetB, executions[1].Target)
		assert.Equal(t, int64(2), executions[1].Value.Int64())
		assert.Empty(t, executions[1].CallData)
		assert.Len(t, executions[2].CallData, 70)
	})
}

func TestEncodeExecutions_Errors(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		_, err := EncodeExecutions(models.NewExecutionBatch())
		require.ErrorIs(t, err, errs.ErrEmptyBatch)
	})

	t.Run("value overflow", func(t *testing.T) {
		tooLarge := new(big.Int).Lsh(big.NewInt(1), 256)
		_, err := EncodeExecutions(models.NewExecutionBatch(models.NewExecution(targetA, tooLarge, nil)))
		require.ErrorIs(t, err, errs.ErrExecutionValueOverflow)
	})

	t.Run("not an execute call", func(t *testing.T) {
		_, _, err := DecodeExecute([]byte{0x01, 0x02, 0x03, 0x04})
		require.ErrorIs(t, err, errs.ErrInvalid)
	})

	t.Run("short single execution", func(t *testing.T) {
		_, err := DecodeSingleExecution(make([]byte, 51))
		require.ErrorIs(t, err, errs.ErrInvalid)
	})
}
