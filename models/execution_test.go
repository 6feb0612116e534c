package models

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

func TestExecutionBatch_Mode(t *testing.T) {
	target := common.HexToAddress("0x1111111111111111111111111111111111111111")

	tests := []struct {
		name  string
		batch ExecutionBatch
		mode  ExecutionMode
		err   error
	}{
		{name: "empty", batch: NewExecutionBatch(), err: errs.ErrEmptyBatch},
		{name: "single", batch: NewExecutionBatch(NewExecution(target, nil, nil)), mode: ModeSingle},
		{
			name:  "batch",
			batch: NewExecutionBatch(NewExecution(target, nil, nil), NewExecution(target, big.NewInt(1), nil)),
			mode:  ModeBatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.batch.Mode()
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, mode)
		})
	}
}

func TestExecutionBatch_Append(t *testing.T) {
	target := common.HexToAddress("0x1111111111111111111111111111111111111111")

	b1 := NewExecutionBatch(NewExecution(target, big.NewInt(1), nil))
	b2 := b1.Append(NewExecution(target, big.NewInt(2), nil))

	assert.Equal(t, 1, b1.Len())
	assert.Equal(t, 2, b2.Len())
	assert.Equal(t, int64(1), b2.Executions()[0].Value.Int64())
	assert.Equal(t, int64(2), b2.Executions()[1].Value.Int64())
}

func TestExecutionMode_Bytes32(t *testing.T) {
	assert.Equal(t, [32]byte{}, ModeSingle.Bytes32())

	batch := ModeBatch.Bytes32()
	assert.Equal(t, byte(0x01), batch[0])
	assert.Equal(t, make([]byte, 31), batch[1:])
}

func TestParseValue(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	tests := []struct {
		in    string
		value *big.Int
		err   error
	}{
		{in: "", value: big.NewInt(0)},
		{in: "1000", value: big.NewInt(1000)},
		{in: "0x10", value: big.NewInt(16)},
		{in: max.String(), value: max},
		{in: new(big.Int).Add(max, big.NewInt(1)).String(), err: errs.ErrExecutionValueOverflow},
		{in: "-1", err: errs.ErrInvalid},
		{in: "abc", err: errs.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseValue(tt.in)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tt.value.Cmp(v))
		})
	}
}

func TestParseExecutions(t *testing.T) {
	t.Run("keeps file order", func(t *testing.T) {
		data := []byte(`
entrypoint: "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
executions:
  - target: "0x1111111111111111111111111111111111111111"
    value: "1"
    callData: "0xdeadbeef"
  - target: "0x2222222222222222222222222222222222222222"
    value: "0x2"
`)
		batch, entryPoint, err := ParseExecutions(data)
		require.NoError(t, err)
		require.NotNil(t, entryPoint)
		assert.Equal(t, common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"), *entryPoint)

		executions := batch.Executions()
		require.Len(t, executions, 2)
		assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), executions[0].Target)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, executions[0].CallData)
		assert.Equal(t, int64(2), executions[1].Value.Int64())
		assert.Empty(t, executions[1].CallData)
	})

	t.Run("invalid call data", func(t *testing.T) {
		data := []byte(`
executions:
  - target: "0x1111111111111111111111111111111111111111"
    callData: "zz"
`)
		_, _, err := ParseExecutions(data)
		require.ErrorIs(t, err, errs.ErrInvalid)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "executions.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
executions:
  - target: "0x1111111111111111111111111111111111111111"
`), 0o600))

		batch, entryPoint, err := LoadExecutionsFile(path)
		require.NoError(t, err)
		assert.Nil(t, entryPoint)
		assert.Equal(t, 1, batch.Len())
	})
}

func TestLoadAccountInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
salt: "0x4141414141414141414141414141414141414141414141414141414141414141"
owners:
  - "0x4141414141414141414141414141414141414141"
validators:
  - "0x4141414141414141414141414141414141414141"
`), 0o600))

	params, err := LoadAccountInitFile(path)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x4141414141414141414141414141414141414141414141414141414141414141"), params.Salt)
	require.Len(t, params.Owners, 1)
	require.Len(t, params.Validators, 1)

	emptyPath := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte("owners: []\n"), 0o600))
	_, err = LoadAccountInitFile(emptyPath)
	require.ErrorIs(t, err, errs.ErrInvalid)
}
