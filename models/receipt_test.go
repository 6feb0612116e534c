package models

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserOperationReceipt_Decode(t *testing.T) {
	data := []byte(`{
		"userOpHash": "0x8c3ba1bd2a0d4f9e4ae2b8f1fd8c1fd3b8e6f1c7d3cc0b8a3f1e0e4e9a3d5c11",
		"entryPoint": "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		"sender": "0x00000000000000000000000000000000000a11ce",
		"nonce": "0x503b54ed1e62365f0c9e4caf1479623b08acbe770000000000000001",
		"actualGasCost": "0x2386f26fc10000",
		"actualGasUsed": "0x186a0",
		"success": false,
		"reason": "AA23 reverted",
		"logs": [],
		"receipt": {
			"transactionHash": "0x0b1c4a3c1ff3f2ec5e0f6b5e9e4c6e0d1fb2f6cd8e4c2d9a3b1d0f7e6c5b4a39",
			"blockHash": "0x4f8e7d6c5b4a39281706f5e4d3c2b1a09f8e7d6c5b4a39281706f5e4d3c2b1a0",
			"blockNumber": "0x10",
			"from": "0x1234567890123456789012345678901234567890",
			"status": "0x1",
			"gasUsed": "0x30d40"
		}
	}`)

	var receipt UserOperationReceipt
	require.NoError(t, json.Unmarshal(data, &receipt))

	assert.Equal(t, common.HexToAddress("0xa11ce"), receipt.Sender)
	assert.Nil(t, receipt.Paymaster)
	assert.False(t, receipt.Success)
	assert.Equal(t, "AA23 reverted", receipt.Reason)
	assert.Equal(t, int64(100_000), receipt.ActualGasUsed.ToInt().Int64())

	key, seq := SplitNonce(receipt.Nonce.ToInt())
	assert.Equal(t, common.HexToAddress("0x503b54Ed1E62365F0c9e4caF1479623b08acBe77"), key.Validator())
	assert.Equal(t, uint64(1), seq)

	require.NotNil(t, receipt.Receipt)
	assert.Equal(t, int64(16), receipt.Receipt.BlockNumber.ToInt().Int64())
	assert.Equal(t, uint64(1), uint64(receipt.Receipt.Status))
}
