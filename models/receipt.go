package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperationReceipt is the bundler's view of an included user operation,
// as returned by eth_getUserOperationReceipt.
type UserOperationReceipt struct {
	UserOpHash    common.Hash         `json:"userOpHash"`
	EntryPoint    common.Address      `json:"entryPoint"`
	Sender        common.Address      `json:"sender"`
	Nonce         hexutil.Big         `json:"nonce"`
	Paymaster     *common.Address     `json:"paymaster,omitempty"`
	ActualGasCost hexutil.Big         `json:"actualGasCost"`
	ActualGasUsed hexutil.Big         `json:"actualGasUsed"`
	Success       bool                `json:"success"`
	Reason        string              `json:"reason,omitempty"`
	Receipt       *TransactionReceipt `json:"receipt,omitempty"`
}

// TransactionReceipt carries the fields of the bundle transaction receipt
// needed to locate it on chain.
type TransactionReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockHash       common.Hash    `json:"blockHash"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	From            common.Address `json:"from"`
	Status          hexutil.Uint64 `json:"status"`
}
