package erc7579

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// accountABI is the subset of the ERC-7579 account interface used to
// execute calls and manage modules.
// See: https://eips.ethereum.org/EIPS/eip-7579
const accountABI = `[
	{
		"inputs": [
			{"internalType": "ModeCode", "name": "mode", "type": "bytes32"},
			{"internalType": "bytes", "name": "executionCalldata", "type": "bytes"}
		],
		"name": "execute",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "moduleTypeId", "type": "uint256"},
			{"internalType": "address", "name": "module", "type": "address"},
			{"internalType": "bytes", "name": "initData", "type": "bytes"}
		],
		"name": "installModule",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "moduleTypeId", "type": "uint256"},
			{"internalType": "address", "name": "module", "type": "address"},
			{"internalType": "bytes", "name": "deInitData", "type": "bytes"}
		],
		"name": "uninstallModule",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "moduleTypeId", "type": "uint256"},
			{"internalType": "address", "name": "module", "type": "address"},
			{"internalType": "bytes", "name": "additionalContext", "type": "bytes"}
		],
		"name": "isModuleInstalled",
		"outputs": [
			{"internalType": "bool", "name": "", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "accountId",
		"outputs": [
			{"internalType": "string", "name": "accountImplementationId", "type": "string"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var accountABIParsed abi.ABI

// executionArgs encodes a single Execution struct as a standalone ABI value.
var executionArgs abi.Arguments

func init() {
	var err error
	accountABIParsed, err = abi.JSON(bytes.NewReader([]byte(accountABI)))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC-7579 account ABI: %v", err))
	}

	executionType, err := abi.NewType("tuple", "struct Execution", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(fmt.Sprintf("failed to build Execution type: %v", err))
	}
	executionArgs = abi.Arguments{{Name: "execution", Type: executionType}}
}

// Selector returns the 4-byte selector of an account method.
func Selector(method string) ([4]byte, error) {
	var selector [4]byte
	m, ok := accountABIParsed.Methods[method]
	if !ok {
		return selector, fmt.Errorf("unknown account method %s", method)
	}
	copy(selector[:], m.ID)
	return selector, nil
}
