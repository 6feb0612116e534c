package safe7579

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const moduleInitComponents = `[
	{"internalType": "address", "name": "module", "type": "address"},
	{"internalType": "bytes", "name": "initData", "type": "bytes"}
]`

const initDataComponents = `[
	{"internalType": "address", "name": "singleton", "type": "address"},
	{"internalType": "address[]", "name": "owners", "type": "address[]"},
	{"internalType": "uint256", "name": "threshold", "type": "uint256"},
	{"internalType": "address", "name": "setupTo", "type": "address"},
	{"internalType": "bytes", "name": "setupData", "type": "bytes"},
	{"internalType": "contract ISafe7579", "name": "safe7579", "type": "address"},
	{"components": ` + moduleInitComponents + `, "internalType": "struct ModuleInit[]", "name": "validators", "type": "tuple[]"},
	{"internalType": "bytes", "name": "callData", "type": "bytes"}
]`

// launchpadABI is the subset of the Safe7579Launchpad used to plan and set up
// counterfactual accounts.
const launchpadABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "safe7579", "type": "address"},
			{"components": ` + moduleInitComponents + `, "internalType": "struct ModuleInit[]", "name": "executors", "type": "tuple[]"},
			{"components": ` + moduleInitComponents + `, "internalType": "struct ModuleInit[]", "name": "fallbacks", "type": "tuple[]"},
			{"components": ` + moduleInitComponents + `, "internalType": "struct ModuleInit[]", "name": "hooks", "type": "tuple[]"},
			{"internalType": "address[]", "name": "attesters", "type": "address[]"},
			{"internalType": "uint8", "name": "threshold", "type": "uint8"}
		],
		"name": "initSafe7579",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"components": ` + initDataComponents + `, "internalType": "struct Safe7579Launchpad.InitData", "name": "data", "type": "tuple"}
		],
		"name": "hash",
		"outputs": [
			{"internalType": "bytes32", "name": "initHash", "type": "bytes32"}
		],
		"stateMutability": "pure",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "initHash", "type": "bytes32"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "bytes", "name": "preInit", "type": "bytes"}
		],
		"name": "preValidationSetup",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "singleton", "type": "address"},
			{"internalType": "address", "name": "safeProxyFactory", "type": "address"},
			{"internalType": "bytes", "name": "creationCode", "type": "bytes"},
			{"internalType": "bytes32", "name": "salt", "type": "bytes32"},
			{"internalType": "bytes", "name": "factoryInitializer", "type": "bytes"}
		],
		"name": "predictSafeAddress",
		"outputs": [
			{"internalType": "address payable", "name": "safeProxy", "type": "address"}
		],
		"stateMutability": "pure",
		"type": "function"
	},
	{
		"inputs": [
			{"components": ` + initDataComponents + `, "internalType": "struct Safe7579Launchpad.InitData", "name": "data", "type": "tuple"}
		],
		"name": "setupSafe",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const proxyFactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "_singleton", "type": "address"},
			{"internalType": "bytes", "name": "initializer", "type": "bytes"},
			{"internalType": "uint256", "name": "saltNonce", "type": "uint256"}
		],
		"name": "createProxyWithNonce",
		"outputs": [
			{"internalType": "contract SafeProxy", "name": "proxy", "type": "address"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "proxyCreationCode",
		"outputs": [
			{"internalType": "bytes", "name": "", "type": "bytes"}
		],
		"stateMutability": "pure",
		"type": "function"
	}
]`

var (
	launchpadABIParsed    abi.ABI
	proxyFactoryABIParsed abi.ABI
	packedFactoryCallArgs abi.Arguments
)

func init() {
	var err error
	launchpadABIParsed, err = abi.JSON(bytes.NewReader([]byte(launchpadABI)))
	if err != nil {
		panic(fmt.Sprintf("failed to parse Safe7579Launchpad ABI: %v", err))
	}
	proxyFactoryABIParsed, err = abi.JSON(bytes.NewReader([]byte(proxyFactoryABI)))
	if err != nil {
		panic(fmt.Sprintf("failed to parse SafeProxyFactory ABI: %v", err))
	}

	factoryCallType, err := abi.NewType("tuple", "struct PackedFactoryCall", []abi.ArgumentMarshaling{
		{Name: "factory", Type: "address"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(fmt.Sprintf("failed to build PackedFactoryCall type: %v", err))
	}
	packedFactoryCallArgs = abi.Arguments{{Name: "call", Type: factoryCallType}}
}

// MethodName resolves the launchpad or proxy factory method called by data.
func MethodName(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("call data too short for a selector: %d bytes", len(data))
	}
	if m, err := launchpadABIParsed.MethodById(data[:4]); err == nil {
		return m.Name, nil
	}
	if m, err := proxyFactoryABIParsed.MethodById(data[:4]); err == nil {
		return m.Name, nil
	}
	return "", fmt.Errorf("unknown selector %x", data[:4])
}
