package userop

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
)

// DefaultEntryPoint is the canonical EntryPoint v0.7 deployment.
var DefaultEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

const packedUserOperationComponents = `[
	{"internalType": "address", "name": "sender", "type": "address"},
	{"internalType": "uint256", "name": "nonce", "type": "uint256"},
	{"internalType": "bytes", "name": "initCode", "type": "bytes"},
	{"internalType": "bytes", "name": "callData", "type": "bytes"},
	{"internalType": "bytes32", "name": "accountGasLimits", "type": "bytes32"},
	{"internalType": "uint256", "name": "preVerificationGas", "type": "uint256"},
	{"internalType": "bytes32", "name": "gasFees", "type": "bytes32"},
	{"internalType": "bytes", "name": "paymasterAndData", "type": "bytes"},
	{"internalType": "bytes", "name": "signature", "type": "bytes"}
]`

// entryPointABI is the subset of the ERC-4337 EntryPoint v0.7 used here.
const entryPointABI = `[
	{
		"inputs": [
			{"components": ` + packedUserOperationComponents + `, "internalType": "struct PackedUserOperation[]", "name": "ops", "type": "tuple[]"},
			{"internalType": "address payable", "name": "beneficiary", "type": "address"}
		],
		"name": "handleOps",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "sender", "type": "address"},
			{"internalType": "uint192", "name": "key", "type": "uint192"}
		],
		"name": "getNonce",
		"outputs": [
			{"internalType": "uint256", "name": "nonce", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"components": ` + packedUserOperationComponents + `, "internalType": "struct PackedUserOperation", "name": "userOp", "type": "tuple"}
		],
		"name": "getUserOpHash",
		"outputs": [
			{"internalType": "bytes32", "name": "", "type": "bytes32"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "account", "type": "address"}
		],
		"name": "balanceOf",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "opIndex", "type": "uint256"},
			{"internalType": "string", "name": "reason", "type": "string"}
		],
		"name": "FailedOp",
		"type": "error"
	}
]`

var entryPointABIParsed abi.ABI

func init() {
	var err error
	entryPointABIParsed, err = abi.JSON(bytes.NewReader([]byte(entryPointABI)))
	if err != nil {
		panic(fmt.Sprintf("failed to parse EntryPoint ABI: %v", err))
	}
}

// PackedUserOperationABI is the on-chain struct layout of a v0.7 operation.
type PackedUserOperationABI struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func emptyIfNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Pack converts the RPC form of an operation into the on-chain struct. It
// fails when a gas value does not fit its packed slot.
func Pack(op *models.PackedUserOperation) (PackedUserOperationABI, error) {
	gasLimits, err := op.AccountGasLimits()
	if err != nil {
		return PackedUserOperationABI{}, err
	}
	gasFees, err := op.GasFees()
	if err != nil {
		return PackedUserOperationABI{}, err
	}
	paymasterAndData, err := op.PaymasterAndData()
	if err != nil {
		return PackedUserOperationABI{}, err
	}

	return PackedUserOperationABI{
		Sender:             op.Sender,
		Nonce:              orZero(op.Nonce),
		InitCode:           op.InitCode(),
		CallData:           emptyIfNil(op.CallData),
		AccountGasLimits:   gasLimits,
		PreVerificationGas: orZero(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          emptyIfNil(op.Signature),
	}, nil
}

// Unpack is the inverse of Pack.
func Unpack(packed PackedUserOperationABI) *models.PackedUserOperation {
	op := models.PackedUserOperation{
		Sender:               packed.Sender,
		Nonce:                orZero(packed.Nonce),
		CallData:             common.CopyBytes(emptyIfNil(packed.CallData)),
		CallGasLimit:         new(big.Int).SetBytes(packed.AccountGasLimits[16:32]),
		VerificationGasLimit: new(big.Int).SetBytes(packed.AccountGasLimits[0:16]),
		PreVerificationGas:   orZero(packed.PreVerificationGas),
		MaxFeePerGas:         new(big.Int).SetBytes(packed.GasFees[16:32]),
		MaxPriorityFeePerGas: new(big.Int).SetBytes(packed.GasFees[0:16]),
		Signature:            common.CopyBytes(emptyIfNil(packed.Signature)),
	}

	if len(packed.InitCode) >= common.AddressLength {
		op = op.WithFactory(
			common.BytesToAddress(packed.InitCode[:common.AddressLength]),
			packed.InitCode[common.AddressLength:],
		)
	}

	// paymaster + uint128 verification gas + uint128 postOp gas
	const paymasterHeader = common.AddressLength + 32
	if len(packed.PaymasterAndData) >= paymasterHeader {
		data := packed.PaymasterAndData
		op = op.WithPaymaster(
			common.BytesToAddress(data[:common.AddressLength]),
			new(big.Int).SetBytes(data[common.AddressLength:common.AddressLength+16]),
			new(big.Int).SetBytes(data[common.AddressLength+16:paymasterHeader]),
			data[paymasterHeader:],
		)
	}

	return &op
}

// UserOpHash returns the digest the account signer signs for an operation.
func UserOpHash(op *models.PackedUserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	return op.Hash(entryPoint, chainID)
}

// EncodeGetNonce encodes EntryPoint.getNonce(sender, key).
func EncodeGetNonce(sender common.Address, key models.NonceKey) ([]byte, error) {
	data, err := entryPointABIParsed.Pack("getNonce", sender, key.Big())
	if err != nil {
		return nil, fmt.Errorf("failed to encode getNonce: %w", err)
	}
	return data, nil
}

// DecodeGetNonce returns the full nonce returned by getNonce.
func DecodeGetNonce(ret []byte) (*big.Int, error) {
	values, err := entryPointABIParsed.Unpack("getNonce", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getNonce result: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", values[0])
	}
	return nonce, nil
}

// EncodeGetUserOpHash encodes EntryPoint.getUserOpHash(userOp), used to
// check the locally computed hash against a deployed entry point.
func EncodeGetUserOpHash(op *models.PackedUserOperation) ([]byte, error) {
	packed, err := Pack(op)
	if err != nil {
		return nil, err
	}

	data, err := entryPointABIParsed.Pack("getUserOpHash", packed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getUserOpHash: %w", err)
	}
	return data, nil
}

func DecodeGetUserOpHash(ret []byte) (common.Hash, error) {
	values, err := entryPointABIParsed.Unpack("getUserOpHash", ret)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to unpack getUserOpHash result: %w", err)
	}
	hash, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected getUserOpHash result type %T", values[0])
	}
	return hash, nil
}

// EncodeBalanceOf encodes EntryPoint.balanceOf(account), the deposit the
// account holds at the entry point to pay for its operations.
func EncodeBalanceOf(account common.Address) ([]byte, error) {
	data, err := entryPointABIParsed.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balanceOf: %w", err)
	}
	return data, nil
}

func DecodeBalanceOf(ret []byte) (*big.Int, error) {
	values, err := entryPointABIParsed.Unpack("balanceOf", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return balance, nil
}

// EncodeHandleOps encodes the calldata for EntryPoint.handleOps().
func EncodeHandleOps(ops []*models.PackedUserOperation, beneficiary common.Address) ([]byte, error) {
	packed := make([]PackedUserOperationABI, len(ops))
	for i, op := range ops {
		p, err := Pack(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		packed[i] = p
	}

	data, err := entryPointABIParsed.Pack("handleOps", packed, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handleOps: %w", err)
	}
	return data, nil
}

// DecodeHandleOps decodes the calldata for EntryPoint.handleOps().
func DecodeHandleOps(calldata []byte) ([]*models.PackedUserOperation, common.Address, error) {
	method := entryPointABIParsed.Methods["handleOps"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, common.Address{}, fmt.Errorf("not a handleOps call: selector mismatch")
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to unpack handleOps arguments: %w", err)
	}
	if len(args) != 2 {
		return nil, common.Address{}, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}

	packed, ok := abi.ConvertType(args[0], new([]PackedUserOperationABI)).(*[]PackedUserOperationABI)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("unexpected ops type %T", args[0])
	}
	beneficiary, ok := args[1].(common.Address)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("second argument is not an address, got %T", args[1])
	}

	ops := make([]*models.PackedUserOperation, len(*packed))
	for i, p := range *packed {
		ops[i] = Unpack(p)
	}
	return ops, beneficiary, nil
}

// DecodeFailedOp decodes a FailedOp revert returned by the entry point.
func DecodeFailedOp(revertData []byte) (*big.Int, string, error) {
	failedOp := entryPointABIParsed.Errors["FailedOp"]
	if len(revertData) < 4 || !bytes.Equal(revertData[:4], failedOp.ID[:4]) {
		return nil, "", fmt.Errorf("not a FailedOp revert")
	}

	values, err := failedOp.Inputs.Unpack(revertData[4:])
	if err != nil {
		return nil, "", fmt.Errorf("failed to unpack FailedOp: %w", err)
	}
	opIndex, _ := values[0].(*big.Int)
	reason, _ := values[1].(string)
	return opIndex, reason, nil
}
