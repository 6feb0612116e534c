package models

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// PackedUserOperation is an ERC-4337 v0.7 user operation in the unpacked
// form used by bundler JSON-RPC APIs. Optional fields are nil when absent.
// See: https://eips.ethereum.org/EIPS/eip-4337
type PackedUserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return common.CopyBytes(b)
}

// Copy returns a deep copy of the operation.
func (op PackedUserOperation) Copy() PackedUserOperation {
	return PackedUserOperation{
		Sender:                        op.Sender,
		Nonce:                         copyBig(op.Nonce),
		Factory:                       copyAddress(op.Factory),
		FactoryData:                   copyBytes(op.FactoryData),
		CallData:                      copyBytes(op.CallData),
		CallGasLimit:                  copyBig(op.CallGasLimit),
		VerificationGasLimit:          copyBig(op.VerificationGasLimit),
		PreVerificationGas:            copyBig(op.PreVerificationGas),
		MaxFeePerGas:                  copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          copyBig(op.MaxPriorityFeePerGas),
		Paymaster:                     copyAddress(op.Paymaster),
		PaymasterVerificationGasLimit: copyBig(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       copyBig(op.PaymasterPostOpGasLimit),
		PaymasterData:                 copyBytes(op.PaymasterData),
		Signature:                     copyBytes(op.Signature),
	}
}

func (op PackedUserOperation) WithSender(sender common.Address) PackedUserOperation {
	c := op.Copy()
	c.Sender = sender
	return c
}

func (op PackedUserOperation) WithNonce(nonce *big.Int) PackedUserOperation {
	c := op.Copy()
	c.Nonce = copyBig(nonce)
	return c
}

func (op PackedUserOperation) WithCallData(callData []byte) PackedUserOperation {
	c := op.Copy()
	c.CallData = copyBytes(callData)
	return c
}

func (op PackedUserOperation) WithFactory(factory common.Address, factoryData []byte) PackedUserOperation {
	c := op.Copy()
	c.Factory = &factory
	c.FactoryData = copyBytes(factoryData)
	return c
}

func (op PackedUserOperation) WithPaymaster(
	paymaster common.Address,
	verificationGasLimit *big.Int,
	postOpGasLimit *big.Int,
	data []byte,
) PackedUserOperation {
	c := op.Copy()
	c.Paymaster = &paymaster
	c.PaymasterVerificationGasLimit = copyBig(verificationGasLimit)
	c.PaymasterPostOpGasLimit = copyBig(postOpGasLimit)
	c.PaymasterData = copyBytes(data)
	return c
}

func (op PackedUserOperation) WithSignature(signature []byte) PackedUserOperation {
	c := op.Copy()
	c.Signature = copyBytes(signature)
	return c
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func addressEqual(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Equal compares two operations field by field. Nil and empty byte fields
// are considered equal.
func (op PackedUserOperation) Equal(other PackedUserOperation) bool {
	return op.Sender == other.Sender &&
		bigEqual(op.Nonce, other.Nonce) &&
		addressEqual(op.Factory, other.Factory) &&
		bytes.Equal(op.FactoryData, other.FactoryData) &&
		bytes.Equal(op.CallData, other.CallData) &&
		bigEqual(op.CallGasLimit, other.CallGasLimit) &&
		bigEqual(op.VerificationGasLimit, other.VerificationGasLimit) &&
		bigEqual(op.PreVerificationGas, other.PreVerificationGas) &&
		bigEqual(op.MaxFeePerGas, other.MaxFeePerGas) &&
		bigEqual(op.MaxPriorityFeePerGas, other.MaxPriorityFeePerGas) &&
		addressEqual(op.Paymaster, other.Paymaster) &&
		bigEqual(op.PaymasterVerificationGasLimit, other.PaymasterVerificationGasLimit) &&
		bigEqual(op.PaymasterPostOpGasLimit, other.PaymasterPostOpGasLimit) &&
		bytes.Equal(op.PaymasterData, other.PaymasterData) &&
		bytes.Equal(op.Signature, other.Signature)
}

// InitCode is the on-chain `initCode` field: factory address followed by the
// factory call data, or empty for deployed accounts.
func (op PackedUserOperation) InitCode() []byte {
	if op.Factory == nil {
		return []byte{}
	}
	initCode := make([]byte, 0, common.AddressLength+len(op.FactoryData))
	initCode = append(initCode, op.Factory.Bytes()...)
	return append(initCode, op.FactoryData...)
}

// CheckUint128 fails for values that do not fit the uint128 halves of the
// packed gas fields. Nil is treated as zero.
func CheckUint128(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %s", errs.ErrInvalid, name, v)
	}
	if v.BitLen() > 128 {
		return fmt.Errorf("%w: %s does not fit into uint128, got %s", errs.ErrInvalid, name, v)
	}
	return nil
}

// CheckUint256 fails for negative values and values wider than 256 bits.
func CheckUint256(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %s", errs.ErrInvalid, name, v)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("%w: %s does not fit into uint256, got %s", errs.ErrInvalid, name, v)
	}
	return nil
}

// packUint128Pair packs two values into a bytes32 as `high << 128 | low`.
func packUint128Pair(highName string, high *big.Int, lowName string, low *big.Int) ([32]byte, error) {
	var result [32]byte
	if err := CheckUint128(highName, high); err != nil {
		return result, err
	}
	if err := CheckUint128(lowName, low); err != nil {
		return result, err
	}

	if high != nil {
		high.FillBytes(result[0:16])
	}
	if low != nil {
		low.FillBytes(result[16:32])
	}
	return result, nil
}

// AccountGasLimits packs verificationGasLimit (high 128 bits) and
// callGasLimit (low 128 bits).
func (op PackedUserOperation) AccountGasLimits() ([32]byte, error) {
	return packUint128Pair(
		"verificationGasLimit", op.VerificationGasLimit,
		"callGasLimit", op.CallGasLimit,
	)
}

// GasFees packs maxPriorityFeePerGas (high 128 bits) and maxFeePerGas
// (low 128 bits).
func (op PackedUserOperation) GasFees() ([32]byte, error) {
	return packUint128Pair(
		"maxPriorityFeePerGas", op.MaxPriorityFeePerGas,
		"maxFeePerGas", op.MaxFeePerGas,
	)
}

// PaymasterAndData is `paymaster ‖ uint128(verificationGas) ‖ uint128(postOpGas) ‖ data`,
// or empty when no paymaster is set.
func (op PackedUserOperation) PaymasterAndData() ([]byte, error) {
	if op.Paymaster == nil {
		return []byte{}, nil
	}
	gas, err := packUint128Pair(
		"paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit,
		"paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit,
	)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, common.AddressLength+32+len(op.PaymasterData))
	data = append(data, op.Paymaster.Bytes()...)
	data = append(data, gas[:]...)
	return append(data, op.PaymasterData...), nil
}

var (
	hashArgs = mustArguments("address", "uint256", "bytes32", "bytes32", "bytes32", "uint256", "bytes32", "bytes32")
	wrapArgs = mustArguments("bytes32", "address", "uint256")
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %s: %v", t, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Hash computes the EntryPoint v0.7 user operation hash:
// keccak256(abi.encode(keccak256(pack(userOp)), entryPoint, chainId)).
// This is the digest an account signer signs.
func (op PackedUserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	gasLimits, err := op.AccountGasLimits()
	if err != nil {
		return common.Hash{}, err
	}
	gasFees, err := op.GasFees()
	if err != nil {
		return common.Hash{}, err
	}
	paymasterAndData, err := op.PaymasterAndData()
	if err != nil {
		return common.Hash{}, err
	}
	if err := CheckUint256("nonce", op.Nonce); err != nil {
		return common.Hash{}, err
	}
	if err := CheckUint256("preVerificationGas", op.PreVerificationGas); err != nil {
		return common.Hash{}, err
	}

	packed, err := hashArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode()),
		crypto.Keccak256Hash(op.CallData),
		gasLimits,
		orZero(op.PreVerificationGas),
		gasFees,
		crypto.Keccak256Hash(paymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}

	wrapped, err := wrapArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, orZero(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}

	return crypto.Keccak256Hash(wrapped), nil
}

// UserOperationArgs is the JSON-RPC representation of a PackedUserOperation.
type UserOperationArgs struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   *hexutil.Bytes  `json:"factoryData,omitempty"`
	CallData                      *hexutil.Bytes  `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     *hexutil.Bytes  `json:"signature"`
}

func toHexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(copyBig(v))
}

func toHexBytes(b []byte) *hexutil.Bytes {
	if b == nil {
		return nil
	}
	h := hexutil.Bytes(copyBytes(b))
	return &h
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return copyBig(v.ToInt())
}

func fromHexBytes(b *hexutil.Bytes) []byte {
	if b == nil {
		return nil
	}
	return copyBytes(*b)
}

// Args converts the operation into its JSON-RPC form. Required byte fields
// are always present, optional ones only when set.
func (op PackedUserOperation) Args() UserOperationArgs {
	callData := hexutil.Bytes(copyBytes(op.CallData))
	if callData == nil {
		callData = hexutil.Bytes{}
	}
	signature := hexutil.Bytes(copyBytes(op.Signature))
	if signature == nil {
		signature = hexutil.Bytes{}
	}

	args := UserOperationArgs{
		Sender:               op.Sender,
		Nonce:                toHexBig(orZero(op.Nonce)),
		Factory:              copyAddress(op.Factory),
		CallData:             &callData,
		CallGasLimit:         toHexBig(op.CallGasLimit),
		VerificationGasLimit: toHexBig(op.VerificationGasLimit),
		PreVerificationGas:   toHexBig(op.PreVerificationGas),
		MaxFeePerGas:         toHexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: toHexBig(op.MaxPriorityFeePerGas),
		Paymaster:            copyAddress(op.Paymaster),
		Signature:            &signature,
	}
	if op.Factory != nil {
		args.FactoryData = toHexBytes(op.FactoryData)
		if args.FactoryData == nil {
			args.FactoryData = &hexutil.Bytes{}
		}
	}
	if op.Paymaster != nil {
		args.PaymasterVerificationGasLimit = toHexBig(op.PaymasterVerificationGasLimit)
		args.PaymasterPostOpGasLimit = toHexBig(op.PaymasterPostOpGasLimit)
		args.PaymasterData = toHexBytes(op.PaymasterData)
		if args.PaymasterData == nil {
			args.PaymasterData = &hexutil.Bytes{}
		}
	}

	return args
}

// ToUserOperation converts UserOperationArgs to a PackedUserOperation.
func (args *UserOperationArgs) ToUserOperation() (*PackedUserOperation, error) {
	op := &PackedUserOperation{
		Sender:    args.Sender,
		Nonce:     big.NewInt(0),
		Factory:   copyAddress(args.Factory),
		Paymaster: copyAddress(args.Paymaster),
	}

	if args.Nonce != nil {
		op.Nonce = fromHexBig(args.Nonce)
	}

	if args.CallData == nil {
		return nil, fmt.Errorf("callData is required")
	}
	op.CallData = fromHexBytes(args.CallData)

	if args.CallGasLimit == nil {
		return nil, fmt.Errorf("callGasLimit is required")
	}
	op.CallGasLimit = fromHexBig(args.CallGasLimit)

	if args.VerificationGasLimit == nil {
		return nil, fmt.Errorf("verificationGasLimit is required")
	}
	op.VerificationGasLimit = fromHexBig(args.VerificationGasLimit)

	if args.PreVerificationGas == nil {
		return nil, fmt.Errorf("preVerificationGas is required")
	}
	op.PreVerificationGas = fromHexBig(args.PreVerificationGas)

	if args.MaxFeePerGas == nil {
		return nil, fmt.Errorf("maxFeePerGas is required")
	}
	op.MaxFeePerGas = fromHexBig(args.MaxFeePerGas)

	if args.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("maxPriorityFeePerGas is required")
	}
	op.MaxPriorityFeePerGas = fromHexBig(args.MaxPriorityFeePerGas)

	if args.FactoryData != nil {
		if args.Factory == nil {
			return nil, fmt.Errorf("factoryData requires factory")
		}
		op.FactoryData = fromHexBytes(args.FactoryData)
	}

	if args.Paymaster != nil {
		op.PaymasterVerificationGasLimit = fromHexBig(args.PaymasterVerificationGasLimit)
		op.PaymasterPostOpGasLimit = fromHexBig(args.PaymasterPostOpGasLimit)
		op.PaymasterData = fromHexBytes(args.PaymasterData)
	}

	if args.Signature == nil {
		op.Signature = []byte{}
	} else {
		op.Signature = fromHexBytes(args.Signature)
	}

	return op, nil
}

func (op PackedUserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.Args())
}

func (op *PackedUserOperation) UnmarshalJSON(data []byte) error {
	var args UserOperationArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return err
	}

	decoded, err := args.ToUserOperation()
	if err != nil {
		return err
	}

	*op = *decoded
	return nil
}
