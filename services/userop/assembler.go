package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// Gas defaults applied to every assembled operation unless overridden.
const (
	DefaultCallGasLimit         = 10_000_000
	DefaultVerificationGasLimit = 10_000_000
	DefaultPreVerificationGas   = 10_000_000
	DefaultMaxFeePerGas         = 10_000
	DefaultMaxPriorityFeePerGas = 10_000
)

// Overrides replace the gas defaults. Nil fields keep the default.
type Overrides struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func valueOr(v *big.Int, def int64) *big.Int {
	if v == nil {
		return big.NewInt(def)
	}
	return new(big.Int).Set(v)
}

// Validate rejects overrides that cannot be packed into the operation.
func (o Overrides) Validate() error {
	for _, field := range []struct {
		name  string
		value *big.Int
		check func(string, *big.Int) error
	}{
		{"callGasLimit", o.CallGasLimit, models.CheckUint128},
		{"verificationGasLimit", o.VerificationGasLimit, models.CheckUint128},
		{"preVerificationGas", o.PreVerificationGas, models.CheckUint256},
		{"maxFeePerGas", o.MaxFeePerGas, models.CheckUint128},
		{"maxPriorityFeePerGas", o.MaxPriorityFeePerGas, models.CheckUint128},
	} {
		if err := field.check(field.name, field.value); err != nil {
			return err
		}
	}
	return nil
}

// Assemble builds an unsigned user operation. With a deployment plan the
// sender must be the predicted account address and the operation carries the
// factory call that deploys it.
func Assemble(
	sender common.Address,
	nonce *big.Int,
	callData []byte,
	plan *models.DeploymentPlan,
	overrides Overrides,
) (*models.PackedUserOperation, error) {
	if plan != nil && plan.PredictedAddress != sender {
		return nil, errs.NewAddressMismatchError(sender, plan.PredictedAddress)
	}
	if err := overrides.Validate(); err != nil {
		return nil, err
	}
	if err := models.CheckUint256("nonce", nonce); err != nil {
		return nil, err
	}

	if nonce == nil {
		nonce = new(big.Int)
	}
	if callData == nil {
		callData = []byte{}
	}

	op := models.PackedUserOperation{
		Sender:               sender,
		Nonce:                new(big.Int).Set(nonce),
		CallData:             common.CopyBytes(callData),
		CallGasLimit:         valueOr(overrides.CallGasLimit, DefaultCallGasLimit),
		VerificationGasLimit: valueOr(overrides.VerificationGasLimit, DefaultVerificationGasLimit),
		PreVerificationGas:   valueOr(overrides.PreVerificationGas, DefaultPreVerificationGas),
		MaxFeePerGas:         valueOr(overrides.MaxFeePerGas, DefaultMaxFeePerGas),
		MaxPriorityFeePerGas: valueOr(overrides.MaxPriorityFeePerGas, DefaultMaxPriorityFeePerGas),
		Signature:            []byte{},
	}

	if plan != nil {
		op = op.WithFactory(plan.FactoryAddress, plan.FactoryCallData)
	}

	return &op, nil
}
