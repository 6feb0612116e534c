package errors

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrEmptyBatch is returned when an execution batch without any execution is encoded.
	ErrEmptyBatch = errors.New("no executions to encode")
	// ErrUnsupportedModuleTypeCount is returned when a module call is built for zero or several module types.
	ErrUnsupportedModuleTypeCount = errors.New("exactly one module type id is supported")
	// ErrOracleUnavailable indicates a read-only chain call could not complete.
	ErrOracleUnavailable = errors.New("chain oracle unavailable")
	// ErrAddressMismatch indicates the declared sender is not the predicted account address.
	ErrAddressMismatch = errors.New("sender does not match predicted account address")
	// ErrValidatorNotFound is returned when a nonce key is required but no validator was provided.
	ErrValidatorNotFound = errors.New("no validator address provided")
	// ErrExecutionValueOverflow is returned when an execution value does not fit into 256 bits.
	ErrExecutionValueOverflow = errors.New("execution value should fit into uint256")

	// ErrUnsupportedEntryPoint is returned when the bundler does not accept the configured entry point.
	ErrUnsupportedEntryPoint = errors.New("entry point not supported by bundler")
	// ErrUserOpHashMismatch is returned when the entry point hashes an operation differently.
	ErrUserOpHashMismatch = errors.New("user operation hash does not match the entry point")

	ErrAccountDeployed    = errors.New("account is already deployed")
	ErrAccountNotDeployed = errors.New("account is not deployed")
	ErrInvalid            = errors.New("invalid request")
	ErrRateLimit          = errors.New("limit of requests per second reached")
)

// AddressMismatchError is returned by the user operation assembler when the
// sender of an operation differs from the address a deployment plan predicts.
type AddressMismatchError struct {
	Sender    common.Address
	Predicted common.Address
}

func (e *AddressMismatchError) Error() string {
	return fmt.Sprintf(
		"%s: sender %s, predicted %s",
		ErrAddressMismatch,
		e.Sender.Hex(),
		e.Predicted.Hex(),
	)
}

func (e *AddressMismatchError) Unwrap() error {
	return ErrAddressMismatch
}

func NewAddressMismatchError(sender, predicted common.Address) *AddressMismatchError {
	return &AddressMismatchError{
		Sender:    sender,
		Predicted: predicted,
	}
}

// NewOracleUnavailableError marks a failed read-only call, keeping the cause
// inspectable with errors.Is (e.g. context.Canceled).
func NewOracleUnavailableError(call string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOracleUnavailable, call, err)
}
