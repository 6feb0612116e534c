package erc7579

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// singleExecutionHeader is target(20) + value(32) of the packed single form.
const singleExecutionHeader = common.AddressLength + 32

type executionTuple struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

func checkValue(e models.Execution) (*big.Int, error) {
	value := e.ValueOrZero()
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value for target %s", errs.ErrInvalid, e.Target.Hex())
	}
	if value.BitLen() > 256 {
		return nil, fmt.Errorf("%w: target %s", errs.ErrExecutionValueOverflow, e.Target.Hex())
	}
	return value, nil
}

// EncodeSingleExecution packs an execution as `target ‖ uint256(value) ‖ callData`
// without padding between the fields.
func EncodeSingleExecution(e models.Execution) ([]byte, error) {
	value, err := checkValue(e)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, singleExecutionHeader+len(e.CallData))
	data = append(data, e.Target.Bytes()...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)
	return append(data, e.CallData...), nil
}

// EncodeBatchExecutions ABI encodes each execution as a single tuple value
// and concatenates the results in batch order.
func EncodeBatchExecutions(executions []models.Execution) ([]byte, error) {
	var out []byte
	for i, e := range executions {
		value, err := checkValue(e)
		if err != nil {
			return nil, err
		}

		callData := e.CallData
		if callData == nil {
			callData = []byte{}
		}

		encoded, err := executionArgs.Pack(executionTuple{
			Target:   e.Target,
			Value:    value,
			CallData: callData,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode execution %d: %w", i, err)
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// EncodeExecutions builds the `execute(bytes32,bytes)` call for a batch. The
// mode is single for one execution and batch for more.
func EncodeExecutions(batch models.ExecutionBatch) ([]byte, error) {
	mode, err := batch.Mode()
	if err != nil {
		return nil, err
	}

	var executionCalldata []byte
	switch mode {
	case models.ModeSingle:
		executionCalldata, err = EncodeSingleExecution(batch.Executions()[0])
	default:
		executionCalldata, err = EncodeBatchExecutions(batch.Executions())
	}
	if err != nil {
		return nil, err
	}

	return EncodeExecute(mode, executionCalldata)
}

// EncodeExecute wraps already encoded execution data into an `execute` call.
func EncodeExecute(mode models.ExecutionMode, executionCalldata []byte) ([]byte, error) {
	data, err := accountABIParsed.Pack("execute", mode.Bytes32(), executionCalldata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute: %w", err)
	}
	return data, nil
}

// DecodeExecute splits an `execute` call into its mode code and raw
// execution data.
func DecodeExecute(calldata []byte) ([32]byte, []byte, error) {
	var mode [32]byte

	method := accountABIParsed.Methods["execute"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return mode, nil, fmt.Errorf("%w: not an execute call", errs.ErrInvalid)
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return mode, nil, fmt.Errorf("failed to unpack execute arguments: %w", err)
	}
	if len(args) != 2 {
		return mode, nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}

	mode, ok := args[0].([32]byte)
	if !ok {
		return mode, nil, fmt.Errorf("mode is not bytes32, got %T", args[0])
	}
	executionCalldata, ok := args[1].([]byte)
	if !ok {
		return mode, nil, fmt.Errorf("execution calldata is not bytes, got %T", args[1])
	}

	return mode, executionCalldata, nil
}

// DecodeSingleExecution is the inverse of EncodeSingleExecution.
func DecodeSingleExecution(data []byte) (models.Execution, error) {
	if len(data) < singleExecutionHeader {
		return models.Execution{}, fmt.Errorf(
			"%w: single execution too short: %d bytes",
			errs.ErrInvalid,
			len(data),
		)
	}

	target := common.BytesToAddress(data[:common.AddressLength])
	value := new(big.Int).SetBytes(data[common.AddressLength:singleExecutionHeader])
	return models.NewExecution(target, value, data[singleExecutionHeader:]), nil
}

// DecodeBatchExecutions walks concatenated execution encodings produced by
// EncodeBatchExecutions.
func DecodeBatchExecutions(data []byte) ([]models.Execution, error) {
	var executions []models.Execution

	for offset := 0; offset < len(data); {
		// offset word + target + value + bytes offset + bytes length
		if len(data)-offset < 5*32 {
			return nil, fmt.Errorf("%w: truncated execution at byte %d", errs.ErrInvalid, offset)
		}
		length := new(big.Int).SetBytes(data[offset+4*32 : offset+5*32])
		if !length.IsInt64() || length.Int64() > int64(len(data)) {
			return nil, fmt.Errorf("%w: invalid call data length at byte %d", errs.ErrInvalid, offset)
		}
		size := 5*32 + (int(length.Int64())+31)/32*32
		if len(data)-offset < size {
			return nil, fmt.Errorf("%w: truncated execution at byte %d", errs.ErrInvalid, offset)
		}

		values, err := executionArgs.Unpack(data[offset : offset+size])
		if err != nil {
			return nil, fmt.Errorf("failed to unpack execution at byte %d: %w", offset, err)
		}

		tuple, ok := abi.ConvertType(values[0], new(executionTuple)).(*executionTuple)
		if !ok {
			return nil, fmt.Errorf("failed to read execution at byte %d", offset)
		}

		executions = append(executions, models.NewExecution(tuple.Target, tuple.Value, tuple.CallData))
		offset += size
	}

	return executions, nil
}

// DecodeExecutions decodes an `execute` call back into the batch it was
// built from.
func DecodeExecutions(calldata []byte) (models.ExecutionBatch, error) {
	mode, executionCalldata, err := DecodeExecute(calldata)
	if err != nil {
		return models.ExecutionBatch{}, err
	}

	switch mode {
	case models.ModeSingle.Bytes32():
		e, err := DecodeSingleExecution(executionCalldata)
		if err != nil {
			return models.ExecutionBatch{}, err
		}
		return models.NewExecutionBatch(e), nil
	case models.ModeBatch.Bytes32():
		executions, err := DecodeBatchExecutions(executionCalldata)
		if err != nil {
			return models.ExecutionBatch{}, err
		}
		return models.NewExecutionBatch(executions...), nil
	default:
		return models.ExecutionBatch{}, fmt.Errorf("%w: unsupported mode %x", errs.ErrInvalid, mode)
	}
}
