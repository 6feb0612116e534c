package models

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// ExecutionMode selects the ERC-7579 call type used to wrap executions.
type ExecutionMode uint8

const (
	ModeSingle ExecutionMode = iota
	ModeBatch
)

// Bytes32 returns the mode code as it is passed to the account `execute`
// function. Single is all zeros, batch sets the call type byte to 0x01.
func (m ExecutionMode) Bytes32() [32]byte {
	var code [32]byte
	if m == ModeBatch {
		code[0] = 0x01
	}
	return code
}

func (m ExecutionMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeBatch:
		return "batch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Execution is a single call made by the smart account.
type Execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

func NewExecution(target common.Address, value *big.Int, callData []byte) Execution {
	if value == nil {
		value = new(big.Int)
	}
	return Execution{
		Target:   target,
		Value:    new(big.Int).Set(value),
		CallData: common.CopyBytes(callData),
	}
}

// ValueOrZero never returns nil.
func (e Execution) ValueOrZero() *big.Int {
	if e.Value == nil {
		return new(big.Int)
	}
	return e.Value
}

// ExecutionBatch is an ordered list of executions. The order is the on-chain
// call order and is preserved through encoding.
type ExecutionBatch struct {
	executions []Execution
}

func NewExecutionBatch(executions ...Execution) ExecutionBatch {
	b := ExecutionBatch{executions: make([]Execution, 0, len(executions))}
	b.executions = append(b.executions, executions...)
	return b
}

// Append returns a new batch with the execution added at the end.
func (b ExecutionBatch) Append(e Execution) ExecutionBatch {
	executions := make([]Execution, 0, len(b.executions)+1)
	executions = append(executions, b.executions...)
	executions = append(executions, e)
	return ExecutionBatch{executions: executions}
}

func (b ExecutionBatch) Len() int {
	return len(b.executions)
}

// Executions returns a copy of the batch content.
func (b ExecutionBatch) Executions() []Execution {
	out := make([]Execution, len(b.executions))
	copy(out, b.executions)
	return out
}

// Mode derives the execution mode from the batch length: one execution is
// a single call, anything more is a batch. An empty batch has no mode.
func (b ExecutionBatch) Mode() (ExecutionMode, error) {
	switch len(b.executions) {
	case 0:
		return 0, errs.ErrEmptyBatch
	case 1:
		return ModeSingle, nil
	default:
		return ModeBatch, nil
	}
}

// ParseValue parses a decimal or 0x-prefixed hex amount into a uint256 value.
func ParseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: invalid value %q", errs.ErrInvalid, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %q", errs.ErrInvalid, s)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s", errs.ErrExecutionValueOverflow, s)
	}
	return v, nil
}

// ExecutionArgs is the textual form of an execution used by input files and
// the JSON-RPC API.
type ExecutionArgs struct {
	Target   common.Address `json:"target" yaml:"target"`
	Value    string         `json:"value,omitempty" yaml:"value"`
	CallData string         `json:"callData,omitempty" yaml:"callData"`
}

func (a ExecutionArgs) ToExecution() (Execution, error) {
	value, err := ParseValue(a.Value)
	if err != nil {
		return Execution{}, err
	}

	var data []byte
	if a.CallData != "" && a.CallData != "0x" {
		data, err = hexutil.Decode(a.CallData)
		if err != nil {
			return Execution{}, fmt.Errorf("%w: invalid callData for target %s: %v", errs.ErrInvalid, a.Target.Hex(), err)
		}
	}

	return NewExecution(a.Target, value, data), nil
}

// ExecutionsFile is the content of an executions input file.
type ExecutionsFile struct {
	EntryPoint *common.Address `yaml:"entrypoint"`
	Executions []ExecutionArgs `yaml:"executions"`
}

// LoadExecutionsFile reads a YAML executions file and returns the batch in
// file order together with the optional entry point override.
func LoadExecutionsFile(path string) (ExecutionBatch, *common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExecutionBatch{}, nil, fmt.Errorf("could not read executions file %s: %w", path, err)
	}

	return ParseExecutions(data)
}

func ParseExecutions(data []byte) (ExecutionBatch, *common.Address, error) {
	var file ExecutionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ExecutionBatch{}, nil, fmt.Errorf("could not parse executions: %w", err)
	}

	batch := NewExecutionBatch()
	for i, args := range file.Executions {
		e, err := args.ToExecution()
		if err != nil {
			return ExecutionBatch{}, nil, fmt.Errorf("execution %d: %w", i, err)
		}
		batch = batch.Append(e)
	}

	return batch, file.EntryPoint, nil
}
