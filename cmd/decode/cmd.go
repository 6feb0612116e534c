package decode

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/erc7579"
	"github.com/zeroknots/lazyaccount/services/userop"
)

var Cmd = &cobra.Command{
	Use:   "decode <calldata>",
	Short: "Decodes execute, module and handleOps call data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		calldata, err := hexutil.Decode(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("%w: calldata: %v", errs.ErrInvalid, err)
		}

		decoded, err := Decode(calldata)
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd, decoded)
	},
}

type ExecuteCall struct {
	Call       string                 `json:"call"`
	Mode       string                 `json:"mode"`
	Executions []models.ExecutionArgs `json:"executions"`
}

type ModuleCall struct {
	Call       string         `json:"call"`
	ModuleType string         `json:"moduleType"`
	Module     common.Address `json:"module"`
	Data       hexutil.Bytes  `json:"data"`
}

type HandleOpsCall struct {
	Call           string                        `json:"call"`
	Beneficiary    common.Address                `json:"beneficiary"`
	UserOperations []*models.PackedUserOperation `json:"userOperations"`
}

// Decode recognises the call by its selector.
func Decode(calldata []byte) (any, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("%w: calldata too short", errs.ErrInvalid)
	}

	execute, err := erc7579.Selector("execute")
	if err != nil {
		return nil, err
	}

	if [4]byte(calldata[:4]) == execute {
		return decodeExecute(calldata)
	}

	call, err := erc7579.DecodeModuleCall(calldata)
	if err == nil {
		return &ModuleCall{
			Call:       call.Method,
			ModuleType: erc7579.ModuleType(call.TypeID.Uint64()).String(),
			Module:     call.Module,
			Data:       call.Data,
		}, nil
	}

	ops, beneficiary, opsErr := userop.DecodeHandleOps(calldata)
	if opsErr == nil {
		return &HandleOpsCall{
			Call:           "handleOps",
			Beneficiary:    beneficiary,
			UserOperations: ops,
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown call %s", errs.ErrInvalid, hexutil.Encode(calldata[:4]))
}

func decodeExecute(calldata []byte) (*ExecuteCall, error) {
	mode, _, err := erc7579.DecodeExecute(calldata)
	if err != nil {
		return nil, err
	}

	batch, err := erc7579.DecodeExecutions(calldata)
	if err != nil {
		return nil, err
	}

	result := &ExecuteCall{
		Call:       "execute",
		Mode:       models.ModeSingle.String(),
		Executions: make([]models.ExecutionArgs, 0, batch.Len()),
	}
	if mode == models.ModeBatch.Bytes32() {
		result.Mode = models.ModeBatch.String()
	}

	for _, e := range batch.Executions() {
		result.Executions = append(result.Executions, models.ExecutionArgs{
			Target:   e.Target,
			Value:    e.ValueOrZero().String(),
			CallData: hexutil.Encode(e.CallData),
		})
	}
	return result, nil
}
