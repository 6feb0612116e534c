package erc7579

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// ModuleType is the ERC-7579 module type id.
type ModuleType uint64

const (
	ModuleTypeValidator ModuleType = 1
	ModuleTypeExecutor  ModuleType = 2
	ModuleTypeFallback  ModuleType = 3
	ModuleTypeHook      ModuleType = 4
)

func (m ModuleType) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(m))
}

func (m ModuleType) String() string {
	switch m {
	case ModuleTypeValidator:
		return "validator"
	case ModuleTypeExecutor:
		return "executor"
	case ModuleTypeFallback:
		return "fallback"
	case ModuleTypeHook:
		return "hook"
	default:
		return strconv.FormatUint(uint64(m), 10)
	}
}

// ParseModuleType accepts a module type name or its numeric id.
func ParseModuleType(s string) (ModuleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "validator":
		return ModuleTypeValidator, nil
	case "executor":
		return ModuleTypeExecutor, nil
	case "fallback":
		return ModuleTypeFallback, nil
	case "hook":
		return ModuleTypeHook, nil
	}

	id, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown module type %q", errs.ErrInvalid, s)
	}
	return ModuleType(id), nil
}

// ModuleCall is a decoded installModule, uninstallModule or
// isModuleInstalled call.
type ModuleCall struct {
	Method string
	TypeID *big.Int
	Module common.Address
	Data   []byte
}

// encodeModuleCall lays out `selector ‖ uint256(typeId) ‖ address ‖ data`.
// The trailing data is appended verbatim, with no offset, length or padding.
func encodeModuleCall(method string, typeIDs []*big.Int, module common.Address, data []byte) ([]byte, error) {
	if len(typeIDs) != 1 {
		return nil, fmt.Errorf("%w: got %d", errs.ErrUnsupportedModuleTypeCount, len(typeIDs))
	}

	typeID := typeIDs[0]
	if typeID == nil || typeID.Sign() < 0 || typeID.BitLen() > 256 {
		return nil, fmt.Errorf("%w: invalid module type id %v", errs.ErrInvalid, typeID)
	}

	m, ok := accountABIParsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown account method %s", method)
	}

	out := make([]byte, 0, 4+2*32+len(data))
	out = append(out, m.ID...)
	out = append(out, common.LeftPadBytes(typeID.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(module.Bytes(), 32)...)
	return append(out, data...), nil
}

// EncodeInstallModule builds an installModule call for exactly one module type.
func EncodeInstallModule(typeIDs []*big.Int, module common.Address, initData []byte) ([]byte, error) {
	return encodeModuleCall("installModule", typeIDs, module, initData)
}

// EncodeUninstallModule builds an uninstallModule call for exactly one module type.
func EncodeUninstallModule(typeIDs []*big.Int, module common.Address, deInitData []byte) ([]byte, error) {
	return encodeModuleCall("uninstallModule", typeIDs, module, deInitData)
}

func EncodeIsModuleInstalled(typeIDs []*big.Int, module common.Address, additionalContext []byte) ([]byte, error) {
	return encodeModuleCall("isModuleInstalled", typeIDs, module, additionalContext)
}

// DecodeModuleCall reads back a call built by one of the module encoders.
func DecodeModuleCall(calldata []byte) (*ModuleCall, error) {
	if len(calldata) < 4+2*32 {
		return nil, fmt.Errorf("%w: module call too short: %d bytes", errs.ErrInvalid, len(calldata))
	}

	for _, name := range []string{"installModule", "uninstallModule", "isModuleInstalled"} {
		m := accountABIParsed.Methods[name]
		if !bytes.Equal(calldata[:4], m.ID) {
			continue
		}

		return &ModuleCall{
			Method: name,
			TypeID: new(big.Int).SetBytes(calldata[4:36]),
			Module: common.BytesToAddress(calldata[36:68]),
			Data:   common.CopyBytes(calldata[68:]),
		}, nil
	}

	return nil, fmt.Errorf("%w: not a module call", errs.ErrInvalid)
}

// DecodeIsModuleInstalled reads the boolean returned by isModuleInstalled.
func DecodeIsModuleInstalled(ret []byte) (bool, error) {
	values, err := accountABIParsed.Unpack("isModuleInstalled", ret)
	if err != nil {
		return false, fmt.Errorf("failed to unpack isModuleInstalled result: %w", err)
	}
	installed, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isModuleInstalled result type %T", values[0])
	}
	return installed, nil
}

func EncodeAccountID() ([]byte, error) {
	data, err := accountABIParsed.Pack("accountId")
	if err != nil {
		return nil, fmt.Errorf("failed to encode accountId: %w", err)
	}
	return data, nil
}

func DecodeAccountID(ret []byte) (string, error) {
	values, err := accountABIParsed.Unpack("accountId", ret)
	if err != nil {
		return "", fmt.Errorf("failed to unpack accountId result: %w", err)
	}
	id, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected accountId result type %T", values[0])
	}
	return id, nil
}
