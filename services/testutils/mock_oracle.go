package testutils

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
	"github.com/zeroknots/lazyaccount/services/safe7579"
	"github.com/zeroknots/lazyaccount/services/userop"
)

// MockChainID is the chain id reported by MockOracle unless overridden.
var MockChainID = big.NewInt(1)

// MockOracle implements requester.ChainOracle, requester.ReceiptSource and
// requester.EntryPointSource. Unset functions fall back to an empty chain
// with id MockChainID: no code, zero sequence, and a bundler that accepts
// everything for the canonical v0.7 entry point.
type MockOracle struct {
	GetCodeFunc                 func(context.Context, common.Address) ([]byte, error)
	CallViewFunc                func(context.Context, common.Address, []byte) ([]byte, error)
	GetNonceSequenceFunc        func(context.Context, common.Address, common.Address, models.NonceKey) (uint64, error)
	SubmitOperationFunc         func(context.Context, *models.PackedUserOperation, common.Address) (common.Hash, error)
	ChainIDFunc                 func(context.Context) (*big.Int, error)
	SupportedEntryPointsFunc    func(context.Context) ([]common.Address, error)
	GetUserOperationReceiptFunc func(context.Context, common.Hash) (*models.UserOperationReceipt, error)

	mux       sync.Mutex
	submitted []*models.PackedUserOperation
}

func (m *MockOracle) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	if m.GetCodeFunc == nil {
		return nil, ctx.Err()
	}
	return m.GetCodeFunc(ctx, address)
}

func (m *MockOracle) CallView(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	if m.CallViewFunc == nil {
		return nil, fmt.Errorf("unexpected view call to %s", contract)
	}
	return m.CallViewFunc(ctx, contract, data)
}

func (m *MockOracle) GetNonceSequence(
	ctx context.Context,
	entryPoint common.Address,
	sender common.Address,
	key models.NonceKey,
) (uint64, error) {
	if m.GetNonceSequenceFunc == nil {
		return 0, ctx.Err()
	}
	return m.GetNonceSequenceFunc(ctx, entryPoint, sender, key)
}

func (m *MockOracle) SubmitOperation(
	ctx context.Context,
	op *models.PackedUserOperation,
	entryPoint common.Address,
) (common.Hash, error) {
	if m.SubmitOperationFunc != nil {
		hash, err := m.SubmitOperationFunc(ctx, op, entryPoint)
		if err != nil {
			return common.Hash{}, err
		}
		m.record(op)
		return hash, nil
	}

	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	m.record(op)
	return op.Hash(entryPoint, MockChainID)
}

func (m *MockOracle) ChainID(ctx context.Context) (*big.Int, error) {
	if m.ChainIDFunc == nil {
		return new(big.Int).Set(MockChainID), ctx.Err()
	}
	return m.ChainIDFunc(ctx)
}

func (m *MockOracle) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	if m.SupportedEntryPointsFunc == nil {
		return []common.Address{userop.DefaultEntryPoint}, ctx.Err()
	}
	return m.SupportedEntryPointsFunc(ctx)
}

func (m *MockOracle) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*models.UserOperationReceipt, error) {
	if m.GetUserOperationReceiptFunc == nil {
		return nil, nil
	}
	return m.GetUserOperationReceiptFunc(ctx, hash)
}

func (m *MockOracle) WaitForReceipt(ctx context.Context, hash common.Hash) (*models.UserOperationReceipt, error) {
	receipt, err := m.GetUserOperationReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("no receipt for %s", hash)
	}
	return receipt, nil
}

// Submitted returns the operations accepted so far, in submission order.
func (m *MockOracle) Submitted() []*models.PackedUserOperation {
	m.mux.Lock()
	defer m.mux.Unlock()

	out := make([]*models.PackedUserOperation, len(m.submitted))
	copy(out, m.submitted)
	return out
}

func (m *MockOracle) record(op *models.PackedUserOperation) {
	m.mux.Lock()
	defer m.mux.Unlock()

	cp := op.Copy()
	m.submitted = append(m.submitted, &cp)
}

// DeployedCode returns a GetCodeFunc reporting code only for the given addresses.
func DeployedCode(deployed ...common.Address) func(context.Context, common.Address) ([]byte, error) {
	return func(ctx context.Context, address common.Address) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, d := range deployed {
			if d == address {
				return []byte{0x60, 0x80, 0x60, 0x40}, nil
			}
		}
		return nil, nil
	}
}

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)
)

// LaunchpadResponder answers the view calls made while planning a Safe7579
// account with fixed results.
func LaunchpadResponder(
	initHash common.Hash,
	predicted common.Address,
	creationCode []byte,
) func(context.Context, common.Address, []byte) ([]byte, error) {
	return func(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := safe7579.MethodName(data)
		if err != nil {
			return nil, err
		}

		switch name {
		case "hash":
			return abi.Arguments{{Type: bytes32Type}}.Pack(initHash)
		case "predictSafeAddress":
			return abi.Arguments{{Type: addressType}}.Pack(predicted)
		case "proxyCreationCode":
			return abi.Arguments{{Type: bytesType}}.Pack(creationCode)
		}
		return nil, fmt.Errorf("unexpected call to %s on %s", name, contract)
	}
}
