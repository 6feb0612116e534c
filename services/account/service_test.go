package account

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroknots/lazyaccount/config"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/erc7579"
	"github.com/zeroknots/lazyaccount/services/safe7579"
	"github.com/zeroknots/lazyaccount/services/signer"
	"github.com/zeroknots/lazyaccount/services/testutils"
	"github.com/zeroknots/lazyaccount/services/userop"
	"github.com/zeroknots/lazyaccount/storage"
	"github.com/zeroknots/lazyaccount/storage/pebble"
)

var (
	deployedAccount = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	predicted       = common.HexToAddress("0x5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a")
	validator       = common.HexToAddress("0x503b54Ed1E62365F0c9e4caF1479623b08acBe77")
	owner           = common.HexToAddress("0x4141414141414141414141414141414141414141")
	target          = common.HexToAddress("0x1111111111111111111111111111111111111111")
	initHash        = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

func initParams() *models.AccountInitParams {
	return &models.AccountInitParams{
		Salt:       common.HexToHash("0x01"),
		Owners:     []common.Address{owner},
		Validators: []common.Address{validator},
	}
}

func newTestService(t *testing.T, oracle *testutils.MockOracle, opSigner signer.Signer) (*Service, *pebble.UserOperations) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	store, err := pebble.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	journal := pebble.NewUserOperations(store)

	if oracle.CallViewFunc == nil {
		oracle.CallViewFunc = testutils.LaunchpadResponder(initHash, predicted, []byte{0x60, 0x80})
	}
	planner := safe7579.NewPlanner(safe7579.DefaultContracts(), oracle, logger)

	return NewService(oracle, planner, journal, opSigner, config.Default(), logger), journal
}

func TestService_Build(t *testing.T) {
	ctx := context.Background()
	callData := []byte{0xde, 0xad}

	t.Run("deployed account", func(t *testing.T) {
		oracle := &testutils.MockOracle{
			GetCodeFunc: testutils.DeployedCode(deployedAccount),
			GetNonceSequenceFunc: func(_ context.Context, ep, sender common.Address, key models.NonceKey) (uint64, error) {
				assert.Equal(t, config.Default().EntryPoint, ep)
				assert.Equal(t, deployedAccount, sender)
				assert.Equal(t, validator, key.Validator())
				return 5, nil
			},
		}
		service, _ := newTestService(t, oracle, nil)

		op, err := service.Build(ctx, Target{Address: deployedAccount, Validator: &validator}, callData)
		require.NoError(t, err)

		assert.Equal(t, deployedAccount, op.Sender)
		assert.Zero(t, models.ComposeNonce(models.DeriveNonceKey(validator), 5).Cmp(op.Nonce))
		assert.Equal(t, callData, op.CallData)
		assert.Nil(t, op.Factory)
		assert.Empty(t, op.Signature)
	})

	t.Run("undeployed account carries the factory call", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{}, nil)

		op, err := service.Build(ctx, Target{Address: predicted, Init: initParams()}, callData)
		require.NoError(t, err)

		require.NotNil(t, op.Factory)
		assert.Equal(t, safe7579.DefaultProxyFactoryAddress, *op.Factory)
		assert.Zero(t, models.ComposeNonce(models.DeriveNonceKey(validator), 0).Cmp(op.Nonce))
	})

	t.Run("undeployed account without init params", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{}, nil)

		_, err := service.Build(ctx, Target{Address: deployedAccount, Validator: &validator}, callData)
		require.ErrorIs(t, err, errs.ErrAccountNotDeployed)
	})

	t.Run("sender differs from the planned address", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{}, nil)

		_, err := service.Build(ctx, Target{Address: deployedAccount, Init: initParams()}, callData)
		require.ErrorIs(t, err, errs.ErrAddressMismatch)

		var mismatch *errs.AddressMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, predicted, mismatch.Predicted)
	})

	t.Run("no validator", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{}, nil)

		_, err := service.Build(ctx, Target{Address: deployedAccount}, callData)
		require.ErrorIs(t, err, errs.ErrValidatorNotFound)
	})

	t.Run("nonce lookup fails", func(t *testing.T) {
		cause := errors.New("connection refused")
		oracle := &testutils.MockOracle{
			GetCodeFunc: testutils.DeployedCode(deployedAccount),
			GetNonceSequenceFunc: func(context.Context, common.Address, common.Address, models.NonceKey) (uint64, error) {
				return 0, cause
			},
		}
		service, _ := newTestService(t, oracle, nil)

		_, err := service.Build(ctx, Target{Address: deployedAccount, Validator: &validator}, callData)
		require.ErrorIs(t, err, errs.ErrOracleUnavailable)
		require.ErrorIs(t, err, cause)
	})

	t.Run("cancelled context", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{}, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := service.Build(cancelled, Target{Address: predicted, Init: initParams()}, callData)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestService_Execute(t *testing.T) {
	ctx := context.Background()
	oracle := &testutils.MockOracle{GetCodeFunc: testutils.DeployedCode(deployedAccount)}
	service, journal := newTestService(t, oracle, signer.Static{0x01, 0x02})

	batch := models.NewExecutionBatch(
		models.NewExecution(target, big.NewInt(1), nil),
		models.NewExecution(target, big.NewInt(2), []byte{0x12}),
	)

	submission, err := service.Execute(ctx, Target{Address: deployedAccount, Validator: &validator}, batch)
	require.NoError(t, err)

	submitted := oracle.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, []byte{0x01, 0x02}, submitted[0].Signature)

	decoded, err := erc7579.DecodeExecutions(submitted[0].CallData)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Len())

	record, err := journal.Get(submission.Hash)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSubmitted, record.Status)
	assert.True(t, submitted[0].Equal(*record.Operation))

	t.Run("empty batch", func(t *testing.T) {
		_, err := service.Execute(ctx, Target{Address: deployedAccount, Validator: &validator}, models.NewExecutionBatch())
		require.ErrorIs(t, err, errs.ErrEmptyBatch)
	})
}

func TestService_Modules(t *testing.T) {
	ctx := context.Background()
	module := common.HexToAddress("0x2222222222222222222222222222222222222222")

	isInstalled, err := erc7579.Selector("isModuleInstalled")
	require.NoError(t, err)
	accountID, err := erc7579.Selector("accountId")
	require.NoError(t, err)

	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)

	oracle := &testutils.MockOracle{
		GetCodeFunc: testutils.DeployedCode(deployedAccount),
		CallViewFunc: func(_ context.Context, contract common.Address, data []byte) ([]byte, error) {
			require.Equal(t, deployedAccount, contract)
			switch {
			case bytes.Equal(data[:4], isInstalled[:]):
				return common.LeftPadBytes([]byte{0x01}, 32), nil
			case bytes.Equal(data[:4], accountID[:]):
				return abi.Arguments{{Type: stringType}}.Pack("rhinestone.safe7579.v1.0.0")
			}
			return nil, errors.New("unexpected call")
		},
	}
	service, _ := newTestService(t, oracle, nil)

	t.Run("install", func(t *testing.T) {
		_, err := service.InstallModule(ctx, Target{Address: deployedAccount, Validator: &validator}, erc7579.ModuleTypeExecutor, module, []byte{0xaa})
		require.NoError(t, err)

		submitted := oracle.Submitted()
		call, err := erc7579.DecodeModuleCall(submitted[len(submitted)-1].CallData)
		require.NoError(t, err)
		assert.Equal(t, "installModule", call.Method)
		assert.Equal(t, int64(2), call.TypeID.Int64())
		assert.Equal(t, module, call.Module)
		assert.Equal(t, []byte{0xaa}, call.Data)
	})

	t.Run("uninstall", func(t *testing.T) {
		_, err := service.UninstallModule(ctx, Target{Address: deployedAccount, Validator: &validator}, erc7579.ModuleTypeHook, module, nil)
		require.NoError(t, err)

		submitted := oracle.Submitted()
		call, err := erc7579.DecodeModuleCall(submitted[len(submitted)-1].CallData)
		require.NoError(t, err)
		assert.Equal(t, "uninstallModule", call.Method)
		assert.Equal(t, int64(4), call.TypeID.Int64())
	})

	t.Run("is installed", func(t *testing.T) {
		installed, err := service.IsModuleInstalled(ctx, deployedAccount, erc7579.ModuleTypeValidator, module, nil)
		require.NoError(t, err)
		assert.True(t, installed)
	})

	t.Run("account id", func(t *testing.T) {
		id, err := service.AccountID(ctx, deployedAccount)
		require.NoError(t, err)
		assert.Equal(t, "rhinestone.safe7579.v1.0.0", id)
	})
}

func TestService_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("submits the setup call", func(t *testing.T) {
		oracle := &testutils.MockOracle{}
		service, _ := newTestService(t, oracle, nil)

		submission, err := service.CreateAccount(ctx, *initParams())
		require.NoError(t, err)

		plan, err := service.Plan(ctx, *initParams())
		require.NoError(t, err)

		op := submission.Operation
		assert.Equal(t, predicted, op.Sender)
		assert.Equal(t, []byte(plan.SetupCallData), op.CallData)
		require.NotNil(t, op.Factory)
		assert.Equal(t, plan.FactoryAddress, *op.Factory)
		assert.Equal(t, []byte(plan.FactoryCallData), op.FactoryData)
		assert.Len(t, oracle.Submitted(), 1)
	})

	t.Run("already deployed", func(t *testing.T) {
		oracle := &testutils.MockOracle{GetCodeFunc: testutils.DeployedCode(predicted)}
		service, _ := newTestService(t, oracle, nil)

		_, err := service.CreateAccount(ctx, *initParams())
		require.ErrorIs(t, err, errs.ErrAccountDeployed)
		assert.Empty(t, oracle.Submitted())
	})

	t.Run("rejected by the bundler", func(t *testing.T) {
		oracle := &testutils.MockOracle{
			SubmitOperationFunc: func(context.Context, *models.PackedUserOperation, common.Address) (common.Hash, error) {
				return common.Hash{}, errors.New("AA10 sender already constructed")
			},
		}
		service, journal := newTestService(t, oracle, nil)

		_, err := service.CreateAccount(ctx, *initParams())
		require.ErrorIs(t, err, errs.ErrOracleUnavailable)

		count, err := journal.Count()
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestService_Wait(t *testing.T) {
	ctx := context.Background()
	txHash := common.HexToHash("0xbeef")

	oracle := &testutils.MockOracle{
		GetCodeFunc: testutils.DeployedCode(deployedAccount),
		GetUserOperationReceiptFunc: func(_ context.Context, hash common.Hash) (*models.UserOperationReceipt, error) {
			return &models.UserOperationReceipt{
				UserOpHash: hash,
				Success:    false,
				Reason:     "execution reverted",
				Receipt:    &models.TransactionReceipt{TransactionHash: txHash},
			}, nil
		},
	}
	service, journal := newTestService(t, oracle, nil)

	batch := models.NewExecutionBatch(models.NewExecution(target, nil, nil))
	submission, err := service.Execute(ctx, Target{Address: deployedAccount, Validator: &validator}, batch)
	require.NoError(t, err)

	receipt, err := service.Wait(ctx, submission.Hash)
	require.NoError(t, err)
	assert.False(t, receipt.Success)

	record, err := journal.Get(submission.Hash)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReverted, record.Status)
	assert.Equal(t, txHash, *record.TransactionHash)
	assert.Equal(t, "execution reverted", record.Reason)
}

func TestService_Nonce(t *testing.T) {
	oracle := &testutils.MockOracle{
		GetNonceSequenceFunc: func(context.Context, common.Address, common.Address, models.NonceKey) (uint64, error) {
			return 42, nil
		},
	}
	service, _ := newTestService(t, oracle, nil)

	nonce, err := service.Nonce(context.Background(), deployedAccount, validator)
	require.NoError(t, err)

	key, seq := models.SplitNonce(nonce)
	assert.Equal(t, validator, key.Validator())
	assert.Equal(t, uint64(42), seq)
}

func TestService_DryRun(t *testing.T) {
	ctx := context.Background()
	oracle := &testutils.MockOracle{GetCodeFunc: testutils.DeployedCode(deployedAccount)}
	service, journal := newTestService(t, oracle, signer.Static{0xaa})
	dryRun := service.WithDryRun()

	batch := models.NewExecutionBatch(models.NewExecution(target, big.NewInt(1), nil))
	draft, err := dryRun.Execute(ctx, Target{Address: deployedAccount, Validator: &validator}, batch)
	require.NoError(t, err)

	assert.False(t, draft.Submitted)
	assert.Empty(t, oracle.Submitted())
	assert.Equal(t, []byte{0xaa}, draft.Operation.Signature)

	expected, err := userop.UserOpHash(draft.Operation, config.Default().EntryPoint, testutils.MockChainID)
	require.NoError(t, err)
	assert.Equal(t, expected, draft.Hash)

	count, err := journal.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	t.Run("original service still submits", func(t *testing.T) {
		submission, err := service.Execute(ctx, Target{Address: deployedAccount, Validator: &validator}, batch)
		require.NoError(t, err)
		assert.True(t, submission.Submitted)
		assert.Len(t, oracle.Submitted(), 1)
		assert.Equal(t, draft.Hash, submission.Hash)
	})

	t.Run("create account draft", func(t *testing.T) {
		created, err := dryRun.CreateAccount(ctx, *initParams())
		require.NoError(t, err)
		assert.False(t, created.Submitted)
		assert.Equal(t, predicted, created.Operation.Sender)
		assert.Len(t, oracle.Submitted(), 1)
	})
}

func TestService_UserOpHash(t *testing.T) {
	ctx := context.Background()
	op, err := userop.Assemble(deployedAccount, big.NewInt(0), []byte{0x01}, nil, userop.Overrides{})
	require.NoError(t, err)

	t.Run("bound to the node chain", func(t *testing.T) {
		oracle := &testutils.MockOracle{
			ChainIDFunc: func(context.Context) (*big.Int, error) { return big.NewInt(11155111), nil },
		}
		service, _ := newTestService(t, oracle, nil)

		hash, err := service.UserOpHash(ctx, op)
		require.NoError(t, err)

		expected, err := op.Hash(config.Default().EntryPoint, big.NewInt(11155111))
		require.NoError(t, err)
		assert.Equal(t, expected, hash)
	})

	t.Run("chain id unavailable", func(t *testing.T) {
		oracle := &testutils.MockOracle{
			ChainIDFunc: func(context.Context) (*big.Int, error) { return nil, errors.New("connection refused") },
		}
		service, _ := newTestService(t, oracle, nil)

		_, err := service.UserOpHash(ctx, op)
		require.ErrorIs(t, err, errs.ErrOracleUnavailable)
	})
}

func TestService_EntryPointCalls(t *testing.T) {
	ctx := context.Background()
	entryPoint := config.Default().EntryPoint

	op, err := userop.Assemble(deployedAccount, big.NewInt(0), []byte{0x01}, nil, userop.Overrides{})
	require.NoError(t, err)
	localHash, err := op.Hash(entryPoint, testutils.MockChainID)
	require.NoError(t, err)

	getUserOpHash := crypto.Keccak256([]byte(
		"getUserOpHash((address,uint256,bytes,bytes,bytes32,uint256,bytes32,bytes,bytes))",
	))[:4]
	balanceOf := crypto.Keccak256([]byte("balanceOf(address)"))[:4]

	entryPointResponder := func(onChainHash common.Hash) func(context.Context, common.Address, []byte) ([]byte, error) {
		return func(_ context.Context, contract common.Address, data []byte) ([]byte, error) {
			require.Equal(t, entryPoint, contract)
			switch {
			case bytes.Equal(data[:4], getUserOpHash):
				return onChainHash.Bytes(), nil
			case bytes.Equal(data[:4], balanceOf):
				return common.LeftPadBytes(big.NewInt(5_000).Bytes(), 32), nil
			}
			return nil, errors.New("unexpected call")
		}
	}

	t.Run("hash matches the entry point", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{CallViewFunc: entryPointResponder(localHash)}, nil)
		require.NoError(t, service.CheckUserOpHash(ctx, op, localHash))
	})

	t.Run("hash differs from the entry point", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{CallViewFunc: entryPointResponder(common.HexToHash("0x01"))}, nil)
		require.ErrorIs(t, service.CheckUserOpHash(ctx, op, localHash), errs.ErrUserOpHashMismatch)
	})

	t.Run("deposit", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{CallViewFunc: entryPointResponder(localHash)}, nil)

		deposit, err := service.Deposit(ctx, deployedAccount)
		require.NoError(t, err)
		assert.Equal(t, int64(5_000), deposit.Int64())
	})
}

func TestService_CheckEntryPoint(t *testing.T) {
	ctx := context.Background()

	t.Run("supported", func(t *testing.T) {
		service, _ := newTestService(t, &testutils.MockOracle{}, nil)
		require.NoError(t, service.CheckEntryPoint(ctx))
	})

	t.Run("not supported", func(t *testing.T) {
		oracle := &testutils.MockOracle{
			SupportedEntryPointsFunc: func(context.Context) ([]common.Address, error) {
				return []common.Address{common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")}, nil
			},
		}
		service, _ := newTestService(t, oracle, nil)
		require.ErrorIs(t, service.CheckEntryPoint(ctx), errs.ErrUnsupportedEntryPoint)
	})

	t.Run("bundler unavailable", func(t *testing.T) {
		oracle := &testutils.MockOracle{
			SupportedEntryPointsFunc: func(context.Context) ([]common.Address, error) {
				return nil, errors.New("connection refused")
			},
		}
		service, _ := newTestService(t, oracle, nil)
		require.ErrorIs(t, service.CheckEntryPoint(ctx), errs.ErrOracleUnavailable)
	})
}
