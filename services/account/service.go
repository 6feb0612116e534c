package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zeroknots/lazyaccount/config"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/erc7579"
	"github.com/zeroknots/lazyaccount/services/requester"
	"github.com/zeroknots/lazyaccount/services/safe7579"
	"github.com/zeroknots/lazyaccount/services/signer"
	"github.com/zeroknots/lazyaccount/services/userop"
	"github.com/zeroknots/lazyaccount/storage"
)

// Target identifies the smart account an operation is built for.
type Target struct {
	Address common.Address
	// Validator selects the nonce key. When nil the first validator of Init is used.
	Validator *common.Address
	// Init allows an undeployed account to be deployed by the operation.
	Init *models.AccountInitParams
}

func (t Target) nonceKey() (models.NonceKey, error) {
	if t.Validator != nil {
		return models.DeriveNonceKey(*t.Validator), nil
	}
	if t.Init != nil {
		return models.NonceKeyFromValidators(t.Init.Validators)
	}
	return models.NonceKey{}, errs.ErrValidatorNotFound
}

// Submission is a user operation handed to the bundler, or a draft of one
// when Submitted is false.
type Submission struct {
	Hash       common.Hash                  `json:"userOpHash"`
	EntryPoint common.Address               `json:"entryPoint"`
	Operation  *models.PackedUserOperation  `json:"userOperation"`
	Submitted  bool                         `json:"submitted"`
	Receipt    *models.UserOperationReceipt `json:"receipt,omitempty"`
}

// Service builds, signs and submits user operations for Safe7579 accounts.
type Service struct {
	oracle  requester.ChainOracle
	planner *safe7579.Planner
	journal storage.UserOperationIndexer
	signer  signer.Signer
	config  config.Config
	logger  zerolog.Logger
	dryRun  bool
}

// NewService wires the account service. A nil journal disables journaling
// and a nil signer leaves operations unsigned.
func NewService(
	oracle requester.ChainOracle,
	planner *safe7579.Planner,
	journal storage.UserOperationIndexer,
	opSigner signer.Signer,
	config config.Config,
	logger zerolog.Logger,
) *Service {
	if opSigner == nil {
		opSigner = signer.Unsigned{}
	}

	return &Service{
		oracle:  oracle,
		planner: planner,
		journal: journal,
		signer:  opSigner,
		config:  config,
		logger:  logger.With().Str("component", "account").Logger(),
	}
}

// WithDryRun returns a service whose Submit drafts operations instead of
// sending them to the bundler.
func (s *Service) WithDryRun() *Service {
	c := *s
	c.dryRun = true
	return &c
}

func (s *Service) EntryPoint() common.Address {
	return s.config.EntryPoint
}

// CheckEntryPoint fails with ErrUnsupportedEntryPoint when the bundler does
// not list the configured entry point. Oracles that cannot list entry points
// are trusted.
func (s *Service) CheckEntryPoint(ctx context.Context) error {
	source, ok := s.oracle.(requester.EntryPointSource)
	if !ok {
		return nil
	}

	entryPoints, err := source.SupportedEntryPoints(ctx)
	if err != nil {
		return errs.NewOracleUnavailableError("supportedEntryPoints", err)
	}
	for _, ep := range entryPoints {
		if ep == s.config.EntryPoint {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", errs.ErrUnsupportedEntryPoint, s.config.EntryPoint.Hex())
}

// UserOpHash returns the digest the account signer signs, bound to the
// configured entry point and the chain of the node.
func (s *Service) UserOpHash(ctx context.Context, op *models.PackedUserOperation) (common.Hash, error) {
	chainID, err := s.oracle.ChainID(ctx)
	if err != nil {
		return common.Hash{}, errs.NewOracleUnavailableError("chainId", err)
	}

	return userop.UserOpHash(op, s.config.EntryPoint, chainID)
}

// CheckUserOpHash asks the entry point for the hash of op and compares it
// with hash.
func (s *Service) CheckUserOpHash(ctx context.Context, op *models.PackedUserOperation, hash common.Hash) error {
	call, err := userop.EncodeGetUserOpHash(op)
	if err != nil {
		return err
	}

	ret, err := s.oracle.CallView(ctx, s.config.EntryPoint, call)
	if err != nil {
		return errs.NewOracleUnavailableError("getUserOpHash", err)
	}
	onChain, err := userop.DecodeGetUserOpHash(ret)
	if err != nil {
		return errs.NewOracleUnavailableError("getUserOpHash", err)
	}

	if onChain != hash {
		return fmt.Errorf("%w: local %s, entry point %s", errs.ErrUserOpHashMismatch, hash.Hex(), onChain.Hex())
	}
	return nil
}

// Deposit returns the balance the account holds at the entry point.
func (s *Service) Deposit(ctx context.Context, account common.Address) (*big.Int, error) {
	call, err := userop.EncodeBalanceOf(account)
	if err != nil {
		return nil, err
	}

	ret, err := s.oracle.CallView(ctx, s.config.EntryPoint, call)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("balanceOf", err)
	}
	balance, err := userop.DecodeBalanceOf(ret)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("balanceOf", err)
	}
	return balance, nil
}

func (s *Service) IsDeployed(ctx context.Context, address common.Address) (bool, error) {
	code, err := s.oracle.GetCode(ctx, address)
	if err != nil {
		return false, errs.NewOracleUnavailableError("getCode", err)
	}
	return len(code) > 0, nil
}

// Nonce returns the full entry point nonce of the account for the validator key.
func (s *Service) Nonce(ctx context.Context, address common.Address, validator common.Address) (*big.Int, error) {
	key := models.DeriveNonceKey(validator)

	seq, err := s.oracle.GetNonceSequence(ctx, s.config.EntryPoint, address, key)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("getNonce", err)
	}

	return models.ComposeNonce(key, seq), nil
}

// Plan returns the deployment plan of the account described by params.
func (s *Service) Plan(ctx context.Context, params models.AccountInitParams) (*models.DeploymentPlan, error) {
	return s.planner.Plan(ctx, params)
}

// Build assembles an unsigned operation running callData on the target. The
// deployment check and the nonce lookup run concurrently. Undeployed targets
// need init params so the operation can deploy them.
func (s *Service) Build(ctx context.Context, target Target, callData []byte) (*models.PackedUserOperation, error) {
	key, err := target.nonceKey()
	if err != nil {
		return nil, err
	}

	var (
		deployed bool
		seq      uint64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deployed, err = s.IsDeployed(gCtx, target.Address)
		return err
	})
	g.Go(func() error {
		var err error
		seq, err = s.oracle.GetNonceSequence(gCtx, s.config.EntryPoint, target.Address, key)
		if err != nil {
			return errs.NewOracleUnavailableError("getNonce", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var plan *models.DeploymentPlan
	if !deployed {
		if target.Init == nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrAccountNotDeployed, target.Address.Hex())
		}

		plan, err = s.planner.Plan(ctx, *target.Init)
		if err != nil {
			return nil, err
		}
	}

	return userop.Assemble(
		target.Address,
		models.ComposeNonce(key, seq),
		callData,
		plan,
		s.config.GasOverrides(),
	)
}

func (s *Service) sign(ctx context.Context, op *models.PackedUserOperation) (models.PackedUserOperation, error) {
	signature, err := s.signer.SignUserOperation(ctx, op, s.config.EntryPoint)
	if err != nil {
		return models.PackedUserOperation{}, fmt.Errorf("failed to sign user operation: %w", err)
	}
	return op.WithSignature(signature), nil
}

// Draft signs the operation and computes its hash without sending it.
func (s *Service) Draft(ctx context.Context, op *models.PackedUserOperation) (*Submission, error) {
	signed, err := s.sign(ctx, op)
	if err != nil {
		return nil, err
	}

	hash, err := s.UserOpHash(ctx, &signed)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("hash", hash.Hex()).
		Str("sender", signed.Sender.Hex()).
		Str("nonce", signed.Nonce.String()).
		Msg("user operation drafted")

	return &Submission{
		Hash:       hash,
		EntryPoint: s.config.EntryPoint,
		Operation:  &signed,
	}, nil
}

// Submit signs the operation, hands it to the bundler and journals it. In
// dry run mode it only drafts the operation.
func (s *Service) Submit(ctx context.Context, op *models.PackedUserOperation) (*Submission, error) {
	if s.dryRun {
		return s.Draft(ctx, op)
	}

	entryPoint := s.config.EntryPoint

	signed, err := s.sign(ctx, op)
	if err != nil {
		return nil, err
	}

	hash, err := s.oracle.SubmitOperation(ctx, &signed, entryPoint)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("sendUserOperation", err)
	}

	s.logger.Info().
		Str("hash", hash.Hex()).
		Str("sender", signed.Sender.Hex()).
		Str("nonce", signed.Nonce.String()).
		Bool("deploys", signed.Factory != nil).
		Msg("user operation accepted")

	if s.journal != nil {
		err := s.journal.Store(&storage.UserOperationRecord{
			Hash:        hash,
			EntryPoint:  entryPoint,
			Operation:   &signed,
			Status:      storage.StatusSubmitted,
			SubmittedAt: time.Now().UTC(),
		}, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("hash", hash.Hex()).Msg("failed to journal user operation")
		}
	}

	return &Submission{
		Hash:       hash,
		EntryPoint: entryPoint,
		Operation:  &signed,
		Submitted:  true,
	}, nil
}

// Execute runs the executions from the account in a single operation.
func (s *Service) Execute(ctx context.Context, target Target, batch models.ExecutionBatch) (*Submission, error) {
	callData, err := erc7579.EncodeExecutions(batch)
	if err != nil {
		return nil, err
	}

	return s.buildAndSubmit(ctx, target, callData)
}

func (s *Service) InstallModule(
	ctx context.Context,
	target Target,
	moduleType erc7579.ModuleType,
	module common.Address,
	initData []byte,
) (*Submission, error) {
	callData, err := erc7579.EncodeInstallModule([]*big.Int{moduleType.Big()}, module, initData)
	if err != nil {
		return nil, err
	}

	return s.buildAndSubmit(ctx, target, callData)
}

func (s *Service) UninstallModule(
	ctx context.Context,
	target Target,
	moduleType erc7579.ModuleType,
	module common.Address,
	deInitData []byte,
) (*Submission, error) {
	callData, err := erc7579.EncodeUninstallModule([]*big.Int{moduleType.Big()}, module, deInitData)
	if err != nil {
		return nil, err
	}

	return s.buildAndSubmit(ctx, target, callData)
}

func (s *Service) IsModuleInstalled(
	ctx context.Context,
	account common.Address,
	moduleType erc7579.ModuleType,
	module common.Address,
	additionalContext []byte,
) (bool, error) {
	call, err := erc7579.EncodeIsModuleInstalled([]*big.Int{moduleType.Big()}, module, additionalContext)
	if err != nil {
		return false, err
	}

	ret, err := s.oracle.CallView(ctx, account, call)
	if err != nil {
		return false, errs.NewOracleUnavailableError("isModuleInstalled", err)
	}

	installed, err := erc7579.DecodeIsModuleInstalled(ret)
	if err != nil {
		return false, errs.NewOracleUnavailableError("isModuleInstalled", err)
	}
	return installed, nil
}

func (s *Service) AccountID(ctx context.Context, account common.Address) (string, error) {
	call, err := erc7579.EncodeAccountID()
	if err != nil {
		return "", err
	}

	ret, err := s.oracle.CallView(ctx, account, call)
	if err != nil {
		return "", errs.NewOracleUnavailableError("accountId", err)
	}

	id, err := erc7579.DecodeAccountID(ret)
	if err != nil {
		return "", errs.NewOracleUnavailableError("accountId", err)
	}
	return id, nil
}

// CreateAccount deploys the planned account. The first operation runs the
// launchpad setup on the freshly created proxy.
func (s *Service) CreateAccount(ctx context.Context, params models.AccountInitParams) (*Submission, error) {
	op, err := s.BuildCreateAccount(ctx, params)
	if err != nil {
		return nil, err
	}

	return s.Submit(ctx, op)
}

// BuildCreateAccount assembles the operation deploying an undeployed account.
func (s *Service) BuildCreateAccount(ctx context.Context, params models.AccountInitParams) (*models.PackedUserOperation, error) {
	plan, err := s.planner.Plan(ctx, params)
	if err != nil {
		return nil, err
	}

	deployed, err := s.IsDeployed(ctx, plan.PredictedAddress)
	if err != nil {
		return nil, err
	}
	if deployed {
		return nil, fmt.Errorf("%w: %s", errs.ErrAccountDeployed, plan.PredictedAddress.Hex())
	}

	key, err := models.NonceKeyFromValidators(params.Validators)
	if err != nil {
		return nil, err
	}
	seq, err := s.oracle.GetNonceSequence(ctx, s.config.EntryPoint, plan.PredictedAddress, key)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("getNonce", err)
	}

	return userop.Assemble(
		plan.PredictedAddress,
		models.ComposeNonce(key, seq),
		plan.SetupCallData,
		plan,
		s.config.GasOverrides(),
	)
}

// Wait blocks until the bundler reports the operation as included and
// records the outcome in the journal.
func (s *Service) Wait(ctx context.Context, hash common.Hash) (*models.UserOperationReceipt, error) {
	source, ok := s.oracle.(requester.ReceiptSource)
	if !ok {
		return nil, fmt.Errorf("oracle %T cannot report receipts", s.oracle)
	}

	receipt, err := source.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}

	if s.journal != nil {
		status := storage.StatusIncluded
		if !receipt.Success {
			status = storage.StatusReverted
		}

		var txHash *common.Hash
		if receipt.Receipt != nil {
			txHash = &receipt.Receipt.TransactionHash
		}

		if err := s.journal.UpdateStatus(hash, status, txHash, receipt.Reason); err != nil {
			s.logger.Warn().Err(err).Str("hash", hash.Hex()).Msg("failed to update journaled user operation")
		}
	}

	return receipt, nil
}

func (s *Service) buildAndSubmit(ctx context.Context, target Target, callData []byte) (*Submission, error) {
	op, err := s.Build(ctx, target, callData)
	if err != nil {
		return nil, err
	}

	return s.Submit(ctx, op)
}
