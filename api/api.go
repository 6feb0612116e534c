package api

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	apiErrs "github.com/zeroknots/lazyaccount/api/errors"
	"github.com/zeroknots/lazyaccount/config"
	"github.com/zeroknots/lazyaccount/metrics"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/account"
	"github.com/zeroknots/lazyaccount/services/erc7579"
	"github.com/zeroknots/lazyaccount/storage"
	storageErrs "github.com/zeroknots/lazyaccount/storage/errors"
)

// Version is set at build time.
var Version = "development"

const LazyNamespace = "lazy"

const (
	LazyDeriveNonceKey        = "lazy_deriveNonceKey"
	LazyEncodeExecutions      = "lazy_encodeExecutions"
	LazyEncodeInstallModule   = "lazy_encodeInstallModule"
	LazyEncodeUninstallModule = "lazy_encodeUninstallModule"
	LazyPlanAccount           = "lazy_planAccount"
	LazyBuildUserOperation    = "lazy_buildUserOperation"
	LazyGetUserOperation      = "lazy_getUserOperation"
	LazyUserOperations        = "lazy_userOperations"
)

func SupportedAPIs(accountAPI *AccountAPI) []rpc.API {
	return []rpc.API{{
		Namespace: LazyNamespace,
		Service:   accountAPI,
	}}
}

// AccountAPI builds call data and unsigned user operations for Safe7579
// accounts. Nothing is signed or submitted through it.
type AccountAPI struct {
	logger      zerolog.Logger
	config      config.Config
	accounts    *account.Service
	journal     storage.UserOperationIndexer
	rateLimiter RateLimiter
	collector   metrics.Collector
}

func NewAccountAPI(
	logger zerolog.Logger,
	config config.Config,
	accounts *account.Service,
	journal storage.UserOperationIndexer,
	rateLimiter RateLimiter,
	collector metrics.Collector,
) *AccountAPI {
	return &AccountAPI{
		logger:      logger.With().Str("component", "account-api").Logger(),
		config:      config,
		accounts:    accounts,
		journal:     journal,
		rateLimiter: rateLimiter,
		collector:   collector,
	}
}

// DeriveNonceKey returns the 192-bit entry point nonce key selecting the validator.
func (a *AccountAPI) DeriveNonceKey(ctx context.Context, validator common.Address) (hexutil.Bytes, error) {
	if err := a.rateLimiter.Apply(ctx, LazyDeriveNonceKey); err != nil {
		return nil, err
	}

	key := models.DeriveNonceKey(validator)
	return key[:], nil
}

// EncodeExecutions returns the account execute call running the executions.
// A single execution uses the single call mode, more use the batch mode.
func (a *AccountAPI) EncodeExecutions(ctx context.Context, executions []models.ExecutionArgs) (hexutil.Bytes, error) {
	l := a.logger.With().Str("endpoint", LazyEncodeExecutions).Logger()

	if err := a.rateLimiter.Apply(ctx, LazyEncodeExecutions); err != nil {
		return nil, err
	}

	batch, err := toExecutionBatch(executions)
	if err != nil {
		return handleError[hexutil.Bytes](err, l, a.collector)
	}

	data, err := erc7579.EncodeExecutions(batch)
	if err != nil {
		return handleError[hexutil.Bytes](err, l, a.collector)
	}

	return data, nil
}

func (a *AccountAPI) EncodeInstallModule(ctx context.Context, args ModuleCallArgs) (hexutil.Bytes, error) {
	l := a.logger.With().Str("endpoint", LazyEncodeInstallModule).Logger()

	if err := a.rateLimiter.Apply(ctx, LazyEncodeInstallModule); err != nil {
		return nil, err
	}

	data, err := erc7579.EncodeInstallModule(args.typeIDs(), args.Module, args.Data)
	if err != nil {
		return handleError[hexutil.Bytes](err, l, a.collector)
	}

	return data, nil
}

func (a *AccountAPI) EncodeUninstallModule(ctx context.Context, args ModuleCallArgs) (hexutil.Bytes, error) {
	l := a.logger.With().Str("endpoint", LazyEncodeUninstallModule).Logger()

	if err := a.rateLimiter.Apply(ctx, LazyEncodeUninstallModule); err != nil {
		return nil, err
	}

	data, err := erc7579.EncodeUninstallModule(args.typeIDs(), args.Module, args.Data)
	if err != nil {
		return handleError[hexutil.Bytes](err, l, a.collector)
	}

	return data, nil
}

// PlanAccount predicts the address of a Safe7579 account and returns the
// calls deploying it.
func (a *AccountAPI) PlanAccount(ctx context.Context, params models.AccountInitParams) (*models.DeploymentPlan, error) {
	l := a.logger.With().Str("endpoint", LazyPlanAccount).Logger()

	if err := a.rateLimiter.Apply(ctx, LazyPlanAccount); err != nil {
		return nil, err
	}

	plan, err := a.accounts.Plan(ctx, params)
	if err != nil {
		return handleError[*models.DeploymentPlan](err, l, a.collector)
	}

	return plan, nil
}

// BuildUserOperation assembles an unsigned user operation for the sender,
// fetching its nonce and attaching the deployment when it has no code yet.
// The result carries the hash the account signer has to sign.
func (a *AccountAPI) BuildUserOperation(ctx context.Context, args BuildUserOperationArgs) (*UserOperationResult, error) {
	l := a.logger.With().
		Str("endpoint", LazyBuildUserOperation).
		Str("sender", args.Sender.Hex()).
		Logger()

	if err := a.rateLimiter.Apply(ctx, LazyBuildUserOperation); err != nil {
		return nil, err
	}

	op, err := a.accounts.Build(ctx, args.target(), args.CallData)
	if err != nil {
		return handleError[*UserOperationResult](err, l, a.collector)
	}

	hash, err := a.accounts.UserOpHash(ctx, op)
	if err != nil {
		return handleError[*UserOperationResult](err, l, a.collector)
	}

	return &UserOperationResult{
		UserOperation: op,
		UserOpHash:    hash,
		EntryPoint:    a.accounts.EntryPoint(),
	}, nil
}

// GetUserOperation returns a journaled operation, or nil when it is unknown.
func (a *AccountAPI) GetUserOperation(ctx context.Context, hash common.Hash) (*storage.UserOperationRecord, error) {
	l := a.logger.With().
		Str("endpoint", LazyGetUserOperation).
		Str("hash", hash.Hex()).
		Logger()

	if err := a.rateLimiter.Apply(ctx, LazyGetUserOperation); err != nil {
		return nil, err
	}

	record, err := a.journal.Get(hash)
	if err != nil {
		return handleError[*storage.UserOperationRecord](err, l, a.collector)
	}

	return record, nil
}

// UserOperations lists journaled operations newest first.
func (a *AccountAPI) UserOperations(
	ctx context.Context,
	sender *common.Address,
	limit *hexutil.Uint,
) ([]*storage.UserOperationRecord, error) {
	l := a.logger.With().Str("endpoint", LazyUserOperations).Logger()

	if err := a.rateLimiter.Apply(ctx, LazyUserOperations); err != nil {
		return nil, err
	}

	n := 0
	if limit != nil {
		n = int(*limit)
	}

	records, err := a.journal.List(sender, n)
	if err != nil {
		return handleError[[]*storage.UserOperationRecord](err, l, a.collector)
	}

	return records, nil
}

func toExecutionBatch(executions []models.ExecutionArgs) (models.ExecutionBatch, error) {
	batch := models.NewExecutionBatch()
	for _, args := range executions {
		e, err := args.ToExecution()
		if err != nil {
			return models.ExecutionBatch{}, err
		}
		batch = batch.Append(e)
	}
	return batch, nil
}

func handleError[T any](err error, log zerolog.Logger, collector metrics.Collector) (T, error) {
	var (
		zero     T
		mismatch *errs.AddressMismatchError
	)

	switch {
	// returning nil and nil for not found resources
	case errors.Is(err, storageErrs.ErrNotFound):
		return zero, nil
	case errors.As(err, &mismatch):
		return zero, mismatch
	case errors.Is(err, errs.ErrInvalid),
		errors.Is(err, errs.ErrEmptyBatch),
		errors.Is(err, errs.ErrUnsupportedModuleTypeCount),
		errors.Is(err, errs.ErrValidatorNotFound),
		errors.Is(err, errs.ErrExecutionValueOverflow),
		errors.Is(err, errs.ErrAccountNotDeployed),
		errors.Is(err, errs.ErrAccountDeployed),
		errors.Is(err, errs.ErrUnsupportedEntryPoint),
		errors.Is(err, errs.ErrOracleUnavailable):
		return zero, err
	default:
		collector.ApiErrorOccurred()
		log.Error().Err(err).Msg("api error")
		return zero, apiErrs.ErrInternal
	}
}

// ModuleCallArgs are the arguments of installModule and uninstallModule.
type ModuleCallArgs struct {
	ModuleTypeIDs []*hexutil.Big `json:"moduleTypeIds"`
	Module        common.Address `json:"module"`
	Data          hexutil.Bytes  `json:"data"`
}

func (m ModuleCallArgs) typeIDs() []*big.Int {
	ids := make([]*big.Int, 0, len(m.ModuleTypeIDs))
	for _, id := range m.ModuleTypeIDs {
		if id != nil {
			ids = append(ids, id.ToInt())
		}
	}
	return ids
}

type BuildUserOperationArgs struct {
	Sender    common.Address            `json:"sender"`
	Validator *common.Address           `json:"validator,omitempty"`
	CallData  hexutil.Bytes             `json:"callData"`
	Init      *models.AccountInitParams `json:"init,omitempty"`
}

func (b BuildUserOperationArgs) target() account.Target {
	return account.Target{
		Address:   b.Sender,
		Validator: b.Validator,
		Init:      b.Init,
	}
}

type UserOperationResult struct {
	UserOperation *models.PackedUserOperation `json:"userOperation"`
	UserOpHash    common.Hash                 `json:"userOpHash"`
	EntryPoint    common.Address              `json:"entryPoint"`
}
