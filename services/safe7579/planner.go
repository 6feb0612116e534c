package safe7579

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

var (
	DefaultSafe7579Address     = common.HexToAddress("0x7579F9feedf32331C645828139aFF78d517d0001")
	DefaultLaunchpadAddress    = common.HexToAddress("0x75796e975bD270d487Be50b4e9797780360400ff")
	DefaultSafeSingleton       = common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762")
	DefaultProxyFactoryAddress = common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
)

const creationCodeCacheTTL = time.Hour

// ViewCaller executes read-only contract calls.
type ViewCaller interface {
	CallView(ctx context.Context, contract common.Address, data []byte) ([]byte, error)
}

// Contracts are the deployed contracts a Safe7579 account is built from.
type Contracts struct {
	Safe7579      common.Address
	Launchpad     common.Address
	SafeSingleton common.Address
	ProxyFactory  common.Address
	// ProxyCreationCode is the SafeProxy creation code. When empty it is read
	// from the proxy factory.
	ProxyCreationCode []byte
}

func DefaultContracts() Contracts {
	return Contracts{
		Safe7579:      DefaultSafe7579Address,
		Launchpad:     DefaultLaunchpadAddress,
		SafeSingleton: DefaultSafeSingleton,
		ProxyFactory:  DefaultProxyFactoryAddress,
	}
}

// Planner computes counterfactual deployment plans for Safe7579 accounts.
// It is safe for concurrent use.
type Planner struct {
	contracts     Contracts
	oracle        ViewCaller
	logger        zerolog.Logger
	creationCodes *expirable.LRU[common.Address, []byte]
}

func NewPlanner(contracts Contracts, oracle ViewCaller, logger zerolog.Logger) *Planner {
	return &Planner{
		contracts:     contracts,
		oracle:        oracle,
		logger:        logger.With().Str("component", "safe7579-planner").Logger(),
		creationCodes: expirable.NewLRU[common.Address, []byte](16, nil, creationCodeCacheTTL),
	}
}

func (p *Planner) Contracts() Contracts {
	return p.contracts
}

// InitData builds the launchpad aggregate for the given account params.
func (p *Planner) InitData(params models.AccountInitParams) (InitData, error) {
	setupData, err := EncodeInitSafe7579(p.contracts.Safe7579, params.Owners)
	if err != nil {
		return InitData{}, err
	}

	return InitData{
		Singleton:  p.contracts.SafeSingleton,
		Owners:     params.Owners,
		Threshold:  big.NewInt(1),
		SetupTo:    p.contracts.Launchpad,
		SetupData:  setupData,
		Safe7579:   p.contracts.Safe7579,
		Validators: ValidatorModules(params.Validators),
		CallData:   []byte{},
	}, nil
}

// Plan runs the deployment planning protocol. Both view calls go through the
// oracle; any failure aborts the plan and nothing partial is returned.
func (p *Planner) Plan(ctx context.Context, params models.AccountInitParams) (*models.DeploymentPlan, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	initData, err := p.InitData(params)
	if err != nil {
		return nil, err
	}

	hashCall, err := EncodeHash(initData)
	if err != nil {
		return nil, err
	}
	ret, err := p.oracle.CallView(ctx, p.contracts.Launchpad, hashCall)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("hash", err)
	}
	initHash, err := DecodeHash(ret)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("hash", err)
	}

	factoryInitializer, err := EncodePreValidationSetup(initHash, common.Address{}, nil)
	if err != nil {
		return nil, err
	}

	proxyCall, err := EncodeCreateProxyWithNonce(p.contracts.Launchpad, factoryInitializer, params.Salt)
	if err != nil {
		return nil, err
	}

	creationCode, err := p.proxyCreationCode(ctx)
	if err != nil {
		return nil, err
	}

	predictCall, err := EncodePredictSafeAddress(
		p.contracts.Launchpad,
		p.contracts.ProxyFactory,
		creationCode,
		params.Salt,
		factoryInitializer,
	)
	if err != nil {
		return nil, err
	}
	ret, err = p.oracle.CallView(ctx, p.contracts.Launchpad, predictCall)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("predictSafeAddress", err)
	}
	predicted, err := DecodePredictSafeAddress(ret)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("predictSafeAddress", err)
	}

	factoryCallData, err := EncodePackedFactoryCall(p.contracts.ProxyFactory, proxyCall)
	if err != nil {
		return nil, err
	}

	setupCallData, err := EncodeSetupSafe(initData)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("predicted-address", predicted.Hex()).
		Str("init-hash", initHash.Hex()).
		Str("salt", params.Salt.Hex()).
		Msg("planned account deployment")

	return &models.DeploymentPlan{
		PredictedAddress: predicted,
		FactoryAddress:   p.contracts.ProxyFactory,
		FactoryCallData:  factoryCallData,
		ProxyCallData:    proxyCall,
		InitHash:         initHash,
		SetupCallData:    setupCallData,
	}, nil
}

// proxyCreationCode returns the configured SafeProxy creation code or reads
// it once from the proxy factory.
func (p *Planner) proxyCreationCode(ctx context.Context) ([]byte, error) {
	if len(p.contracts.ProxyCreationCode) > 0 {
		return p.contracts.ProxyCreationCode, nil
	}

	if code, ok := p.creationCodes.Get(p.contracts.ProxyFactory); ok {
		return code, nil
	}

	call, err := EncodeProxyCreationCode()
	if err != nil {
		return nil, err
	}
	ret, err := p.oracle.CallView(ctx, p.contracts.ProxyFactory, call)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("proxyCreationCode", err)
	}
	code, err := DecodeProxyCreationCode(ret)
	if err != nil {
		return nil, errs.NewOracleUnavailableError("proxyCreationCode", err)
	}
	if len(code) == 0 {
		return nil, errs.NewOracleUnavailableError(
			"proxyCreationCode",
			fmt.Errorf("empty creation code from factory %s", p.contracts.ProxyFactory.Hex()),
		)
	}

	p.creationCodes.Add(p.contracts.ProxyFactory, code)
	return code, nil
}
