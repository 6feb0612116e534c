package requester

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/zeroknots/lazyaccount/config"
	"github.com/zeroknots/lazyaccount/metrics"
	"github.com/zeroknots/lazyaccount/models"
	"github.com/zeroknots/lazyaccount/services/userop"
)

const (
	EthSendUserOperation       = "eth_sendUserOperation"
	EthGetUserOperationReceipt = "eth_getUserOperationReceipt"
	EthSupportedEntryPoints    = "eth_supportedEntryPoints"
	EthGetCode                 = "eth_getCode"
	EthCall                    = "eth_call"
	EthChainID                 = "eth_chainId"
)

// ErrReceiptTimeout is returned when no receipt was observed within the
// configured wait duration.
var ErrReceiptTimeout = errors.New("user operation receipt not available")

// ChainOracle answers the chain queries needed to build user operations and
// hands finished operations to a bundler.
type ChainOracle interface {
	// GetCode returns the runtime code at the address in the latest state.
	// An empty result means no contract is deployed.
	GetCode(ctx context.Context, address common.Address) ([]byte, error)

	// CallView performs a read-only call against the latest state and returns
	// the raw return data.
	CallView(ctx context.Context, contract common.Address, data []byte) ([]byte, error)

	// GetNonceSequence returns the sequence component of the entry point nonce
	// for the sender under the given key.
	GetNonceSequence(
		ctx context.Context,
		entryPoint common.Address,
		sender common.Address,
		key models.NonceKey,
	) (uint64, error)

	// SubmitOperation sends the operation to the bundler and returns the
	// user operation hash the bundler reports.
	SubmitOperation(
		ctx context.Context,
		op *models.PackedUserOperation,
		entryPoint common.Address,
	) (common.Hash, error)

	// ChainID returns the chain id user operation hashes are bound to.
	ChainID(ctx context.Context) (*big.Int, error)
}

// EntryPointSource is implemented by oracles that can list the entry points
// their bundler accepts.
type EntryPointSource interface {
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

// ReceiptSource is implemented by oracles that can report inclusion of
// submitted operations.
type ReceiptSource interface {
	// GetUserOperationReceipt returns nil without error while the operation is pending.
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*models.UserOperationReceipt, error)

	// WaitForReceipt polls until a receipt is available or the wait times out.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*models.UserOperationReceipt, error)
}

var (
	_ ChainOracle      = &RPCOracle{}
	_ ReceiptSource    = &RPCOracle{}
	_ EntryPointSource = &RPCOracle{}
)

// RPCOracle implements ChainOracle over a node JSON-RPC endpoint and a
// bundler JSON-RPC endpoint.
type RPCOracle struct {
	node      *ethclient.Client
	bundler   *rpc.Client
	config    config.Config
	collector metrics.Collector
	logger    zerolog.Logger
}

// NewRPCOracle dials the configured node and bundler endpoints.
func NewRPCOracle(
	ctx context.Context,
	config config.Config,
	collector metrics.Collector,
	logger zerolog.Logger,
) (*RPCOracle, error) {
	node, err := rpc.DialContext(ctx, config.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to node %s: %w", config.NodeURL, err)
	}

	bundler, err := rpc.DialContext(ctx, config.BundlerURL)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("could not connect to bundler %s: %w", config.BundlerURL, err)
	}

	return NewRPCOracleFromClients(node, bundler, config, collector, logger), nil
}

func NewRPCOracleFromClients(
	node *rpc.Client,
	bundler *rpc.Client,
	config config.Config,
	collector metrics.Collector,
	logger zerolog.Logger,
) *RPCOracle {
	return &RPCOracle{
		node:      ethclient.NewClient(node),
		bundler:   bundler,
		config:    config,
		collector: collector,
		logger:    logger.With().Str("component", "requester").Logger(),
	}
}

func (o *RPCOracle) Close() {
	o.node.Close()
	o.bundler.Close()
}

func (o *RPCOracle) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	code, err := o.node.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, o.failed(EthGetCode, err)
	}

	return code, nil
}

func (o *RPCOracle) CallView(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	ret, err := o.node.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, o.failed(EthCall, err)
	}

	return ret, nil
}

func (o *RPCOracle) GetNonceSequence(
	ctx context.Context,
	entryPoint common.Address,
	sender common.Address,
	key models.NonceKey,
) (uint64, error) {
	call, err := userop.EncodeGetNonce(sender, key)
	if err != nil {
		return 0, err
	}

	ret, err := o.CallView(ctx, entryPoint, call)
	if err != nil {
		return 0, err
	}

	nonce, err := userop.DecodeGetNonce(ret)
	if err != nil {
		return 0, o.failed(EthCall, err)
	}

	returnedKey, seq := models.SplitNonce(nonce)
	if returnedKey != key {
		return 0, o.failed(EthCall, fmt.Errorf(
			"entry point returned nonce for key %s, expected %s",
			returnedKey,
			key,
		))
	}

	return seq, nil
}

func (o *RPCOracle) SubmitOperation(
	ctx context.Context,
	op *models.PackedUserOperation,
	entryPoint common.Address,
) (common.Hash, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var hash common.Hash
	if err := o.bundler.CallContext(ctx, &hash, EthSendUserOperation, op.Args(), entryPoint); err != nil {
		l := o.logger.Error().Err(err).
			Str("sender", op.Sender.Hex()).
			Str("entrypoint", entryPoint.Hex())

		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			l = l.Int("code", rpcErr.ErrorCode())
		}
		l.Msg("bundler rejected user operation")

		o.collector.OracleCallFailed(EthSendUserOperation)
		return common.Hash{}, fmt.Errorf("%s: %w", EthSendUserOperation, err)
	}

	o.collector.UserOperationSubmitted(entryPoint.Hex())
	o.logger.Info().
		Str("hash", hash.Hex()).
		Str("sender", op.Sender.Hex()).
		Str("nonce", op.Nonce.String()).
		Msg("user operation submitted")

	return hash, nil
}

// SupportedEntryPoints lists the entry points the bundler accepts.
func (o *RPCOracle) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var entryPoints []common.Address
	if err := o.bundler.CallContext(ctx, &entryPoints, EthSupportedEntryPoints); err != nil {
		return nil, o.failed(EthSupportedEntryPoints, err)
	}

	return entryPoints, nil
}

func (o *RPCOracle) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	id, err := o.node.ChainID(ctx)
	if err != nil {
		return nil, o.failed(EthChainID, err)
	}

	return id, nil
}

func (o *RPCOracle) GetUserOperationReceipt(
	ctx context.Context,
	hash common.Hash,
) (*models.UserOperationReceipt, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var receipt *models.UserOperationReceipt
	if err := o.bundler.CallContext(ctx, &receipt, EthGetUserOperationReceipt, hash); err != nil {
		return nil, o.failed(EthGetUserOperationReceipt, err)
	}

	return receipt, nil
}

func (o *RPCOracle) WaitForReceipt(
	ctx context.Context,
	hash common.Hash,
) (*models.UserOperationReceipt, error) {
	var receipt *models.UserOperationReceipt

	backoff := retry.WithMaxDuration(
		o.config.ReceiptTimeout,
		retry.NewConstant(o.config.ReceiptPollInterval),
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := o.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			// transient bundler failures are retried until the wait expires
			return retry.RetryableError(err)
		}
		if r == nil {
			return retry.RetryableError(fmt.Errorf("%w: %s", ErrReceiptTimeout, hash))
		}

		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("hash", hash.Hex()).
		Bool("success", receipt.Success).
		Msg("user operation included")

	return receipt, nil
}

func (o *RPCOracle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.RPCRequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.config.RPCRequestTimeout)
}

func (o *RPCOracle) failed(call string, err error) error {
	o.collector.OracleCallFailed(call)
	o.logger.Warn().Err(err).Str("call", call).Msg("oracle call failed")
	return fmt.Errorf("%s: %w", call, err)
}
