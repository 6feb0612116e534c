package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/zeroknots/lazyaccount/api"
	"github.com/zeroknots/lazyaccount/config"
	"github.com/zeroknots/lazyaccount/metrics"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/account"
	"github.com/zeroknots/lazyaccount/services/requester"
	"github.com/zeroknots/lazyaccount/services/safe7579"
	"github.com/zeroknots/lazyaccount/services/signer"
	"github.com/zeroknots/lazyaccount/storage"
	"github.com/zeroknots/lazyaccount/storage/pebble"
)

const (
	storageMetricsInterval = 30 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

type Storages struct {
	Storage        *pebble.Storage
	UserOperations *pebble.UserOperations
}

// Options select the optional parts wired by New.
type Options struct {
	// Journal opens the local database. The database is locked by one
	// process at a time.
	Journal bool
	// Signer signs operations before submission, nil leaves them unsigned.
	Signer signer.Signer
	// Metrics registers the prometheus collector, otherwise a noop one is used.
	Metrics bool
	// DryRun signs and hashes operations without sending them to the bundler.
	DryRun bool
}

type Bootstrap struct {
	logger    zerolog.Logger
	config    config.Config
	oracle    *requester.RPCOracle
	storages  *Storages
	collector metrics.Collector
	planner   *safe7579.Planner
	accounts  *account.Service
	server    *api.Server
	metrics   *metrics.Server
}

func New(ctx context.Context, cfg config.Config, opts Options) (*Bootstrap, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	collector := metrics.Collector(metrics.NewNoopCollector())
	if opts.Metrics {
		collector = metrics.NewCollector(logger)
	}

	oracle, err := requester.NewRPCOracle(ctx, cfg, collector, logger)
	if err != nil {
		return nil, err
	}

	var (
		storages *Storages
		journal  storage.UserOperationIndexer
	)
	if opts.Journal {
		// create pebble storage from the provided database root directory
		store, err := pebble.New(cfg.DatabaseDir, logger)
		if err != nil {
			oracle.Close()
			return nil, err
		}

		storages = &Storages{
			Storage:        store,
			UserOperations: pebble.NewUserOperations(store),
		}
		journal = storages.UserOperations
	}

	planner := safe7579.NewPlanner(cfg.Contracts(), oracle, logger)

	accounts := account.NewService(oracle, planner, journal, opts.Signer, cfg, logger)
	if opts.DryRun {
		accounts = accounts.WithDryRun()
	}

	return &Bootstrap{
		logger:    logger,
		config:    cfg,
		oracle:    oracle,
		storages:  storages,
		collector: collector,
		planner:   planner,
		accounts:  accounts,
	}, nil
}

func (b *Bootstrap) Logger() zerolog.Logger {
	return b.logger
}

func (b *Bootstrap) Accounts() *account.Service {
	return b.accounts
}

func (b *Bootstrap) Oracle() *requester.RPCOracle {
	return b.oracle
}

// Journal returns the user operation journal, or nil when it was not opened.
func (b *Bootstrap) Journal() *pebble.UserOperations {
	if b.storages == nil {
		return nil
	}
	return b.storages.UserOperations
}

func (b *Bootstrap) StartAPIServer(_ context.Context) error {
	b.logger.Info().Msg("bootstrap starting API server")

	if b.storages == nil {
		return fmt.Errorf("API server requires the user operation journal")
	}

	// tokens are the number of requests a client may send per second
	if b.config.RateLimit == 0 {
		b.logger.Warn().Msg("no rate-limiting is set")
	}
	store, err := api.NewLimiterStore(b.config.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	accountAPI := api.NewAccountAPI(
		b.logger,
		b.config,
		b.accounts,
		b.storages.UserOperations,
		api.NewRateLimiter(store, b.collector, b.logger),
		b.collector,
	)

	api.InstallCrashLogger(b.logger, b.collector)
	b.server = api.NewServer(b.logger, b.collector, rpc.DefaultHTTPTimeouts)
	if err := b.server.EnableRPC(api.SupportedAPIs(accountAPI)); err != nil {
		return err
	}

	if err := b.server.SetListenAddr(b.config.RPCHost, b.config.RPCPort); err != nil {
		return err
	}

	if err := b.server.Start(); err != nil {
		return err
	}

	b.logger.Info().Msgf("API server started: %s", b.server.ListenAddr())
	return nil
}

func (b *Bootstrap) StopAPIServer() {
	if b.server == nil {
		return
	}
	b.logger.Warn().Msg("shutting down API server")
	b.server.Stop()
}

func (b *Bootstrap) StartMetricsServer(_ context.Context) error {
	b.logger.Info().Msg("bootstrap starting metrics server")

	b.metrics = metrics.NewServer(b.logger, prometheus.DefaultGatherer, b.config.RPCHost, b.config.MetricsPort)
	return b.metrics.Start()
}

func (b *Bootstrap) StopMetricsServer() {
	if b.metrics == nil {
		return
	}
	b.logger.Warn().Msg("shutting down metrics server")

	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := b.metrics.Stop(ctx); err != nil {
		b.logger.Error().Err(err).Msg("failed to stop metrics server")
	}
}

// CheckEntryPoint fails when the bundler does not accept the configured
// entry point. An unreachable bundler is only logged, the local API works
// without it.
func (b *Bootstrap) CheckEntryPoint(ctx context.Context) error {
	err := b.accounts.CheckEntryPoint(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrUnsupportedEntryPoint):
		return err
	default:
		b.logger.Warn().Err(err).Msg("could not verify bundler entry points")
		return nil
	}
}

// StartStorageCollector reports the journal size until ctx is done.
func (b *Bootstrap) StartStorageCollector(ctx context.Context) error {
	if b.storages == nil {
		return nil
	}

	collector, err := metrics.NewStorageCollector(
		b.logger,
		b.storages.UserOperations,
		b.config.DatabaseDir,
		storageMetricsInterval,
	)
	if err != nil {
		return fmt.Errorf("failed to create storage collector: %w", err)
	}
	collector.Start(ctx)

	return nil
}

// Close releases the node and bundler connections and the database.
func (b *Bootstrap) Close() error {
	b.oracle.Close()

	if b.storages != nil {
		return b.storages.Storage.Close()
	}
	return nil
}

// Run starts the local API and metrics servers. Run is a blocking call, but
// it does signal readiness of the service through a channel provided as an
// argument.
func Run(ctx context.Context, cfg config.Config, ready func()) error {
	boot, err := New(ctx, cfg, Options{Journal: true, Metrics: cfg.MetricsPort != 0})
	if err != nil {
		return err
	}
	defer func() {
		if err := boot.Close(); err != nil {
			boot.logger.Error().Err(err).Msg("failed to close bootstrap")
		}
	}()

	if err := boot.CheckEntryPoint(ctx); err != nil {
		return err
	}

	if err := boot.StartAPIServer(ctx); err != nil {
		return err
	}

	if cfg.MetricsPort != 0 {
		if err := boot.StartMetricsServer(ctx); err != nil {
			return err
		}
	}

	if err := boot.StartStorageCollector(ctx); err != nil {
		return err
	}

	ready()

	// if context is canceled start shutdown
	<-ctx.Done()
	boot.logger.Warn().Msg("bootstrap received context cancellation, stopping services")

	boot.StopAPIServer()
	boot.StopMetricsServer()

	return nil
}
