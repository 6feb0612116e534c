package config

import (
	"fmt"
	"io"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/safe7579"
	"github.com/zeroknots/lazyaccount/services/userop"
)

type Config struct {
	// NodeURL is the JSON-RPC endpoint of the chain node.
	NodeURL string
	// BundlerURL is the JSON-RPC endpoint of the ERC-4337 bundler.
	BundlerURL string
	EntryPoint common.Address

	Safe7579          common.Address
	Launchpad         common.Address
	SafeSingleton     common.Address
	ProxyFactory      common.Address
	ProxyCreationCode []byte

	CallGasLimit         uint64
	VerificationGasLimit uint64
	PreVerificationGas   uint64
	MaxFeePerGas         uint64
	MaxPriorityFeePerGas uint64

	// DatabaseDir holds the local journal of submitted user operations.
	DatabaseDir string

	LogLevel  string
	LogWriter string

	RPCHost     string
	RPCPort     int
	MetricsPort int
	// RateLimit is the number of requests per second a client can make to the
	// local API.
	RateLimit uint64

	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	RPCRequestTimeout   time.Duration
}

func Default() Config {
	contracts := safe7579.DefaultContracts()

	return Config{
		NodeURL:              "http://localhost:8545",
		BundlerURL:           "http://localhost:4337",
		EntryPoint:           userop.DefaultEntryPoint,
		Safe7579:             contracts.Safe7579,
		Launchpad:            contracts.Launchpad,
		SafeSingleton:        contracts.SafeSingleton,
		ProxyFactory:         contracts.ProxyFactory,
		CallGasLimit:         userop.DefaultCallGasLimit,
		VerificationGasLimit: userop.DefaultVerificationGasLimit,
		PreVerificationGas:   userop.DefaultPreVerificationGas,
		MaxFeePerGas:         userop.DefaultMaxFeePerGas,
		MaxPriorityFeePerGas: userop.DefaultMaxPriorityFeePerGas,
		DatabaseDir:          defaultDatabaseDir(),
		LogLevel:             "info",
		LogWriter:            "console",
		RPCHost:              "localhost",
		RPCPort:              4338,
		MetricsPort:          9091,
		RateLimit:            50,
		ReceiptTimeout:       2 * time.Minute,
		ReceiptPollInterval:  2 * time.Second,
		RPCRequestTimeout:    30 * time.Second,
	}
}

func defaultDatabaseDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./db"
	}
	return filepath.Join(dir, "lazyaccount", "db")
}

// Contracts returns the Safe7579 contract set used for account planning.
func (c Config) Contracts() safe7579.Contracts {
	return safe7579.Contracts{
		Safe7579:          c.Safe7579,
		Launchpad:         c.Launchpad,
		SafeSingleton:     c.SafeSingleton,
		ProxyFactory:      c.ProxyFactory,
		ProxyCreationCode: c.ProxyCreationCode,
	}
}

// GasOverrides returns the configured gas values for the assembler.
func (c Config) GasOverrides() userop.Overrides {
	return userop.Overrides{
		CallGasLimit:         new(big.Int).SetUint64(c.CallGasLimit),
		VerificationGasLimit: new(big.Int).SetUint64(c.VerificationGasLimit),
		PreVerificationGas:   new(big.Int).SetUint64(c.PreVerificationGas),
		MaxFeePerGas:         new(big.Int).SetUint64(c.MaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).SetUint64(c.MaxPriorityFeePerGas),
	}
}

// Logger builds the root logger from the log level and writer settings.
func (c Config) Logger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	var writer io.Writer
	switch c.LogWriter {
	case "stderr":
		writer = os.Stderr
	case "console":
		writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		})
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log writer: %s", c.LogWriter)
	}

	return zerolog.New(writer).With().Timestamp().Logger().Level(level), nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var result *multierror.Error

	for key, value := range map[string]string{"node-url": c.NodeURL, "bundler-url": c.BundlerURL} {
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("%w: %s must be an absolute URL, got %q", errs.ErrInvalid, key, value))
		}
	}

	addresses := map[string]common.Address{
		"entrypoint":     c.EntryPoint,
		"safe7579":       c.Safe7579,
		"launchpad":      c.Launchpad,
		"safe-singleton": c.SafeSingleton,
		"proxy-factory":  c.ProxyFactory,
	}
	for key, addr := range addresses {
		if addr == (common.Address{}) {
			result = multierror.Append(result, fmt.Errorf("%w: %s must not be the zero address", errs.ErrInvalid, key))
		}
	}

	if c.CallGasLimit == 0 || c.VerificationGasLimit == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: gas limits must be > 0", errs.ErrInvalid))
	}
	if c.MaxPriorityFeePerGas > c.MaxFeePerGas {
		result = multierror.Append(result, fmt.Errorf("%w: max-priority-fee-per-gas exceeds max-fee-per-gas", errs.ErrInvalid))
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: invalid log level %q", errs.ErrInvalid, c.LogLevel))
	}
	if c.LogWriter != "stderr" && c.LogWriter != "console" {
		result = multierror.Append(result, fmt.Errorf("%w: log writer must be 'stderr' or 'console'", errs.ErrInvalid))
	}

	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("%w: rpc-port out of range: %d", errs.ErrInvalid, c.RPCPort))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("%w: metrics-port out of range: %d", errs.ErrInvalid, c.MetricsPort))
	}
	if c.ReceiptPollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: receipt-poll-interval must be > 0", errs.ErrInvalid))
	}

	if result != nil {
		// map iteration order is random
		sort.Slice(result.Errors, func(i, j int) bool {
			return result.Errors[i].Error() < result.Errors[j].Error()
		})
	}
	return result.ErrorOrNil()
}

type setting struct {
	usage string
	get   func(c *Config) string
	set   func(c *Config, value string) error
}

func stringSetting(usage string, field func(c *Config) *string) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) string { return *field(c) },
		set: func(c *Config, value string) error {
			*field(c) = value
			return nil
		},
	}
}

func addressSetting(usage string, field func(c *Config) *common.Address) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) string { return field(c).Hex() },
		set: func(c *Config, value string) error {
			if !common.IsHexAddress(value) {
				return fmt.Errorf("invalid address %q", value)
			}
			*field(c) = common.HexToAddress(value)
			return nil
		},
	}
}

func uintSetting(usage string, field func(c *Config) *uint64) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) string { return strconv.FormatUint(*field(c), 10) },
		set: func(c *Config, value string) error {
			v, err := strconv.ParseUint(value, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", value)
			}
			*field(c) = v
			return nil
		},
	}
}

func intSetting(usage string, field func(c *Config) *int) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, value string) error {
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid number %q", value)
			}
			*field(c) = v
			return nil
		},
	}
}

func durationSetting(usage string, field func(c *Config) *time.Duration) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) string { return field(c).String() },
		set: func(c *Config, value string) error {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration %q", value)
			}
			*field(c) = d
			return nil
		},
	}
}

var settings = map[string]setting{
	"node-url":    stringSetting("JSON-RPC URL of the chain node", func(c *Config) *string { return &c.NodeURL }),
	"bundler-url": stringSetting("JSON-RPC URL of the ERC-4337 bundler", func(c *Config) *string { return &c.BundlerURL }),
	"entrypoint":  addressSetting("Address of the ERC-4337 EntryPoint v0.7 contract", func(c *Config) *common.Address { return &c.EntryPoint }),
	"safe7579":    addressSetting("Address of the Safe7579 adapter", func(c *Config) *common.Address { return &c.Safe7579 }),
	"launchpad":   addressSetting("Address of the Safe7579 launchpad", func(c *Config) *common.Address { return &c.Launchpad }),
	"safe-singleton": addressSetting("Address of the Safe implementation",
		func(c *Config) *common.Address { return &c.SafeSingleton }),
	"proxy-factory": addressSetting("Address of the Safe proxy factory",
		func(c *Config) *common.Address { return &c.ProxyFactory }),
	"proxy-creation-code": {
		usage: "Hex encoded SafeProxy creation code, read from the proxy factory when empty",
		get:   func(c *Config) string { return hexutil.Encode(c.ProxyCreationCode) },
		set: func(c *Config, value string) error {
			if value == "" || value == "0x" {
				c.ProxyCreationCode = nil
				return nil
			}
			code, err := hexutil.Decode(value)
			if err != nil {
				return fmt.Errorf("invalid hex %q: %w", value, err)
			}
			c.ProxyCreationCode = code
			return nil
		},
	},
	"call-gas-limit": uintSetting("Call gas limit of assembled operations",
		func(c *Config) *uint64 { return &c.CallGasLimit }),
	"verification-gas-limit": uintSetting("Verification gas limit of assembled operations",
		func(c *Config) *uint64 { return &c.VerificationGasLimit }),
	"pre-verification-gas": uintSetting("Pre-verification gas of assembled operations",
		func(c *Config) *uint64 { return &c.PreVerificationGas }),
	"max-fee-per-gas": uintSetting("Max fee per gas of assembled operations",
		func(c *Config) *uint64 { return &c.MaxFeePerGas }),
	"max-priority-fee-per-gas": uintSetting("Max priority fee per gas of assembled operations",
		func(c *Config) *uint64 { return &c.MaxPriorityFeePerGas }),
	"database-dir": stringSetting("Path to the directory of the local operation journal",
		func(c *Config) *string { return &c.DatabaseDir }),
	"log-level": stringSetting("Define verbosity of the log output ('debug', 'info', 'warn', 'error', 'fatal', 'panic')",
		func(c *Config) *string { return &c.LogLevel }),
	"log-writer": stringSetting("Log writer used for output ('stderr', 'console')",
		func(c *Config) *string { return &c.LogWriter }),
	"rpc-host":     stringSetting("Host for the local API server", func(c *Config) *string { return &c.RPCHost }),
	"rpc-port":     intSetting("Port for the local API server", func(c *Config) *int { return &c.RPCPort }),
	"metrics-port": intSetting("Port for the metrics server, 0 disables it", func(c *Config) *int { return &c.MetricsPort }),
	"rate-limit": uintSetting("Rate-limit requests per second made by a client to the local API",
		func(c *Config) *uint64 { return &c.RateLimit }),
	"receipt-timeout": durationSetting("Maximum time to wait for a user operation receipt",
		func(c *Config) *time.Duration { return &c.ReceiptTimeout }),
	"receipt-poll-interval": durationSetting("Interval between user operation receipt lookups",
		func(c *Config) *time.Duration { return &c.ReceiptPollInterval }),
	"rpc-request-timeout": durationSetting("Timeout of a single node or bundler request",
		func(c *Config) *time.Duration { return &c.RPCRequestTimeout }),
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Usage describes a configuration key.
func Usage(key string) string {
	return settings[key].usage
}

// Set assigns a value given in its textual form.
func (c *Config) Set(key, value string) error {
	s, ok := settings[key]
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", errs.ErrInvalid, key)
	}
	if err := s.set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrInvalid, key, err)
	}
	return nil
}

// Get returns the textual form of a value.
func (c *Config) Get(key string) (string, error) {
	s, ok := settings[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown config key %q", errs.ErrInvalid, key)
	}
	return s.get(c), nil
}

// Apply sets every value of the map, stopping at the first failure.
func (c *Config) Apply(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := c.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}
