package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/userop"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, userop.DefaultEntryPoint, cfg.EntryPoint)
	assert.Equal(t, common.HexToAddress("0x7579F9feedf32331C645828139aFF78d517d0001"), cfg.Safe7579)
	assert.Equal(t, uint64(10_000_000), cfg.CallGasLimit)
	assert.Equal(t, uint64(10_000), cfg.MaxFeePerGas)

	overrides := cfg.GasOverrides()
	assert.Equal(t, int64(10_000_000), overrides.PreVerificationGas.Int64())
	assert.Equal(t, int64(10_000), overrides.MaxPriorityFeePerGas.Int64())
}

func TestConfig_SetGet(t *testing.T) {
	tests := []struct {
		key      string
		value    string
		expected string
	}{
		{key: "node-url", value: "https://rpc.example.org", expected: "https://rpc.example.org"},
		{key: "entrypoint", value: "0x0000000071727de22e5e9d8baf0edac6f37da032", expected: "0x0000000071727De22E5E9d8BAf0edAc6f37da032"},
		{key: "call-gas-limit", value: "0x10", expected: "16"},
		{key: "rpc-port", value: "9000", expected: "9000"},
		{key: "receipt-timeout", value: "30s", expected: "30s"},
		{key: "proxy-creation-code", value: "0x6080", expected: "0x6080"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Set(tt.key, tt.value))

			v, err := cfg.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}

	t.Run("invalid values", func(t *testing.T) {
		cfg := Default()
		require.ErrorIs(t, cfg.Set("entrypoint", "0x1234"), errs.ErrInvalid)
		require.ErrorIs(t, cfg.Set("call-gas-limit", "-1"), errs.ErrInvalid)
		require.ErrorIs(t, cfg.Set("receipt-timeout", "soon"), errs.ErrInvalid)
		require.ErrorIs(t, cfg.Set("unknown", "1"), errs.ErrInvalid)
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	cfg.NodeURL = "localhost"
	cfg.EntryPoint = common.Address{}
	cfg.LogLevel = "loud"
	cfg.MaxPriorityFeePerGas = cfg.MaxFeePerGas + 1

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInvalid)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	assert.Len(t, merr.Errors, 4)
}

func TestProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lazyaccount", "config.yaml")

	file, err := LoadProfileFile(path)
	require.NoError(t, err)
	assert.Empty(t, file.Names())

	require.NoError(t, file.Set(DefaultProfile, "node-url", "https://node.example.org"))
	require.NoError(t, file.Set("sepolia", "bundler-url", "https://bundler.example.org"))
	require.ErrorIs(t, file.Set(DefaultProfile, "entrypoint", "nope"), errs.ErrInvalid)
	require.NoError(t, file.Save(path))

	loaded, err := LoadProfileFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "sepolia"}, loaded.Names())
	assert.Equal(t, map[string]string{"node-url": "https://node.example.org"}, loaded.Values(DefaultProfile))

	require.NoError(t, loaded.Unset("sepolia", "bundler-url"))
	assert.Equal(t, []string{"default"}, loaded.Names())
	require.ErrorIs(t, loaded.Unset(DefaultProfile, "unknown"), errs.ErrInvalid)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "config.yaml")

	file, err := LoadProfileFile(profilePath)
	require.NoError(t, err)
	require.NoError(t, file.Set(DefaultProfile, "node-url", "https://profile.example.org"))
	require.NoError(t, file.Set(DefaultProfile, "bundler-url", "https://profile-bundler.example.org"))
	require.NoError(t, file.Set(DefaultProfile, "rpc-port", "7000"))
	require.NoError(t, file.Save(profilePath))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LAZYACCOUNT_RECEIPT_TIMEOUT=45s\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(EnvName("receipt-timeout")) })

	t.Setenv(EnvName("bundler-url"), "https://env-bundler.example.org")

	cfg, err := Load(LoadOptions{
		ProfilePath: profilePath,
		EnvFile:     envPath,
		Overrides:   map[string]string{"rpc-port": "7001"},
	})
	require.NoError(t, err)

	// profile < env < overrides
	assert.Equal(t, "https://profile.example.org", cfg.NodeURL)
	assert.Equal(t, "https://env-bundler.example.org", cfg.BundlerURL)
	assert.Equal(t, 45*time.Second, cfg.ReceiptTimeout)
	assert.Equal(t, 7001, cfg.RPCPort)

	t.Run("missing env file is ignored", func(t *testing.T) {
		_, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
		require.NoError(t, err)
	})

	t.Run("invalid override", func(t *testing.T) {
		_, err := Load(LoadOptions{Overrides: map[string]string{"rpc-port": "0"}})
		require.ErrorIs(t, err, errs.ErrInvalid)
	})
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "LAZYACCOUNT_NODE_URL", EnvName("node-url"))
	assert.Equal(t, "LAZYACCOUNT_MAX_PRIORITY_FEE_PER_GAS", EnvName("max-priority-fee-per-gas"))
}
