package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "LAZYACCOUNT_"

// EnvName maps a config key to its environment variable, e.g. node-url to
// LAZYACCOUNT_NODE_URL.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// LoadOptions selects the sources merged by Load.
type LoadOptions struct {
	ProfilePath string
	Profile     string
	// EnvFile is loaded into the process environment when present. Variables
	// already set in the environment win.
	EnvFile string
	// Overrides have the highest precedence, usually the changed CLI flags.
	Overrides map[string]string
}

// Load merges defaults, the profile file, the environment and overrides, in
// increasing order of precedence, and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.ProfilePath != "" {
		file, err := LoadProfileFile(opts.ProfilePath)
		if err != nil {
			return nil, err
		}

		profile := opts.Profile
		if profile == "" {
			profile = DefaultProfile
		}
		if err := cfg.Apply(file.Values(profile)); err != nil {
			return nil, fmt.Errorf("profile %s: %w", profile, err)
		}
	}

	if opts.EnvFile != "" {
		err := godotenv.Load(opts.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load env file %s: %w", opts.EnvFile, err)
		}
	}
	if err := cfg.Apply(envValues()); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Apply(opts.Overrides); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func envValues() map[string]string {
	values := map[string]string{}
	for _, key := range Keys() {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			values[key] = v
		}
	}
	return values
}
