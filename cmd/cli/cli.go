// Package cli holds the flags and helpers shared by the lazyaccount commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/bootstrap"
	"github.com/zeroknots/lazyaccount/config"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	"github.com/zeroknots/lazyaccount/services/account"
	"github.com/zeroknots/lazyaccount/services/signer"
)

var (
	profile     string
	profilePath string
	envFile     string
)

// RegisterFlags adds the profile selection flags and one flag per config key
// to the root command.
func RegisterFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&profile, "profile", config.DefaultProfile, "Configuration profile to use")
	flags.StringVar(&profilePath, "config", config.DefaultProfilePath(), "Path of the profile file")
	flags.StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading LAZYACCOUNT_* variables")

	for _, key := range config.Keys() {
		flags.String(key, "", config.Usage(key))
	}
}

// Profile returns the selected profile and the profile file path.
func Profile() (string, string) {
	return profile, profilePath
}

// LoadConfig merges the selected profile, the environment and the config
// flags changed on the command line.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]string{}
	for _, key := range config.Keys() {
		if !cmd.Flags().Changed(key) {
			continue
		}
		value, err := cmd.Flags().GetString(key)
		if err != nil {
			return nil, err
		}
		overrides[key] = value
	}

	return config.Load(config.LoadOptions{
		ProfilePath: profilePath,
		Profile:     profile,
		EnvFile:     envFile,
		Overrides:   overrides,
	})
}

// Boot loads the config and wires the services a command needs.
func Boot(cmd *cobra.Command, cfg *config.Config, opts bootstrap.Options) (*bootstrap.Bootstrap, error) {
	if cfg == nil {
		var err error
		if cfg, err = LoadConfig(cmd); err != nil {
			return nil, err
		}
	}

	return bootstrap.New(cmd.Context(), *cfg, opts)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// PrintJSON writes v as indented JSON to the command output.
func PrintJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// ParseAddress parses a required 0x-prefixed address.
func ParseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: --%s must be an address, got %q", errs.ErrInvalid, name, value)
	}
	return common.HexToAddress(value), nil
}

// ParseHex decodes optional 0x-prefixed bytes. An empty value is no bytes.
func ParseHex(name, value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: --%s: %v", errs.ErrInvalid, name, err)
	}
	return data, nil
}

// TargetFlags select the account an operation is built for.
type TargetFlags struct {
	Account   string
	Validator string
	Init      string
}

func (f *TargetFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Account, "account", "", "Smart account address, defaults to the address planned from --init")
	cmd.Flags().StringVar(&f.Validator, "validator", "", "Validator selecting the nonce key, defaults to the first validator of --init")
	cmd.Flags().StringVar(&f.Init, "init", "", "YAML file with the account salt, owners and validators, used to deploy the account")
}

// Target resolves the flags. Without --account the address is planned from
// the init params.
func (f *TargetFlags) Target(ctx context.Context, accounts *account.Service) (account.Target, error) {
	var target account.Target

	if f.Init != "" {
		params, err := models.LoadAccountInitFile(f.Init)
		if err != nil {
			return target, err
		}
		target.Init = &params
	}

	if f.Validator != "" {
		validator, err := ParseAddress("validator", f.Validator)
		if err != nil {
			return target, err
		}
		target.Validator = &validator
	}

	switch {
	case f.Account != "":
		address, err := ParseAddress("account", f.Account)
		if err != nil {
			return target, err
		}
		target.Address = address
	case target.Init != nil:
		plan, err := accounts.Plan(ctx, *target.Init)
		if err != nil {
			return target, err
		}
		target.Address = plan.PredictedAddress
	default:
		return target, fmt.Errorf("%w: either --account or --init is required", errs.ErrInvalid)
	}

	return target, nil
}

// SubmitFlags control signing and waiting for inclusion.
type SubmitFlags struct {
	Signature string
	Wait      bool
	DryRun    bool
	CheckHash bool
}

func (f *SubmitFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Signature, "signature", "", "Signature attached to the user operation, produced by an external signer")
	cmd.Flags().BoolVar(&f.Wait, "wait", false, "Wait for the bundler to include the user operation")
	cmd.Flags().BoolVar(&f.DryRun, "dry-run", false, "Print the user operation and the hash to sign without submitting it")
	cmd.Flags().BoolVar(&f.CheckHash, "check-hash", false, "Compare the user operation hash with the one computed by the entry point")
}

func (f *SubmitFlags) Signer() (signer.Signer, error) {
	if f.Signature == "" {
		return nil, nil
	}
	signature, err := ParseHex("signature", f.Signature)
	if err != nil {
		return nil, err
	}
	return signer.Static(signature), nil
}

// Options wires the signer and the journal for a submitting command. Dry
// runs leave the journal closed.
func (f *SubmitFlags) Options() (bootstrap.Options, error) {
	if f.DryRun && f.Wait {
		return bootstrap.Options{}, fmt.Errorf("%w: --wait cannot be combined with --dry-run", errs.ErrInvalid)
	}

	opSigner, err := f.Signer()
	if err != nil {
		return bootstrap.Options{}, err
	}
	return bootstrap.Options{Journal: !f.DryRun, Signer: opSigner, DryRun: f.DryRun}, nil
}

// Finish checks the hash and waits for the receipt when requested, then
// prints the submission.
func (f *SubmitFlags) Finish(cmd *cobra.Command, boot *bootstrap.Bootstrap, submission *account.Submission) error {
	if f.CheckHash {
		err := boot.Accounts().CheckUserOpHash(cmd.Context(), submission.Operation, submission.Hash)
		if err != nil {
			return err
		}
	}

	if f.Wait && submission.Submitted {
		receipt, err := boot.Accounts().Wait(cmd.Context(), submission.Hash)
		if err != nil {
			return err
		}
		submission.Receipt = receipt
	}

	return PrintJSON(cmd, submission)
}

// LoadDraft reads a user operation printed by a dry run. The draft must
// target the configured entry point.
func LoadDraft(path string, entryPoint common.Address) (*models.PackedUserOperation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read user operation %s: %w", path, err)
	}

	var draft account.Submission
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("%w: user operation %s: %v", errs.ErrInvalid, path, err)
	}
	if draft.Operation == nil {
		return nil, fmt.Errorf("%w: %s has no userOperation", errs.ErrInvalid, path)
	}
	if draft.EntryPoint != (common.Address{}) && draft.EntryPoint != entryPoint {
		return nil, fmt.Errorf(
			"%w: %s was drafted for entry point %s, configured is %s",
			errs.ErrInvalid, path, draft.EntryPoint.Hex(), entryPoint.Hex(),
		)
	}

	return draft.Operation, nil
}
