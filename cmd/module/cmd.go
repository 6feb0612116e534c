package module

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/bootstrap"
	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/services/account"
	"github.com/zeroknots/lazyaccount/services/erc7579"
)

var Cmd = &cobra.Command{
	Use:   "module",
	Short: "Manages the ERC-7579 modules of a smart account",
}

type moduleFlags struct {
	moduleType string
	data       string
}

func (f *moduleFlags) register(cmd *cobra.Command, dataUsage string) {
	cmd.Flags().StringVar(&f.moduleType, "type", "validator", "Module type: validator, executor, fallback, hook or a numeric id")
	cmd.Flags().StringVar(&f.data, "data", "", dataUsage)
}

func (f *moduleFlags) parse(moduleArg string) (erc7579.ModuleType, common.Address, []byte, error) {
	moduleType, err := erc7579.ParseModuleType(f.moduleType)
	if err != nil {
		return 0, common.Address{}, nil, err
	}

	module, err := cli.ParseAddress("module", moduleArg)
	if err != nil {
		return 0, common.Address{}, nil, err
	}

	data, err := cli.ParseHex("data", f.data)
	if err != nil {
		return 0, common.Address{}, nil, err
	}

	return moduleType, module, data, nil
}

type submitModuleFunc func(
	svc *account.Service,
	cmd *cobra.Command,
	target account.Target,
	moduleType erc7579.ModuleType,
	module common.Address,
	data []byte,
) (*account.Submission, error)

func newSubmitCmd(use, short, dataUsage string, run submitModuleFunc) *cobra.Command {
	var (
		flags  moduleFlags
		target cli.TargetFlags
		submit cli.SubmitFlags
	)

	cmd := &cobra.Command{
		Use:   use + " <module>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			moduleType, module, data, err := flags.parse(args[0])
			if err != nil {
				return err
			}

			opts, err := submit.Options()
			if err != nil {
				return err
			}

			boot, err := cli.Boot(cmd, nil, opts)
			if err != nil {
				return err
			}
			defer boot.Close()

			t, err := target.Target(cmd.Context(), boot.Accounts())
			if err != nil {
				return err
			}

			submission, err := run(boot.Accounts(), cmd, t, moduleType, module, data)
			if err != nil {
				return err
			}

			return submit.Finish(cmd, boot, submission)
		},
	}

	flags.register(cmd, dataUsage)
	target.Register(cmd)
	submit.Register(cmd)
	return cmd
}

var installCmd = newSubmitCmd(
	"install",
	"Installs a module on the account",
	"Module init data, appended to the call as is",
	func(svc *account.Service, cmd *cobra.Command, t account.Target, mt erc7579.ModuleType, m common.Address, data []byte) (*account.Submission, error) {
		return svc.InstallModule(cmd.Context(), t, mt, m, data)
	},
)

var uninstallCmd = newSubmitCmd(
	"uninstall",
	"Uninstalls a module from the account",
	"Module de-init data, appended to the call as is",
	func(svc *account.Service, cmd *cobra.Command, t account.Target, mt erc7579.ModuleType, m common.Address, data []byte) (*account.Submission, error) {
		return svc.UninstallModule(cmd.Context(), t, mt, m, data)
	},
)

var (
	isInstalledFlags   moduleFlags
	isInstalledAccount string
)

var isInstalledCmd = &cobra.Command{
	Use:   "is-installed <module>",
	Short: "Checks whether a module is installed on the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		moduleType, module, data, err := isInstalledFlags.parse(args[0])
		if err != nil {
			return err
		}

		address, err := cli.ParseAddress("account", isInstalledAccount)
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer boot.Close()

		installed, err := boot.Accounts().IsModuleInstalled(cmd.Context(), address, moduleType, module, data)
		if err != nil {
			return err
		}

		return cli.PrintJSON(cmd, map[string]any{
			"account":   address,
			"module":    module,
			"type":      moduleType.String(),
			"installed": installed,
		})
	},
}

func init() {
	isInstalledFlags.register(isInstalledCmd, "Additional context passed to isModuleInstalled")
	isInstalledCmd.Flags().StringVar(&isInstalledAccount, "account", "", "Smart account address")

	Cmd.AddCommand(installCmd, uninstallCmd, isInstalledCmd)
}
