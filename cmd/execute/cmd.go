package execute

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

var (
	input  string
	target cli.TargetFlags
	submit cli.SubmitFlags
)

var Cmd = &cobra.Command{
	Use:   "execute",
	Short: "Executes the calls of an executions file from a smart account",
	Long: `Executes the calls listed in a YAML executions file in a single user operation:

  entrypoint: 0x0000000071727De22E5E9d8BAf0edAc6f37da032
  executions:
    - target: 0x...
      value: 1000000000000000
      callData: 0x

One execution uses the single call mode, more executions use the batch mode.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if input == "" {
			return fmt.Errorf("%w: --input is required", errs.ErrInvalid)
		}

		batch, entryPoint, err := models.LoadExecutionsFile(input)
		if err != nil {
			return err
		}

		cfg, err := cli.LoadConfig(cmd)
		if err != nil {
			return err
		}
		if entryPoint != nil {
			cfg.EntryPoint = *entryPoint
		}

		opts, err := submit.Options()
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, cfg, opts)
		if err != nil {
			return err
		}
		defer boot.Close()

		t, err := target.Target(cmd.Context(), boot.Accounts())
		if err != nil {
			return err
		}

		submission, err := boot.Accounts().Execute(cmd.Context(), t, batch)
		if err != nil {
			return err
		}

		return submit.Finish(cmd, boot, submission)
	},
}

func init() {
	Cmd.Flags().StringVar(&input, "input", "", "YAML file with the executions to run")
	target.Register(Cmd)
	submit.Register(Cmd)
}
