package account

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/bootstrap"
	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

var Cmd = &cobra.Command{
	Use:   "account",
	Short: "Plans, deploys and inspects Safe7579 accounts",
}

var (
	createInit   string
	createSubmit cli.SubmitFlags
	addressInit  string
	idAccount    string
	depositOf    string
)

func loadInit(path string) (models.AccountInitParams, error) {
	if path == "" {
		return models.AccountInitParams{}, fmt.Errorf("%w: --init is required", errs.ErrInvalid)
	}
	return models.LoadAccountInitFile(path)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Deploys the account described by an init file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		params, err := loadInit(createInit)
		if err != nil {
			return err
		}

		opts, err := createSubmit.Options()
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, nil, opts)
		if err != nil {
			return err
		}
		defer boot.Close()

		submission, err := boot.Accounts().CreateAccount(cmd.Context(), params)
		if err != nil {
			return err
		}

		return createSubmit.Finish(cmd, boot, submission)
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Prints the deployment plan and the predicted address of an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		params, err := loadInit(addressInit)
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer boot.Close()

		plan, err := boot.Accounts().Plan(cmd.Context(), params)
		if err != nil {
			return err
		}

		deployed, err := boot.Accounts().IsDeployed(cmd.Context(), plan.PredictedAddress)
		if err != nil {
			return err
		}

		return cli.PrintJSON(cmd, struct {
			*models.DeploymentPlan
			Deployed bool `json:"deployed"`
		}{plan, deployed})
	},
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Prints the ERC-7579 account implementation id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		address, err := cli.ParseAddress("account", idAccount)
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer boot.Close()

		id, err := boot.Accounts().AccountID(cmd.Context(), address)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Prints the entry point deposit of an account in wei",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		address, err := cli.ParseAddress("account", depositOf)
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer boot.Close()

		deposit, err := boot.Accounts().Deposit(cmd.Context(), address)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), deposit.String())
		return err
	},
}

func init() {
	createCmd.Flags().StringVar(&createInit, "init", "", "YAML file with the account salt, owners and validators")
	createSubmit.Register(createCmd)

	addressCmd.Flags().StringVar(&addressInit, "init", "", "YAML file with the account salt, owners and validators")

	idCmd.Flags().StringVar(&idAccount, "account", "", "Smart account address")

	depositCmd.Flags().StringVar(&depositOf, "account", "", "Smart account address")

	Cmd.AddCommand(createCmd, addressCmd, idCmd, depositCmd)
}
