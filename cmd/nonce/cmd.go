package nonce

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/bootstrap"
	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/models"
)

var (
	accountAddr string
	validator   string
)

var Cmd = &cobra.Command{
	Use:   "nonce",
	Short: "Prints the entry point nonce of an account for a validator key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		address, err := cli.ParseAddress("account", accountAddr)
		if err != nil {
			return err
		}
		v, err := cli.ParseAddress("validator", validator)
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer boot.Close()

		nonce, err := boot.Accounts().Nonce(cmd.Context(), address, v)
		if err != nil {
			return err
		}

		key, sequence := models.SplitNonce(nonce)
		return cli.PrintJSON(cmd, map[string]any{
			"account":  address,
			"key":      key.Hex(),
			"sequence": hexutil.Uint64(sequence),
			"nonce":    (*hexutil.Big)(nonce),
		})
	},
}

func init() {
	Cmd.Flags().StringVar(&accountAddr, "account", "", "Smart account address")
	Cmd.Flags().StringVar(&validator, "validator", "", "Validator selecting the nonce key")
}
