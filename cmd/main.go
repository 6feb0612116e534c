package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/cmd/account"
	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/cmd/decode"
	"github.com/zeroknots/lazyaccount/cmd/execute"
	"github.com/zeroknots/lazyaccount/cmd/module"
	"github.com/zeroknots/lazyaccount/cmd/nonce"
	"github.com/zeroknots/lazyaccount/cmd/ops"
	"github.com/zeroknots/lazyaccount/cmd/serve"
	"github.com/zeroknots/lazyaccount/cmd/settings"
	"github.com/zeroknots/lazyaccount/cmd/version"
)

var rootCmd = &cobra.Command{
	Use:           "lazyaccount",
	Short:         "Builds and submits ERC-4337 user operations for Safe7579 accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Err(err).Msg("failed to run command")
		os.Exit(1)
	}
}

func main() {
	cli.RegisterFlags(rootCmd)

	rootCmd.AddCommand(version.Cmd)
	rootCmd.AddCommand(execute.Cmd)
	rootCmd.AddCommand(module.Cmd)
	rootCmd.AddCommand(account.Cmd)
	rootCmd.AddCommand(nonce.Cmd)
	rootCmd.AddCommand(decode.Cmd)
	rootCmd.AddCommand(ops.Cmd)
	rootCmd.AddCommand(settings.Cmd)
	rootCmd.AddCommand(serve.Cmd)

	Execute()
}
