package ops

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/bootstrap"
	"github.com/zeroknots/lazyaccount/cmd/cli"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

var Cmd = &cobra.Command{
	Use:   "ops",
	Short: "Submits drafted user operations and inspects the journal",
}

var (
	sender    string
	limit     int
	olderThan time.Duration
	sendInput string
	sendFlags cli.SubmitFlags
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists journaled user operations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var filter *common.Address
		if sender != "" {
			address, err := cli.ParseAddress("sender", sender)
			if err != nil {
				return err
			}
			filter = &address
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{Journal: true})
		if err != nil {
			return err
		}
		defer boot.Close()

		records, err := boot.Journal().List(filter, limit)
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd, records)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <userOpHash>",
	Short: "Prints a journaled user operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := cli.ParseHex("hash", args[0])
		if err != nil {
			return err
		}
		if len(raw) != common.HashLength {
			return fmt.Errorf("%w: user operation hash must be %d bytes", errs.ErrInvalid, common.HashLength)
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{Journal: true})
		if err != nil {
			return err
		}
		defer boot.Close()

		record, err := boot.Journal().Get(common.BytesToHash(raw))
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd, record)
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Removes journaled user operations older than a duration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if olderThan <= 0 {
			return fmt.Errorf("%w: --older-than must be positive", errs.ErrInvalid)
		}

		boot, err := cli.Boot(cmd, nil, bootstrap.Options{Journal: true})
		if err != nil {
			return err
		}
		defer boot.Close()

		removed, err := boot.Journal().Prune(time.Now().Add(-olderThan))
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d user operations\n", removed)
		return err
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submits a user operation printed by a dry run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if sendInput == "" {
			return fmt.Errorf("%w: --input is required", errs.ErrInvalid)
		}

		cfg, err := cli.LoadConfig(cmd)
		if err != nil {
			return err
		}

		op, err := cli.LoadDraft(sendInput, cfg.EntryPoint)
		if err != nil {
			return err
		}

		opts, err := sendFlags.Options()
		if err != nil {
			return err
		}

		boot, err := cli.Boot(cmd, cfg, opts)
		if err != nil {
			return err
		}
		defer boot.Close()

		submission, err := boot.Accounts().Submit(cmd.Context(), op)
		if err != nil {
			return err
		}
		return sendFlags.Finish(cmd, boot, submission)
	},
}

func init() {
	listCmd.Flags().StringVar(&sender, "sender", "", "Only list operations of this account")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of operations listed, 0 lists all")

	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove operations submitted longer ago than this")

	sendCmd.Flags().StringVar(&sendInput, "input", "", "JSON file written by a --dry-run command")
	sendFlags.Register(sendCmd)

	Cmd.AddCommand(listCmd, getCmd, pruneCmd, sendCmd)
}
