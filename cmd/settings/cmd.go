package settings

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/cmd/cli"
	"github.com/zeroknots/lazyaccount/config"
)

var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Reads and edits the configuration profiles",
}

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Prints the effective value of a key, or of every key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(cmd)
		if err != nil {
			return err
		}

		keys := config.Keys()
		if len(args) == 1 {
			keys = args
		}

		for _, key := range keys {
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Stores a value in the selected profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		return editProfile(func(file *config.ProfileFile, profile string) error {
			return file.Set(profile, args[0], args[1])
		})
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Removes a value from the selected profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return editProfile(func(file *config.ProfileFile, profile string) error {
			return file.Unset(profile, args[0])
		})
	},
}

func editProfile(edit func(file *config.ProfileFile, profile string) error) error {
	profile, path := cli.Profile()

	file, err := config.LoadProfileFile(path)
	if err != nil {
		return err
	}

	if err := edit(file, profile); err != nil {
		return err
	}

	return file.Save(path)
}

func init() {
	Cmd.AddCommand(getCmd, setCmd, unsetCmd)
}
