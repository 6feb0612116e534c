package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/api"
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the current version of lazyaccount",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", api.Version)
	},
}
