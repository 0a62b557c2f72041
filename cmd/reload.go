package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pktbridge/internal/command"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the rule set of the running daemon",
	Long: `
Ask the running daemon to re-read its configuration and swap in the new
rule set. The swap is all-or-nothing: on any compile error the daemon
keeps forwarding with the previous rules.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)

		resp, err := client.Reload(context.Background())
		if err != nil {
			exitWithError("failed to query daemon (is it running?)", err)
		}
		if resp.Error != nil {
			exitWithError(resp.Error.Message, nil)
		}
		fmt.Println("Rules reloaded")
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}
