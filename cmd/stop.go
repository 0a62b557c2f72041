package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pktbridge/internal/command"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon gracefully",
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)

		resp, err := client.Shutdown(context.Background())
		if err != nil {
			exitWithError("failed to query daemon (is it running?)", err)
		}
		if resp.Error != nil {
			exitWithError(resp.Error.Message, nil)
		}
		fmt.Println("Shutdown requested")
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
