package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pktbridge/internal/command"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon liveness and rule set info",
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)

		resp, err := client.Status(context.Background())
		if err != nil {
			exitWithError("failed to query daemon (is it running?)", err)
		}
		if resp.Error != nil {
			exitWithError(resp.Error.Message, nil)
		}

		out, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			exitWithError("failed to render status", err)
		}
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
