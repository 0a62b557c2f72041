package cmd

import (
	"github.com/spf13/cobra"

	"icc.tech/pktbridge/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the forwarding daemon",
	Long: `
Start the pktbridge daemon: attach to the configured interfaces, compile
the rule set and forward frames until stopped.

Examples:
  pktbridge start                        # Start with the default config path
  pktbridge start -c /etc/pktbridge.yml  # Start with an explicit config file
`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := daemon.New(configFile)
		if err != nil {
			exitWithError("failed to initialize daemon", err)
		}
		if err := d.Start(); err != nil {
			exitWithError("failed to start daemon", err)
		}
		if err := d.Run(); err != nil {
			exitWithError("daemon exited", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
