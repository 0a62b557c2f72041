// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pktbridge",
	Short: "pktbridge - selective link-layer packet forwarding engine",
	Long: `pktbridge attaches to network interfaces, classifies incoming frames
against an ordered rule set and forwards matching frames to other
interfaces, entirely in userspace.

Features:
  - Rule-based forwarding: protocol, CIDR, port, VLAN and ingress matches
  - Backpressure isolation: a slow egress never stalls intake
  - Hot rule reload via SIGHUP or the control socket
  - Local control: CLI via Unix Domain Socket
  - Prometheus metrics`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/pktbridge/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/pktbridge.sock",
		"daemon socket path")
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
