package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"icc.tech/pktbridge/internal/config"
	"icc.tech/pktbridge/internal/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without starting",
	Long: `
Load the configuration file, including any standalone rules file, and
compile the rule set against the declared interface topology. Exits
non-zero on the first error.

Examples:
  pktbridge validate -c /etc/pktbridge/config.yml
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("invalid configuration", err)
		}

		specs, err := cfg.EffectiveRules()
		if err != nil {
			exitWithError("invalid rules file", err)
		}

		rs, err := rules.Compile(specs, cfg.DefaultAction, cfg.Topology())
		if err != nil {
			exitWithError("invalid rules", err)
		}

		fmt.Printf("Configuration OK: %d interfaces, %d rules, default action %q\n",
			len(cfg.Interfaces), rs.Len(), cfg.DefaultAction)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
