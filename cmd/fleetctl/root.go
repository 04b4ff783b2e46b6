package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Run and inspect a fleet of control-core agents",
	Long: `fleetctl brings up a fleet of headless game-client agents under the
control core and can inspect a fleet's persisted store after the fact.

  fleetctl run               start the configured fleet and block
  fleetctl status            print each bot's last persisted state and goal
  fleetctl locks              print current resource lock ownership
  fleetctl replay-attempts    print an agent's recent subgoal attempts`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to fleet config YAML (defaults applied if unset)")
}
