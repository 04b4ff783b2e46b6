package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fleetcore.ai/internal/config"
	"fleetcore.ai/internal/store"
)

var statusStorePath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print each bot's most recently persisted snapshot",
	Long: `status reads the fleet's SQLite store directly rather than attaching to a
running fleetctl run process, which exposes no RPC surface a second
invocation could query.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusStorePath, "store", "", "path to the fleet's SQLite store (default: from --config, or "+config.Default().Store.Path+")")
	rootCmd.AddCommand(statusCmd)
}

func storePathFlag(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Store.Path, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, err := storePathFlag(statusStorePath)
	if err != nil {
		return err
	}
	st, err := store.Open(path, "fleetctl-status")
	if err != nil {
		return fmt.Errorf("fleetctl: open store %s: %w", path, err)
	}
	defer st.Close()

	rows, err := st.LatestBotStates(context.Background())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no bot state recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tLAST SEEN\tHP\tHUNGER\tPOS\tGOAL")
	for _, r := range rows {
		p := r.Snap.Player
		goal := r.Snap.Task.CurrentGoal
		if goal == "" {
			goal = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t(%.0f,%.0f,%.0f)\t%s\n",
			r.AgentID, humanize.RelTime(time.UnixMilli(r.AtMs), time.Now(), "ago", "from now"),
			p.Health, p.Hunger, p.Position.X, p.Position.Y, p.Position.Z, goal)
	}
	return w.Flush()
}
