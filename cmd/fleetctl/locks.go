package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fleetcore.ai/internal/store"
)

var locksStorePath string

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Print current resource lock ownership",
	RunE:  runLocks,
}

func init() {
	locksCmd.Flags().StringVar(&locksStorePath, "store", "", "path to the fleet's SQLite store")
	rootCmd.AddCommand(locksCmd)
}

func runLocks(cmd *cobra.Command, args []string) error {
	path, err := storePathFlag(locksStorePath)
	if err != nil {
		return err
	}
	st, err := store.Open(path, "fleetctl-locks")
	if err != nil {
		return fmt.Errorf("fleetctl: open store %s: %w", path, err)
	}
	defer st.Close()

	rows, err := st.CurrentLockOwners(context.Background())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no locks recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tOWNER\tSINCE\tACTION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ResourceKey, r.OwnerAgent,
			humanize.RelTime(time.UnixMilli(r.AtMs), time.Now(), "ago", "from now"), r.Action)
	}
	return w.Flush()
}
