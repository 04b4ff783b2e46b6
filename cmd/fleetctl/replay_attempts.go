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

var (
	replayStorePath string
	replayCount     int
)

var replayAttemptsCmd = &cobra.Command{
	Use:   "replay-attempts <agent-id>",
	Short: "Print an agent's most recent subgoal attempts",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplayAttempts,
}

func init() {
	replayAttemptsCmd.Flags().StringVar(&replayStorePath, "store", "", "path to the fleet's SQLite store")
	replayAttemptsCmd.Flags().IntVarP(&replayCount, "count", "n", 20, "number of attempts to print, newest first")
	rootCmd.AddCommand(replayAttemptsCmd)
}

func runReplayAttempts(cmd *cobra.Command, args []string) error {
	agentID := args[0]
	path, err := storePathFlag(replayStorePath)
	if err != nil {
		return err
	}
	st, err := store.Open(path, "fleetctl-replay-attempts")
	if err != nil {
		return fmt.Errorf("fleetctl: open store %s: %w", path, err)
	}
	defer st.Close()

	entries, err := st.RecentSubgoalAttempts(context.Background(), agentID, replayCount)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("no subgoal attempts recorded for %s\n", agentID)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSUBGOAL\tOUTCOME\tERROR\tDURATION")
	for _, e := range entries {
		errCode := "-"
		if e.ErrorCode != "" {
			errCode = string(e.ErrorCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(time.UnixMilli(e.Timestamp), time.Now(), "ago", "from now"),
			e.SubgoalName, e.Outcome, errCode,
			time.Duration(e.DurationMs)*time.Millisecond)
	}
	return w.Flush()
}
