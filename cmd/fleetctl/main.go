// Command fleetctl runs and inspects a fleet of headless game-client
// agents driven by the control core: `run` brings a fleet up and blocks
// until SIGINT/SIGTERM, while `status`/`locks`/`replay-attempts` read
// back a fleet's persisted store, since a `run` process exposes no RPC
// surface for a second invocation to attach to.
//
// Subcommand structure is grounded on the cobra CLI in the example pack
// (a root command that registers each subcommand from its own init, a
// package-level rootCmd, an Execute entrypoint called from main) rather
// than the teacher's flag-based cmd/server/main.go, since the teacher
// itself has no multi-subcommand CLI to draw from; the process-lifecycle
// pieces (signal handling, *log.Logger setup) below are the teacher's.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
