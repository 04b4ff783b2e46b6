package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fleetcore.ai/internal/config"
	"fleetcore.ai/internal/fleet"
	"fleetcore.ai/internal/llmclient"
	"fleetcore.ai/internal/store"
	"fleetcore.ai/internal/transport/botlink"
)

var (
	runCatalogPath string
	runServerURL   string
	runLLMURL      string
	runLLMAPIKey   string
	runArchiveDir  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the configured fleet and block until interrupted",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCatalogPath, "catalog", "", "path to a catalog JSON file (empty runs with no game-data catalog)")
	runCmd.Flags().StringVar(&runServerURL, "server", "ws://127.0.0.1:8080/v1/ws", "game server websocket URL")
	runCmd.Flags().StringVar(&runLLMURL, "llm-url", "", "LLM completion endpoint (required)")
	runCmd.Flags().StringVar(&runLLMAPIKey, "llm-api-key", os.Getenv("FLEETCTL_LLM_API_KEY"), "LLM API key (default: $FLEETCTL_LLM_API_KEY)")
	runCmd.Flags().StringVar(&runArchiveDir, "archive-dir", "", "directory for the zstd JSONL attempt/LLM-call archive (empty disables it)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runLLMURL == "" {
		return fmt.Errorf("fleetctl: --llm-url is required")
	}

	logger := log.New(os.Stderr, "[fleetctl] ", log.LstdFlags|log.Lmicroseconds)

	lookup, err := loadCatalog(runCatalogPath)
	if err != nil {
		return err
	}

	botIDs := cfg.Fleet.BotIDs
	if len(botIDs) == 0 {
		botIDs = make([]string, cfg.Fleet.BotCount)
		for i := range botIDs {
			botIDs[i] = fmt.Sprintf("bot-%d", i+1)
		}
	}

	var st *store.Store
	if runArchiveDir != "" {
		st, err = store.OpenWithArchive(cfg.Store.Path, uuid.NewString(), runArchiveDir)
	} else {
		st, err = store.Open(cfg.Store.Path, uuid.NewString())
	}
	if err != nil {
		return fmt.Errorf("fleetctl: open store: %w", err)
	}

	metrics := store.NewMetrics()
	llm := llmclient.New(runLLMURL, runLLMAPIKey)
	factory := &botlink.Factory{URL: runServerURL, Logger: logger}

	orch := fleet.New(cfg.ToFleetConfig(botIDs), lookup, llm, factory, st, metrics, st, logger)

	ctx, cancel := signalContext()
	defer cancel()

	logger.Printf("starting fleet of %d bot(s) against %s", len(botIDs), runServerURL)
	if err := orch.Start(ctx); err != nil {
		orch.Stop()
		return fmt.Errorf("fleetctl: start fleet: %w", err)
	}

	<-ctx.Done()
	logger.Printf("shutting down")
	orch.Stop()
	return nil
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
