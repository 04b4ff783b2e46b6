package controller

import (
	"time"

	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/reflex"
)

// Config holds the Agent Controller's tick-loop timings, all named in
// spec §6's config surface (orch_tick_ms, subgoal_exec_timeout_ms, ...).
type Config struct {
	TickInterval          time.Duration
	ExecTimeout           time.Duration
	ProgressProbeInterval time.Duration
	IdleStallTimeout      time.Duration
	StuckMinElapsed       time.Duration
	StuckHandlingCooldown time.Duration

	PrefetchEnabled      bool
	PrefetchStartAfter   time.Duration
	PrefetchMinInterval  time.Duration
	PrefetchMaxAge       time.Duration
	PrefetchReserveCalls int
	PlannerPerAgentCap   int
	PlannerGlobalCap     int

	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	LoopGuardRepeats  int
	StreakWindow      time.Duration
	SubgoalRetryLimit int

	ReconnectBaseDelay time.Duration
	ReconnectJitter    time.Duration
	ReconnectFastDelay time.Duration

	AlwaysActiveFallbackEnabled bool
	HistoryLimit                int
	SnapshotTimeout              time.Duration

	BasePosition model.Position

	Reflex reflex.Config
}

// DefaultConfig mirrors spec §4.9/§4.10's named defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:          50 * time.Millisecond,
		ExecTimeout:           180 * time.Second,
		ProgressProbeInterval: 700 * time.Millisecond,
		IdleStallTimeout:      5 * time.Second,
		StuckMinElapsed:       5 * time.Second,
		StuckHandlingCooldown: 2 * time.Second,

		PrefetchEnabled:      true,
		PrefetchStartAfter:   1200 * time.Millisecond,
		PrefetchMinInterval:  5 * time.Second,
		PrefetchMaxAge:       8 * time.Second,
		PrefetchReserveCalls: 2,

		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     15 * time.Second,
		LoopGuardRepeats:  8,
		StreakWindow:      180 * time.Second,
		SubgoalRetryLimit: 3,

		ReconnectBaseDelay: 2 * time.Second,
		ReconnectJitter:    time.Second,
		ReconnectFastDelay: 700 * time.Millisecond,

		AlwaysActiveFallbackEnabled: true,
		HistoryLimit:                 20,
		SnapshotTimeout:               3 * time.Second,

		Reflex: reflex.DefaultConfig(),
	}
}
