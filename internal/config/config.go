// Package config loads the fleet's YAML config surface (spec §6's
// "Config surface" table) and translates it into the typed Config
// structs each component package already defines.
//
// Grounded on the teacher's internal/sim/tuning/tuning.go: a flat struct
// of yaml-tagged fields loaded with gopkg.in/yaml.v3 and no defaulting
// inside Unmarshal itself — defaults live in a separate Default()
// constructor the way the teacher's callers apply tuning on top of
// hardcoded fallbacks rather than inside the loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fleetcore.ai/internal/controller"
	"fleetcore.ai/internal/fleet"
	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/planner"
)

// Config mirrors spec §6's config surface field-for-field, grouped the
// same way the spec's table groups them (Fleet, Loop, Skills, Planner,
// Coordination, Base coordinates).
type Config struct {
	Fleet struct {
		BotIDs             []string `yaml:"bot_ids"`
		BotCount           int      `yaml:"bot_count"`
		BotStartStaggerMs  int64    `yaml:"bot_start_stagger_ms"`
		ReconnectBaseDelayMs int64  `yaml:"reconnect_base_delay_ms"`
		ReconnectJitterMs  int64    `yaml:"reconnect_jitter_ms"`
	} `yaml:"fleet"`

	Loop struct {
		OrchTickMs            int64 `yaml:"orch_tick_ms"`
		SnapshotRefreshMs     int64 `yaml:"snapshot_refresh_ms"`
		SnapshotNearbyCacheMs int64 `yaml:"snapshot_nearby_cache_ms"`
	} `yaml:"loop"`

	Skills struct {
		MaxConcurrentSkills          int   `yaml:"max_concurrent_skills"`
		SubgoalExecTimeoutMs         int64 `yaml:"subgoal_exec_timeout_ms"`
		SubgoalIdleStallMs           int64 `yaml:"subgoal_idle_stall_ms"`
		SubgoalRetryLimit            int   `yaml:"subgoal_retry_limit"`
		SubgoalRetryBaseDelayMs      int64 `yaml:"subgoal_retry_base_delay_ms"`
		SubgoalRetryMaxDelayMs       int64 `yaml:"subgoal_retry_max_delay_ms"`
		SubgoalLoopGuardRepeats      int   `yaml:"subgoal_loop_guard_repeats"`
		SubgoalFailureStreakWindowMs int64 `yaml:"subgoal_failure_streak_window_ms"`
	} `yaml:"skills"`

	Planner struct {
		LLMHistoryLimit                     int   `yaml:"llm_history_limit"`
		PlannerTimeoutMs                    int64 `yaml:"planner_timeout_ms"`
		PlannerMaxRetries                   int   `yaml:"planner_max_retries"`
		PlannerCooldownMs                   int64 `yaml:"planner_cooldown_ms"`
		PlannerFeasibilityRepromptEnabled    bool  `yaml:"planner_feasibility_reprompt_enabled"`
		PlannerFeasibilityRepromptMaxAttempts int  `yaml:"planner_feasibility_reprompt_max_attempts"`
		LLMPerBotHourlyCap                   int   `yaml:"llm_per_bot_hourly_cap"`
		LLMGlobalHourlyCap                   int   `yaml:"llm_global_hourly_cap"`
		PlanPrefetchEnabled                  bool  `yaml:"plan_prefetch_enabled"`
		PlanPrefetchMinIntervalMs            int64 `yaml:"plan_prefetch_min_interval_ms"`
		PlanPrefetchMaxAgeMs                 int64 `yaml:"plan_prefetch_max_age_ms"`
		PlanPrefetchReserveCalls             int   `yaml:"plan_prefetch_reserve_calls"`
	} `yaml:"planner"`

	Coordination struct {
		MaxConcurrentExplorers int   `yaml:"max_concurrent_explorers"`
		LockLeaseMs            int64 `yaml:"lock_lease_ms"`
		LockHeartbeatMs         int64 `yaml:"lock_heartbeat_ms"`
	} `yaml:"coordination"`

	Base struct {
		X      float64 `yaml:"base_x"`
		Y      float64 `yaml:"base_y"`
		Z      float64 `yaml:"base_z"`
		Radius float64 `yaml:"base_radius"`
	} `yaml:"base"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// Default returns the named defaults from spec §4.9/§4.10, expressed as
// milliseconds/counts the way the YAML surface expresses them. It is the
// config a freshly-installed fleet runs with before any override file is
// applied.
func Default() Config {
	var c Config
	c.Fleet.BotCount = 1
	c.Fleet.BotStartStaggerMs = 500
	c.Fleet.ReconnectBaseDelayMs = 2000
	c.Fleet.ReconnectJitterMs = 1000

	c.Loop.OrchTickMs = 50
	c.Loop.SnapshotRefreshMs = 50
	c.Loop.SnapshotNearbyCacheMs = 0

	c.Skills.MaxConcurrentSkills = 5
	c.Skills.SubgoalExecTimeoutMs = 180000
	c.Skills.SubgoalIdleStallMs = 5000
	c.Skills.SubgoalRetryLimit = 3
	c.Skills.SubgoalRetryBaseDelayMs = 500
	c.Skills.SubgoalRetryMaxDelayMs = 15000
	c.Skills.SubgoalLoopGuardRepeats = 8
	c.Skills.SubgoalFailureStreakWindowMs = 180000

	c.Planner.LLMHistoryLimit = 20
	c.Planner.PlannerTimeoutMs = 8000
	c.Planner.PlannerMaxRetries = 2
	c.Planner.PlannerCooldownMs = 0
	c.Planner.PlannerFeasibilityRepromptEnabled = true
	c.Planner.PlannerFeasibilityRepromptMaxAttempts = 2
	c.Planner.LLMPerBotHourlyCap = 40
	c.Planner.LLMGlobalHourlyCap = 300
	c.Planner.PlanPrefetchEnabled = true
	c.Planner.PlanPrefetchMinIntervalMs = 5000
	c.Planner.PlanPrefetchMaxAgeMs = 8000
	c.Planner.PlanPrefetchReserveCalls = 2

	c.Coordination.MaxConcurrentExplorers = 3
	c.Coordination.LockLeaseMs = 15000
	c.Coordination.LockHeartbeatMs = 5000

	c.Store.Path = "fleet.db"
	return c
}

// Load reads a YAML file at path and merges it over Default(); a field
// the file does not set keeps its default value.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the bounds spec §6 names explicitly (bot_count 1-5,
// max_concurrent_skills 1-5); everything else is a plain non-negative
// duration or count with no named range.
func (c Config) Validate() error {
	if c.Fleet.BotCount < 1 || c.Fleet.BotCount > 5 {
		return fmt.Errorf("config: bot_count must be 1-5, got %d", c.Fleet.BotCount)
	}
	if c.Skills.MaxConcurrentSkills < 1 || c.Skills.MaxConcurrentSkills > 5 {
		return fmt.Errorf("config: max_concurrent_skills must be 1-5, got %d", c.Skills.MaxConcurrentSkills)
	}
	return nil
}

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

// ToFleetConfig translates the YAML surface into fleet.Config, the typed
// shape fleet.New consumes. BotIDs must already be resolved by
// the caller (fleetctl expands bot_count into bot-1..bot-N when
// fleet.bot_ids is unset) since the config surface itself only states a
// count, not identities.
func (c Config) ToFleetConfig(botIDs []string) fleet.Config {
	fc := fleet.DefaultConfig()
	fc.BotIDs = botIDs
	fc.BotStartStagger = ms(c.Fleet.BotStartStaggerMs)
	fc.RateLimitPerAgent = c.Planner.LLMPerBotHourlyCap
	fc.RateLimitGlobal = c.Planner.LLMGlobalHourlyCap
	fc.LockLeaseMs = c.Coordination.LockLeaseMs
	fc.LockHeartbeatMs = c.Coordination.LockHeartbeatMs
	fc.SkillConcurrency = c.Skills.MaxConcurrentSkills
	fc.ExplorerCapacity = c.Coordination.MaxConcurrentExplorers
	fc.SnapshotNearbyCacheTTL = ms(c.Loop.SnapshotNearbyCacheMs)

	fc.BotConfig = c.toControllerConfig()
	fc.PlannerCfg = c.toPlannerConfig()
	return fc
}

func (c Config) toControllerConfig() controller.Config {
	cc := controller.DefaultConfig()
	cc.TickInterval = ms(c.Loop.OrchTickMs)
	cc.ExecTimeout = ms(c.Skills.SubgoalExecTimeoutMs)
	cc.IdleStallTimeout = ms(c.Skills.SubgoalIdleStallMs)

	cc.PrefetchEnabled = c.Planner.PlanPrefetchEnabled
	cc.PrefetchMinInterval = ms(c.Planner.PlanPrefetchMinIntervalMs)
	cc.PrefetchMaxAge = ms(c.Planner.PlanPrefetchMaxAgeMs)
	cc.PrefetchReserveCalls = c.Planner.PlanPrefetchReserveCalls
	cc.PlannerPerAgentCap = c.Planner.LLMPerBotHourlyCap
	cc.PlannerGlobalCap = c.Planner.LLMGlobalHourlyCap

	cc.RetryBaseDelay = ms(c.Skills.SubgoalRetryBaseDelayMs)
	cc.RetryMaxDelay = ms(c.Skills.SubgoalRetryMaxDelayMs)
	cc.LoopGuardRepeats = c.Skills.SubgoalLoopGuardRepeats
	cc.StreakWindow = ms(c.Skills.SubgoalFailureStreakWindowMs)
	cc.SubgoalRetryLimit = c.Skills.SubgoalRetryLimit

	cc.ReconnectBaseDelay = ms(c.Fleet.ReconnectBaseDelayMs)
	cc.ReconnectJitter = ms(c.Fleet.ReconnectJitterMs)

	cc.HistoryLimit = c.Planner.LLMHistoryLimit

	cc.BasePosition = model.Position{X: c.Base.X, Y: c.Base.Y, Z: c.Base.Z}
	return cc
}

func (c Config) toPlannerConfig() planner.Config {
	pc := planner.DefaultConfig()
	pc.TimeoutMs = int(c.Planner.PlannerTimeoutMs)
	pc.MaxRetries = c.Planner.PlannerMaxRetries
	pc.FeasibilityRepromptEnabled = c.Planner.PlannerFeasibilityRepromptEnabled
	pc.FeasibilityRepromptMaxAttempts = c.Planner.PlannerFeasibilityRepromptMaxAttempts
	return pc
}
