// Package planner implements the Planner Service (spec §4.6) and the
// Fallback Planner (spec §4.7): the LLM-backed plan(request) contract
// with schema validation, rate limiting, retries, normalization,
// feasibility-guard application and reprompt loop, plus the pure
// deterministic fallback used on rate-limit denial or uncaught failure.
//
// Grounded on the teacher's internal/protocol/schemas_test.go for the
// jsonschema/v5 validation pattern, and on kibbyd-adaptive-state's
// internal/orchestrator/retry.go for the jittered-retry shape (the
// teacher itself has no LLM client or retry loop — its bot client is a
// dumb, un-retried websocket loop).
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/guard"
	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/normalizer"
	"fleetcore.ai/internal/ratelimit"
)

// Config holds the planner knobs named in spec §6's config surface.
type Config struct {
	TimeoutMs                     int
	MaxRetries                    int
	FeasibilityRepromptEnabled    bool
	FeasibilityRepromptMaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		TimeoutMs:                      8000,
		MaxRetries:                     2,
		FeasibilityRepromptEnabled:     true,
		FeasibilityRepromptMaxAttempts: 2,
	}
}

// Service is the Planner Service: it owns no per-agent state, only the
// shared Rate Limiter, the Feasibility Guard, the LLM client, and the
// compiled schemas.
type Service struct {
	llm      adapter.LLM
	limiter  *ratelimit.Limiter
	guard    *guard.Guard
	fallback *FallbackPlanner
	schemas  *schemas
	cfg      Config
	logger   *log.Logger

	// now is overridable for deterministic tests.
	now func() time.Time
}

func New(llm adapter.LLM, limiter *ratelimit.Limiter, g *guard.Guard, cfg Config, logger *log.Logger) (*Service, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile planner schemas: %w", err)
	}
	return &Service{
		llm:      llm,
		limiter:  limiter,
		guard:    g,
		fallback: NewFallbackPlanner(g),
		schemas:  s,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Plan implements spec §4.6's six-step contract. basePos is the agent's
// configured home base, forwarded to the Fallback Planner.
func (s *Service) Plan(ctx context.Context, req Request, basePos model.Position) (Result, error) {
	if req.History == nil {
		req.History = []model.HistoryEntry{}
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal planner request: %w", err)
	}
	reqDecoded, err := decodeAny(string(reqJSON))
	if err != nil {
		return Result{}, fmt.Errorf("decode planner request: %w", err)
	}
	if err := s.schemas.validateRequest(reqDecoded); err != nil {
		return Result{}, fmt.Errorf("planner request fails schema validation: %w", err)
	}

	decision := s.limiter.Consume(req.BotID)
	if !decision.Allowed {
		reason := fmt.Sprintf("RATE_LIMIT_%s", decision.Reason)
		return Result{
			Status:   StatusRateLimited,
			Response: s.fallback.Plan(req.Snapshot, reason, basePos),
			Notes:    []string{fmt.Sprintf("rate_limited:%s retry_after_ms=%d", decision.Reason, decision.RetryAfterMs)},
		}, nil
	}

	result, err := s.planWithLLM(ctx, req)
	if err != nil {
		s.logger.Printf("planner fallback for bot=%s: %v", req.BotID, err)
		return Result{
			Status:   StatusFallback,
			Response: s.fallback.Plan(req.Snapshot, fmt.Sprintf("PLANNER_ERROR:%s", err.Error()), basePos),
			Notes:    []string{err.Error()},
		}, nil
	}
	return result, nil
}

// planWithLLM is steps 3-6: the LLM call with retries, parse, normalize,
// guard, and the reprompt loop.
func (s *Service) planWithLLM(ctx context.Context, req Request) (Result, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	text, tokensIn, tokensOut, err := s.callLLM(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	subgoals, notes, err := s.parseAndNormalize(text)
	if err != nil {
		return Result{}, err
	}
	if len(subgoals) == 0 {
		return Result{}, fmt.Errorf("planner response normalized to zero subgoals")
	}

	plan := model.Plan{NextGoal: req.Snapshot.Task.CurrentGoal, Subgoals: subgoals}

	guarded, guardNotes := s.guard.Apply(req.Snapshot, plan)
	notes = append(notes, guardNotes...)

	attempts := 0
	for s.cfg.FeasibilityRepromptEnabled &&
		attempts < s.cfg.FeasibilityRepromptMaxAttempts &&
		!plan.CanonicalEqual(guarded) {

		decision := s.limiter.Consume(req.BotID)
		if !decision.Allowed {
			notes = append(notes, fmt.Sprintf("reprompt_skipped_rate_limited:%s", decision.Reason))
			break
		}

		repairPrompt, err := buildRepairPrompt(req, plan.Subgoals, guarded.Subgoals, guardNotes)
		if err != nil {
			notes = append(notes, fmt.Sprintf("reprompt_build_failed:%v", err))
			break
		}

		text, moreIn, moreOut, err := s.callLLM(ctx, repairPrompt)
		tokensIn += moreIn
		tokensOut += moreOut
		if err != nil {
			notes = append(notes, fmt.Sprintf("reprompt_llm_failed:%v", err))
			break
		}

		reSubgoals, reNotes, err := s.parseAndNormalize(text)
		if err != nil || len(reSubgoals) == 0 {
			notes = append(notes, fmt.Sprintf("reprompt_parse_failed_attempt_%d", attempts+1))
			break
		}
		notes = append(notes, reNotes...)

		plan = model.Plan{NextGoal: req.Snapshot.Task.CurrentGoal, Subgoals: reSubgoals}
		guarded, guardNotes = s.guard.Apply(req.Snapshot, plan)
		notes = append(notes, guardNotes...)
		attempts++
	}

	if attempts > 0 && plan.CanonicalEqual(guarded) {
		notes = append(notes, "feasibility_reprompt_resolved")
	}

	return Result{
		Status:    StatusSuccess,
		Response:  guarded,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Notes:     notes,
	}, nil
}

// callLLM retries up to cfg.MaxRetries times with jittered delay
// ~80*(attempt+1)ms, per spec §4.6 step 3.
func (s *Service) callLLM(ctx context.Context, prompt string) (text string, tokensIn, tokensOut int, err error) {
	for attempt := 0; ; attempt++ {
		resp, callErr := s.llm.Generate(ctx, prompt, s.cfg.TimeoutMs)
		if callErr == nil {
			return resp.Text, resp.TokensIn, resp.TokensOut, nil
		}
		err = callErr
		if attempt >= s.cfg.MaxRetries {
			return "", 0, 0, fmt.Errorf("llm generate failed after %d attempts: %w", attempt+1, err)
		}

		delay := time.Duration(80*(attempt+1)) * time.Millisecond
		delay += time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Service) parseAndNormalize(raw string) ([]model.Subgoal, []string, error) {
	jsonText, ok := extractJSON(raw)
	if !ok {
		return nil, nil, fmt.Errorf("could not extract JSON from planner response")
	}

	decoded, err := decodeAny(jsonText)
	if err != nil {
		return nil, nil, fmt.Errorf("parse planner response: %w", err)
	}
	if err := s.schemas.validateResponse(decoded); err != nil {
		return nil, nil, fmt.Errorf("planner response fails schema validation: %w", err)
	}

	var parsed struct {
		NextGoal    string          `json:"next_goal"`
		Subgoals    []model.Subgoal `json:"subgoals"`
		RiskFlags   []string        `json:"risk_flags,omitempty"`
		Constraints model.Params    `json:"constraints,omitempty"`
	}
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return nil, nil, fmt.Errorf("parse planner response: %w", err)
	}

	subgoals, notes := normalizer.Normalize(parsed.Subgoals)
	return subgoals, notes, nil
}
