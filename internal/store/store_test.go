package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/planner"
)

func waitForWriter() {
	time.Sleep(100 * time.Millisecond)
}

func TestOpenRecordsRunStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")

	s, err := Open(path, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var runID string
	row := db.QueryRow(`SELECT run_id FROM runs WHERE run_id=?`, "run-1")
	if err := row.Scan(&runID); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if runID != "run-1" {
		t.Fatalf("run_id = %q, want run-1", runID)
	}
}

func TestRecordSubgoalAttemptPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")

	s, err := Open(path, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entry := model.HistoryEntry{
		Timestamp:   1000,
		SubgoalName: "mine_block",
		Outcome:     model.OutcomeSuccess,
		HealthDelta: -1,
		DurationMs:  250,
	}
	s.RecordSubgoalAttempt(context.Background(), "agent-1", entry)
	waitForWriter()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var agentID, name, outcome string
	var durationMs int64
	row := db.QueryRow(`SELECT agent_id,subgoal_name,outcome,duration_ms FROM subgoal_attempts WHERE agent_id=?`, "agent-1")
	if err := row.Scan(&agentID, &name, &outcome, &durationMs); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if agentID != "agent-1" || name != "mine_block" || outcome != string(model.OutcomeSuccess) || durationMs != 250 {
		t.Fatalf("row mismatch: agent=%q name=%q outcome=%q duration=%d", agentID, name, outcome, durationMs)
	}
}

func TestRecordLLMCallPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")

	s, err := Open(path, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	req := planner.Request{BotID: "agent-1"}
	result := planner.Result{Status: planner.StatusSuccess, TokensIn: 10, TokensOut: 20}
	s.RecordLLMCall(context.Background(), "agent-1", req, result, nil)
	waitForWriter()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var status string
	var tokensIn, tokensOut int
	row := db.QueryRow(`SELECT status,tokens_in,tokens_out FROM llm_calls WHERE agent_id=?`, "agent-1")
	if err := row.Scan(&status, &tokensIn, &tokensOut); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if status != string(planner.StatusSuccess) || tokensIn != 10 || tokensOut != 20 {
		t.Fatalf("row mismatch: status=%q in=%d out=%d", status, tokensIn, tokensOut)
	}
}

func TestRecordLockEventPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")

	s, err := Open(path, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.RecordLockEvent(model.LockEvent{
		Action:       model.LockActionAcquire,
		ResourceKey:  "chest:0,64,0",
		OwnerAgentID: "agent-1",
		AtMs:         2000,
	})
	waitForWriter()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var action, resourceKey, owner string
	row := db.QueryRow(`SELECT action,resource_key,owner_agent_id FROM locks WHERE resource_key=?`, "chest:0,64,0")
	if err := row.Scan(&action, &resourceKey, &owner); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if action != string(model.LockActionAcquire) || resourceKey != "chest:0,64,0" || owner != "agent-1" {
		t.Fatalf("row mismatch: action=%q resource=%q owner=%q", action, resourceKey, owner)
	}
}

func TestRecordIncidentPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")

	s, err := Open(path, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.RecordIncident(context.Background(), "agent-1", "reconnect_failed", "dial tcp: timeout")
	waitForWriter()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var category, detail string
	row := db.QueryRow(`SELECT category,detail FROM incidents WHERE agent_id=?`, "agent-1")
	if err := row.Scan(&category, &detail); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if category != "reconnect_failed" {
		t.Fatalf("category = %q, want reconnect_failed", category)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")

	s, err := Open(path, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMetricsObserveAndSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveSubgoalDuration("agent-1", "mine_block", 100*time.Millisecond)
	m.ObserveSubgoalDuration("agent-1", "mine_block", 300*time.Millisecond)
	m.IncSubgoalFailure("agent-1", "mine_block", model.FailPathfindFailed)

	count, mean := m.SubgoalDurationSnapshot("mine_block")
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if mean != 200*time.Millisecond {
		t.Fatalf("mean = %v, want 200ms", mean)
	}
	if got := m.FailureCount("mine_block", model.FailPathfindFailed); got != 1 {
		t.Fatalf("FailureCount = %d, want 1", got)
	}
}
