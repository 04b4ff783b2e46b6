// Package store implements the control core's persistence layer, spec
// §6's "Persistence layout": the append-only runs/bots/bot_state/
// subgoal_attempts/llm_calls/locks/incidents tables, backed by SQLite.
//
// Grounded on the teacher's internal/persistence/indexdb/sqlite.go: a
// single writer goroutine draining a buffered request channel, batching
// writes into transactions committed every N ops or every
// commitMaxWait, whichever comes first, so bursts of subgoal attempts or
// LLM calls never stall an agent's tick loop on disk I/O. Requests that
// arrive after Close has been called, or once the channel is full, are
// dropped rather than blocking the caller — the teacher's own choice for
// a secondary index that is not the source of truth for a running
// simulation; here it plays the same role for a running fleet.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"fleetcore.ai/internal/model"
	persistlog "fleetcore.ai/internal/persistence/log"
	"fleetcore.ai/internal/planner"
)

// Store is the control core's SQLite-backed persistence layer. It
// satisfies controller.AttemptStore, lockmgr.EventSink, and provides the
// run/bot/incident recording the Fleet Orchestrator needs, without either
// package importing this one (avoiding an import cycle: store depends on
// model and planner, never on controller or fleet).
type Store struct {
	db *sql.DB

	ch   chan writeReq
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	// attemptLog/llmLog are an optional zstd-compressed JSONL archive of
	// the same rows the writer goroutine commits to SQLite, set by
	// OpenWithArchive. SQLite remains the source of truth queried by
	// cmd/fleetctl; the archive exists for cheap long-term retention.
	attemptLog *persistlog.AttemptLogger
	llmLog     *persistlog.LLMCallLogger
}

type writeReqKind int

const (
	reqSubgoalAttempt writeReqKind = iota + 1
	reqLLMCall
	reqBotState
	reqLockEvent
	reqIncident
)

type writeReq struct {
	kind writeReqKind

	agentID string
	atMs    int64

	subgoalAttempt model.HistoryEntry

	llmReq    planner.Request
	llmResult planner.Result
	llmErr    error

	botState model.Snapshot

	lockEvent model.LockEvent

	incidentCategory string
	incidentDetail   string
}

// Open creates (or reuses) the SQLite database at path, running the
// control core's schema migrations and starting the writer goroutine.
// runID identifies this fleet run in the runs table.
func Open(path, runID string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.Exec(`INSERT INTO runs(run_id, started_at) VALUES (?, ?)`, runID, now); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: record run start: %w", err)
	}

	s := &Store{
		db: db,
		// High buffer: a burst of subgoal completions or LLM calls across
		// a whole fleet must never make an agent's tick loop wait on disk.
		ch: make(chan writeReq, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// OpenWithArchive is Open plus an hour-rotating zstd JSONL archive of
// every subgoal attempt and LLM call under archiveDir, for deployments
// that want raw history retained longer than they care to keep querying
// it from SQLite.
func OpenWithArchive(path, runID, archiveDir string) (*Store, error) {
	s, err := Open(path, runID)
	if err != nil {
		return nil, err
	}
	s.attemptLog = persistlog.NewAttemptLogger(archiveDir)
	s.llmLog = persistlog.NewLLMCallLogger(archiveDir)
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS bots (
			agent_id TEXT PRIMARY KEY,
			registered_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS bot_state (
			agent_id TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			snapshot_json TEXT NOT NULL,
			PRIMARY KEY (agent_id, at_ms)
		);`,
		`CREATE TABLE IF NOT EXISTS subgoal_attempts (
			agent_id TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			subgoal_name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error_code TEXT,
			duration_ms INTEGER NOT NULL,
			result_json TEXT NOT NULL,
			PRIMARY KEY (agent_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_subgoal_attempts_agent_time ON subgoal_attempts(agent_id, at_ms);`,
		`CREATE TABLE IF NOT EXISTS llm_calls (
			agent_id TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			tokens_in INTEGER NOT NULL,
			tokens_out INTEGER NOT NULL,
			error TEXT,
			request_json TEXT NOT NULL,
			response_json TEXT NOT NULL,
			PRIMARY KEY (agent_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_llm_calls_agent_time ON llm_calls(agent_id, at_ms);`,
		`CREATE TABLE IF NOT EXISTS locks (
			at_ms INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			action TEXT NOT NULL,
			resource_key TEXT NOT NULL,
			owner_agent_id TEXT NOT NULL,
			details_json TEXT NOT NULL,
			PRIMARY KEY (seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_locks_resource_time ON locks(resource_key, at_ms);`,
		`CREATE TABLE IF NOT EXISTS incidents (
			at_ms INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			category TEXT NOT NULL,
			detail TEXT NOT NULL,
			PRIMARY KEY (seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_agent_time ON incidents(agent_id, at_ms);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the current run, drains the writer goroutine and closes the
// database. Safe to call once; subsequent calls are no-ops.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		if s.attemptLog != nil {
			_ = s.attemptLog.Close()
		}
		if s.llmLog != nil {
			_ = s.llmLog.Close()
		}
		err = s.db.Close()
	})
	return err
}

func (s *Store) enqueue(r writeReq) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
	}
}

// RegisterBot records a bot joining this run, matching the `bots` table.
func (s *Store) RegisterBot(ctx context.Context, agentID string) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO bots(agent_id, registered_at) VALUES (?, ?)`, agentID, now)
	return err
}

// RecordSubgoalAttempt implements controller.AttemptStore.
func (s *Store) RecordSubgoalAttempt(ctx context.Context, agentID string, entry model.HistoryEntry) {
	s.enqueue(writeReq{kind: reqSubgoalAttempt, agentID: agentID, atMs: entry.Timestamp, subgoalAttempt: entry})
	if s.attemptLog != nil {
		_ = s.attemptLog.WriteAttempt(agentID, entry)
	}
}

// RecordLLMCall implements controller.AttemptStore.
func (s *Store) RecordLLMCall(ctx context.Context, agentID string, req planner.Request, result planner.Result, callErr error) {
	atMs := time.Now().UnixMilli()
	s.enqueue(writeReq{kind: reqLLMCall, agentID: agentID, atMs: atMs, llmReq: req, llmResult: result, llmErr: callErr})
	if s.llmLog != nil {
		_ = s.llmLog.WriteCall(agentID, atMs, req, result, callErr)
	}
}

// RecordBotState persists a snapshot, matching `bot_state(snapshot_json)`.
func (s *Store) RecordBotState(ctx context.Context, agentID string, snap model.Snapshot) {
	s.enqueue(writeReq{kind: reqBotState, agentID: agentID, atMs: time.Now().UnixMilli(), botState: snap})
}

// RecordLockEvent implements lockmgr.EventSink.
func (s *Store) RecordLockEvent(ev model.LockEvent) {
	s.enqueue(writeReq{kind: reqLockEvent, agentID: ev.OwnerAgentID, atMs: ev.AtMs, lockEvent: ev})
}

// RecordIncident persists a connection-end/kick/reconnect-failure event,
// matching spec §7's "Incidents" category.
func (s *Store) RecordIncident(ctx context.Context, agentID, category, detail string) {
	s.enqueue(writeReq{kind: reqIncident, agentID: agentID, atMs: time.Now().UnixMilli(), incidentCategory: category, incidentDetail: detail})
}

func (s *Store) loop() {
	ctx := context.Background()

	insertAttempt, _ := s.db.Prepare(`INSERT OR REPLACE INTO subgoal_attempts(agent_id,at_ms,seq,subgoal_name,outcome,error_code,duration_ms,result_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertLLMCall, _ := s.db.Prepare(`INSERT OR REPLACE INTO llm_calls(agent_id,at_ms,seq,status,tokens_in,tokens_out,error,request_json,response_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertBotState, _ := s.db.Prepare(`INSERT OR REPLACE INTO bot_state(agent_id,at_ms,snapshot_json) VALUES(?,?,?)`)
	insertLock, _ := s.db.Prepare(`INSERT OR REPLACE INTO locks(at_ms,seq,action,resource_key,owner_agent_id,details_json) VALUES(?,?,?,?,?,?)`)
	insertIncident, _ := s.db.Prepare(`INSERT OR REPLACE INTO incidents(at_ms,seq,agent_id,category,detail) VALUES(?,?,?,?,?)`)
	defer closeAll(insertAttempt, insertLLMCall, insertBotState, insertLock, insertIncident)

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 500
		commitWait  = time.Second

		attemptSeq  int64
		llmSeq      int64
		lockSeq     int64
		incidentSeq int64
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}
	flushIfNeeded := func() {
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitWait) {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}

		switch r.kind {
		case reqSubgoalAttempt:
			e := r.subgoalAttempt
			raw, _ := json.Marshal(e)
			attemptSeq++
			if insertAttempt != nil {
				if _, err := tx.Stmt(insertAttempt).Exec(r.agentID, r.atMs, attemptSeq, string(e.SubgoalName), string(e.Outcome), string(e.ErrorCode), e.DurationMs, string(raw)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqLLMCall:
			errText := ""
			if r.llmErr != nil {
				errText = r.llmErr.Error()
			}
			reqJSON, _ := json.Marshal(r.llmReq)
			respJSON, _ := json.Marshal(r.llmResult.Response)
			llmSeq++
			if insertLLMCall != nil {
				if _, err := tx.Stmt(insertLLMCall).Exec(r.agentID, r.atMs, llmSeq, string(r.llmResult.Status), r.llmResult.TokensIn, r.llmResult.TokensOut, errText, string(reqJSON), string(respJSON)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqBotState:
			snapJSON, _ := json.Marshal(r.botState)
			if insertBotState != nil {
				if _, err := tx.Stmt(insertBotState).Exec(r.agentID, r.atMs, string(snapJSON)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqLockEvent:
			ev := r.lockEvent
			raw, _ := json.Marshal(ev)
			lockSeq++
			if insertLock != nil {
				if _, err := tx.Stmt(insertLock).Exec(ev.AtMs, lockSeq, string(ev.Action), ev.ResourceKey, ev.OwnerAgentID, string(raw)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqIncident:
			incidentSeq++
			if insertIncident != nil {
				if _, err := tx.Stmt(insertIncident).Exec(r.atMs, incidentSeq, r.agentID, r.incidentCategory, r.incidentDetail); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}

		flushIfNeeded()
	}

	commit()
}

func closeAll(stmts ...*sql.Stmt) {
	for _, s := range stmts {
		if s != nil {
			_ = s.Close()
		}
	}
}
