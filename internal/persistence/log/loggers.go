// Package log provides an append-only, zstd-compressed JSONL archive of
// subgoal attempts and LLM calls, a secondary record alongside the
// SQLite tables internal/store owns. Grounded on the teacher's
// internal/persistence/log.JSONLZstdWriter: one hour-rotating file per
// stream, flushed on every write since a crash should lose at most the
// last unflushed line, not an arbitrary in-memory batch.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"fleetcore.ai/internal/model"
	"fleetcore.ai/internal/planner"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AttemptEntry is one archived subgoal_attempts row, named by agent since
// the archive (unlike the SQLite table) is not already keyed by a
// per-agent primary key.
type AttemptEntry struct {
	AgentID string             `json:"agent_id"`
	Entry   model.HistoryEntry `json:"entry"`
}

// AttemptLogger archives every subgoal attempt across the fleet.
type AttemptLogger struct{ w *JSONLZstdWriter }

func NewAttemptLogger(archiveDir string) *AttemptLogger {
	return &AttemptLogger{w: NewJSONLZstdWriter(filepath.Join(archiveDir, "attempts"), "attempts")}
}

func (l *AttemptLogger) WriteAttempt(agentID string, entry model.HistoryEntry) error {
	return l.w.Write(AttemptEntry{AgentID: agentID, Entry: entry})
}
func (l *AttemptLogger) Close() error { return l.w.Close() }

// LLMCallEntry is one archived llm_calls row.
type LLMCallEntry struct {
	AgentID string          `json:"agent_id"`
	AtMs    int64           `json:"at_ms"`
	Request planner.Request `json:"request"`
	Result  planner.Result  `json:"result"`
	Error   string          `json:"error,omitempty"`
}

// LLMCallLogger archives every planner LLM call across the fleet.
type LLMCallLogger struct{ w *JSONLZstdWriter }

func NewLLMCallLogger(archiveDir string) *LLMCallLogger {
	return &LLMCallLogger{w: NewJSONLZstdWriter(filepath.Join(archiveDir, "llm_calls"), "llm_calls")}
}

func (l *LLMCallLogger) WriteCall(agentID string, atMs int64, req planner.Request, result planner.Result, callErr error) error {
	e := LLMCallEntry{AgentID: agentID, AtMs: atMs, Request: req, Result: result}
	if callErr != nil {
		e.Error = callErr.Error()
	}
	return l.w.Write(e)
}
func (l *LLMCallLogger) Close() error { return l.w.Close() }
