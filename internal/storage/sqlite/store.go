package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyike/CortexTrade/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusClean    = "clean"
	StatusDegraded = "degraded"
)

var ErrRunIDRequired = errors.New("run id is required")

type Store struct {
	db *sql.DB
}

// RunSummary is the indexed part of a stored run.
type RunSummary struct {
	RowID       int64    `json:"-"`
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Interval    string   `json:"interval"`
	Provider    string   `json:"provider"`
	Action      string   `json:"action,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Status      string   `json:"status"`
	ErrorCount  int      `json:"errorCount"`
	StartedAt   string   `json:"startedAt"`
	FinishedAt  string   `json:"finishedAt"`
	CreatedAt   string   `json:"createdAt"`
	ScoreReason string   `json:"scoreReason,omitempty"`
}

// RunRecord is a stored run with its full pipeline context.
type RunRecord struct {
	RunSummary
	Context models.PipelineContext `json:"context"`
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    interval TEXT NOT NULL,
    provider TEXT NOT NULL,
    action TEXT,
    score REAL,
    score_reason TEXT,
    status TEXT NOT NULL,
    error_count INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    context_json TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stage_errors (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    stage TEXT NOT NULL,
    kind TEXT,
    message TEXT NOT NULL,
    UNIQUE(run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_symbol_created ON runs(symbol, created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveRun stores the final context of a run. Saving the same run ID again
// replaces the previous record.
func (s *Store) SaveRun(ctx context.Context, pc models.PipelineContext) error {
	if strings.TrimSpace(pc.RunID) == "" {
		return ErrRunIDRequired
	}
	payload, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("encode run context: %w", err)
	}

	status := StatusClean
	if len(pc.StageErrors) > 0 {
		status = StatusDegraded
	}
	var action sql.NullString
	if pc.Suggestion != nil {
		action = sql.NullString{String: pc.Suggestion.Action, Valid: true}
	}
	var score sql.NullFloat64
	if pc.Score != nil {
		score = sql.NullFloat64{Float64: *pc.Score, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, symbol, interval, provider, action, score, score_reason, status, error_count, started_at, finished_at, context_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    action=excluded.action,
    score=excluded.score,
    score_reason=excluded.score_reason,
    status=excluded.status,
    error_count=excluded.error_count,
    finished_at=excluded.finished_at,
    context_json=excluded.context_json
`, pc.RunID, pc.Request.Symbol, pc.Request.Interval, pc.Request.Provider, action, score, pc.ScoreReason,
		status, len(pc.StageErrors), formatTime(pc.StartedAt), formatTime(pc.FinishedAt), string(payload))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_errors WHERE run_id = ?`, pc.RunID); err != nil {
		return fmt.Errorf("clear stage errors: %w", err)
	}
	for i, se := range pc.StageErrors {
		_, err := tx.ExecContext(ctx, `
INSERT INTO stage_errors (run_id, seq, stage, kind, message)
VALUES (?, ?, ?, ?, ?)
`, pc.RunID, i+1, se.Stage, se.Kind, se.Message)
		if err != nil {
			return fmt.Errorf("insert stage error: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// GetRun returns nil, nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ErrRunIDRequired
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+summaryColumns+`, context_json
FROM runs
WHERE id = ?
LIMIT 1
`, runID)

	var payload string
	summary, err := scanSummary(row, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	rec := RunRecord{RunSummary: summary}
	if err := json.Unmarshal([]byte(payload), &rec.Context); err != nil {
		return nil, fmt.Errorf("decode run context: %w", err)
	}
	return &rec, nil
}

// ListRuns pages runs newest first. cursor is the RowID of the last row of the
// previous page, 0 for the first page. symbol filters when non-empty.
func (s *Store) ListRuns(ctx context.Context, symbol string, cursor int64, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	rows, err := s.db.QueryContext(ctx, `
SELECT `+summaryColumns+`
FROM runs
WHERE (? = 0 OR rowid < ?) AND (? = '' OR symbol = ?)
ORDER BY rowid DESC
LIMIT ?
`, cursor, cursor, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		rec, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

func (s *Store) StageErrors(ctx context.Context, runID string) ([]models.StageError, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stage, kind, message
FROM stage_errors
WHERE run_id = ?
ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage errors: %w", err)
	}
	defer rows.Close()

	var out []models.StageError
	for rows.Next() {
		var se models.StageError
		var kind sql.NullString
		if err := rows.Scan(&se.Stage, &kind, &se.Message); err != nil {
			return nil, fmt.Errorf("scan stage error: %w", err)
		}
		se.Kind = kind.String
		out = append(out, se)
	}
	return out, rows.Err()
}

const summaryColumns = `rowid, id, symbol, interval, provider, action, score, score_reason, status, error_count, started_at, finished_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSummary reads summaryColumns followed by any extra columns.
func scanSummary(row rowScanner, extra ...any) (RunSummary, error) {
	var (
		r      RunSummary
		action sql.NullString
		score  sql.NullFloat64
		reason sql.NullString
	)
	dest := []any{&r.RowID, &r.ID, &r.Symbol, &r.Interval, &r.Provider, &action, &score, &reason,
		&r.Status, &r.ErrorCount, &r.StartedAt, &r.FinishedAt, &r.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return RunSummary{}, err
	}
	r.Action = action.String
	r.ScoreReason = reason.String
	if score.Valid {
		v := score.Float64
		r.Score = &v
	}
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
