package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"FinSite/internal/calendar"
	"FinSite/internal/logger"
	"FinSite/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logger.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.NewSilent()
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backfill_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT    NOT NULL UNIQUE,
			mode        TEXT    NOT NULL,
			window_start TEXT,
			window_end  TEXT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			tickers     INTEGER,
			filled      INTEGER,
			skipped     INTEGER,
			failed      INTEGER,
			aborted     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON backfill_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS backfill_ticker_results (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT    NOT NULL,
			ticker         TEXT    NOT NULL,
			missing        INTEGER,
			filled         INTEGER,
			skipped        INTEGER,
			fetch_failures INTEGER,
			error          TEXT,
			elapsed_ms     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON backfill_ticker_results(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun stores the run header and one row per ticker in a single transaction.
func (r *SQLiteRecorder) RecordRun(sum *model.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO backfill_runs
		(run_id, mode, window_start, window_end, started_at, finished_at, tickers, filled, skipped, failed, aborted)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		sum.RunID, sum.Mode, calendar.FormatDay(sum.Start), calendar.FormatDay(sum.End),
		sum.StartedAt.UnixMilli(), sum.FinishedAt.UnixMilli(),
		len(sum.Results), sum.Filled(), sum.Skipped(), len(sum.FailedTickers()), sum.Aborted,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range sum.Results {
		if _, err := tx.Exec(`INSERT INTO backfill_ticker_results
			(run_id, ticker, missing, filled, skipped, fetch_failures, error, elapsed_ms)
			VALUES (?,?,?,?,?,?,?,?)`,
			sum.RunID, res.Ticker, res.Missing, res.Filled, res.Skipped, res.FetchFailures,
			res.Err, res.Elapsed.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert result for %s: %w", res.Ticker, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the latest run headers, newest first.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT run_id, mode, window_start, window_end, started_at, finished_at,
		tickers, filled, skipped, failed, aborted
		FROM backfill_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished int64
		if err := rows.Scan(&rec.RunID, &rec.Mode, &rec.Start, &rec.End, &started, &finished,
			&rec.Tickers, &rec.Filled, &rec.Skipped, &rec.Failed, &rec.Aborted); err != nil {
			return nil, err
		}
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
