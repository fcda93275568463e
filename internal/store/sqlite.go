package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"FinSite/internal/calendar"
	"FinSite/internal/logger"
	"FinSite/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps prices in a local SQLite file. A single connection
// serialises writers; WAL keeps readers unblocked.
type SQLiteStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewSilent()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL UNIQUE,
			name   TEXT,
			sector TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS daily_price (
			company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			trade_date TEXT    NOT NULL,
			open       REAL,
			high       REAL,
			low        REAL,
			close      REAL    NOT NULL,
			volume     INTEGER,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (company_id, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_price_date ON daily_price(trade_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker FROM companies ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ExistingTradeDates(ctx context.Context, ticker string, start, end time.Time) (map[time.Time]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dp.trade_date FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id
		WHERE c.ticker = ? AND dp.trade_date BETWEEN ? AND ?`,
		NormalizeTicker(ticker), calendar.FormatDay(start), calendar.FormatDay(end))
	if err != nil {
		return nil, fmt.Errorf("existing trade dates: %w", err)
	}
	defer rows.Close()
	out := make(map[time.Time]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := calendar.ParseDay(raw)
		if err != nil {
			return nil, err
		}
		out[d] = struct{}{}
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureCompany(ctx context.Context, db execer, ticker, name, sector string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO companies (ticker, name, sector) VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO NOTHING`,
		ticker, defaultName(ticker, name), nullable(sector))
	return err
}

func (s *SQLiteStore) EnsureCompany(ctx context.Context, ticker, name, sector string) error {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return errors.New("ensure company: empty ticker")
	}
	if err := ensureCompany(ctx, s.db, ticker, name, sector); err != nil {
		return fmt.Errorf("ensure company %s: %w", ticker, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertOHLCV(ctx context.Context, ticker string, p model.DailyPrice) error {
	ticker = NormalizeTicker(ticker)
	o, h, l := resolve(p)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", ticker, err)
	}
	defer tx.Rollback()

	if err := ensureCompany(ctx, tx, ticker, "", ""); err != nil {
		return fmt.Errorf("upsert %s: %w", ticker, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_price (company_id, trade_date, open, high, low, close, volume, updated_at)
		SELECT id, ?, ?, ?, ?, ?, ?, ? FROM companies WHERE ticker = ?
		ON CONFLICT(company_id, trade_date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			updated_at = excluded.updated_at`,
		calendar.FormatDay(p.Date), o, h, l, p.Close, p.Volume, time.Now().Unix(), ticker)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", ticker, calendar.FormatDay(p.Date), err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) CloseSeries(ctx context.Context, ticker string, start, end time.Time) ([]model.ClosePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dp.trade_date, dp.close FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id
		WHERE c.ticker = ? AND dp.trade_date BETWEEN ? AND ?
		ORDER BY dp.trade_date`,
		NormalizeTicker(ticker), calendar.FormatDay(start), calendar.FormatDay(end))
	if err != nil {
		return nil, fmt.Errorf("close series: %w", err)
	}
	defer rows.Close()
	var out []model.ClosePoint
	for rows.Next() {
		var raw string
		var p model.ClosePoint
		if err := rows.Scan(&raw, &p.Close); err != nil {
			return nil, err
		}
		if p.Date, err = calendar.ParseDay(raw); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCV, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dp.trade_date, dp.open, dp.high, dp.low, dp.close, dp.volume FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id
		WHERE c.ticker = ? AND dp.trade_date BETWEEN ? AND ?
		ORDER BY dp.trade_date`,
		NormalizeTicker(ticker), calendar.FormatDay(start), calendar.FormatDay(end))
	if err != nil {
		return nil, fmt.Errorf("price series: %w", err)
	}
	defer rows.Close()
	var out []model.OHLCV
	for rows.Next() {
		var raw string
		var o, h, l sql.NullFloat64
		var v sql.NullInt64
		var b model.OHLCV
		if err := rows.Scan(&raw, &o, &h, &l, &b.Close, &v); err != nil {
			return nil, err
		}
		if b.Date, err = calendar.ParseDay(raw); err != nil {
			return nil, err
		}
		b.Open, b.High, b.Low = orClose(o, b.Close), orClose(h, b.Close), orClose(l, b.Close)
		b.Volume = v.Int64
		out = append(out, b)
	}
	return out, rows.Err()
}

func orClose(v sql.NullFloat64, c float64) float64 {
	if v.Valid {
		return v.Float64
	}
	return c
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.Company) error {
	ticker := NormalizeTicker(c.Ticker)
	if ticker == "" {
		return errors.New("upsert company: empty ticker")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (ticker, name, sector) VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = COALESCE(?, companies.name),
			sector = COALESCE(?, companies.sector)`,
		ticker, defaultName(ticker, c.Name), nullable(c.Sector), nullable(c.Name), nullable(c.Sector))
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", ticker, err)
	}
	return nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, q string, limit, offset int) ([]model.Company, error) {
	limit, offset = clampPage(limit, offset)
	pattern := "%" + strings.TrimSpace(q) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, COALESCE(name, ticker), COALESCE(sector, '') FROM companies
		WHERE ticker LIKE ? OR COALESCE(name, '') LIKE ?
		ORDER BY ticker LIMIT ? OFFSET ?`,
		pattern, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &c.Sector); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCompany(ctx context.Context, ticker string) (bool, error) {
	ticker = NormalizeTicker(ticker)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM daily_price WHERE company_id IN (SELECT id FROM companies WHERE ticker = ?)`, ticker); err != nil {
		return false, fmt.Errorf("delete prices for %s: %w", ticker, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM companies WHERE ticker = ?`, ticker)
	if err != nil {
		return false, fmt.Errorf("delete company %s: %w", ticker, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, tx.Commit()
}

func (s *SQLiteStore) DeletePrices(ctx context.Context, start, end time.Time, tickers []string) (int64, error) {
	query := `DELETE FROM daily_price WHERE trade_date BETWEEN ? AND ?`
	args := []any{calendar.FormatDay(start), calendar.FormatDay(end)}
	if len(tickers) > 0 {
		ph := make([]string, len(tickers))
		for i, t := range tickers {
			ph[i] = "?"
			args = append(args, NormalizeTicker(t))
		}
		query += ` AND company_id IN (SELECT id FROM companies WHERE ticker IN (` + strings.Join(ph, ",") + `))`
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete prices: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) LastPriceDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(dp.trade_date) FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id WHERE c.ticker = ?`,
		NormalizeTicker(ticker)).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last price date: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	d, err := calendar.ParseDay(raw.String)
	return d, err == nil, err
}

func (s *SQLiteStore) LatestClose(ctx context.Context, ticker string) (model.ClosePoint, bool, error) {
	var raw string
	var p model.ClosePoint
	err := s.db.QueryRowContext(ctx, `
		SELECT dp.trade_date, dp.close FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id WHERE c.ticker = ?
		ORDER BY dp.trade_date DESC LIMIT 1`,
		NormalizeTicker(ticker)).Scan(&raw, &p.Close)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClosePoint{}, false, nil
	}
	if err != nil {
		return model.ClosePoint{}, false, fmt.Errorf("latest close: %w", err)
	}
	if p.Date, err = calendar.ParseDay(raw); err != nil {
		return model.ClosePoint{}, false, err
	}
	return p, true, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.logger.Info().Msg("closing sqlite store")
	return s.db.Close()
}
