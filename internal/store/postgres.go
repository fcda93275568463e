package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"FinSite/internal/logger"
	"FinSite/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore is the production adapter backed by a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NormalizeDSN strips SQLAlchemy driver suffixes such as "+psycopg2".
func NormalizeDSN(dsn string) string {
	for _, suffix := range []string{"+psycopg2", "+psycopg", "+asyncpg"} {
		dsn = strings.Replace(dsn, suffix, "", 1)
	}
	return dsn
}

// OpenPostgres connects, verifies the connection and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string, log *logger.Logger) (*PostgresStore, error) {
	if log == nil {
		log = logger.NewSilent()
	}
	cfg, err := pgxpool.ParseConfig(NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: log}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("postgres store connected")
	return s, nil
}

// EnsureSchema creates the tables and backfills columns missing from older
// close-only deployments. It is safe to run repeatedly.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id     SERIAL PRIMARY KEY,
			ticker TEXT NOT NULL UNIQUE,
			name   TEXT,
			sector TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS daily_price (
			company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			trade_date DATE NOT NULL,
			close      NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (company_id, trade_date)
		)`,
		`ALTER TABLE daily_price ADD COLUMN IF NOT EXISTS open NUMERIC(12,2)`,
		`ALTER TABLE daily_price ADD COLUMN IF NOT EXISTS high NUMERIC(12,2)`,
		`ALTER TABLE daily_price ADD COLUMN IF NOT EXISTS low NUMERIC(12,2)`,
		`ALTER TABLE daily_price ADD COLUMN IF NOT EXISTS volume BIGINT`,
		`ALTER TABLE daily_price ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`,
		`CREATE INDEX IF NOT EXISTS idx_daily_price_date ON daily_price(trade_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *PostgresStore) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker FROM companies ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) ExistingTradeDates(ctx context.Context, ticker string, start, end time.Time) (map[time.Time]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT dp.trade_date FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id
		WHERE c.ticker = $1 AND dp.trade_date BETWEEN $2 AND $3`,
		NormalizeTicker(ticker), start, end)
	if err != nil {
		return nil, fmt.Errorf("existing trade dates: %w", err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		out[dateOnly(d)] = struct{}{}
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresStore) EnsureCompany(ctx context.Context, ticker, name, sector string) error {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return errors.New("ensure company: empty ticker")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (ticker, name, sector) VALUES ($1, $2, $3)
		ON CONFLICT (ticker) DO NOTHING`,
		ticker, defaultName(ticker, name), nullable(sector))
	if err != nil {
		return fmt.Errorf("ensure company %s: %w", ticker, err)
	}
	return nil
}

func (s *PostgresStore) UpsertOHLCV(ctx context.Context, ticker string, p model.DailyPrice) error {
	ticker = NormalizeTicker(ticker)
	o, h, l := resolve(p)
	_, err := s.pool.Exec(ctx, `
		WITH c AS (
			INSERT INTO companies (ticker, name) VALUES ($1, $1)
			ON CONFLICT (ticker) DO UPDATE SET ticker = EXCLUDED.ticker
			RETURNING id
		)
		INSERT INTO daily_price (company_id, trade_date, open, high, low, close, volume, updated_at)
		SELECT id, $2, $3, $4, $5, $6, $7, now() FROM c
		ON CONFLICT (company_id, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = now()`,
		ticker, p.Date, o, h, l, p.Close, p.Volume)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", ticker, p.Date.Format("2006-01-02"), err)
	}
	return nil
}

func (s *PostgresStore) CloseSeries(ctx context.Context, ticker string, start, end time.Time) ([]model.ClosePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT dp.trade_date, dp.close::float8 FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id
		WHERE c.ticker = $1 AND dp.trade_date BETWEEN $2 AND $3
		ORDER BY dp.trade_date`,
		NormalizeTicker(ticker), start, end)
	if err != nil {
		return nil, fmt.Errorf("close series: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ClosePoint, error) {
		var p model.ClosePoint
		err := row.Scan(&p.Date, &p.Close)
		p.Date = dateOnly(p.Date)
		return p, err
	})
}

func (s *PostgresStore) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCV, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT dp.trade_date,
		       COALESCE(dp.open, dp.close)::float8, COALESCE(dp.high, dp.close)::float8,
		       COALESCE(dp.low, dp.close)::float8, dp.close::float8, COALESCE(dp.volume, 0)
		FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id
		WHERE c.ticker = $1 AND dp.trade_date BETWEEN $2 AND $3
		ORDER BY dp.trade_date`,
		NormalizeTicker(ticker), start, end)
	if err != nil {
		return nil, fmt.Errorf("price series: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OHLCV, error) {
		var b model.OHLCV
		err := row.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		b.Date = dateOnly(b.Date)
		return b, err
	})
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.Company) error {
	ticker := NormalizeTicker(c.Ticker)
	if ticker == "" {
		return errors.New("upsert company: empty ticker")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (ticker, name, sector) VALUES ($1, $2, $3)
		ON CONFLICT (ticker) DO UPDATE SET
			name = COALESCE($4, companies.name),
			sector = COALESCE($3, companies.sector)`,
		ticker, defaultName(ticker, c.Name), nullable(c.Sector), nullable(c.Name))
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", ticker, err)
	}
	return nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, q string, limit, offset int) ([]model.Company, error) {
	limit, offset = clampPage(limit, offset)
	pattern := "%" + strings.TrimSpace(q) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, COALESCE(name, ticker), COALESCE(sector, '') FROM companies
		WHERE ticker ILIKE $1 OR COALESCE(name, '') ILIKE $1
		ORDER BY ticker LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Company, error) {
		var c model.Company
		var id int32
		err := row.Scan(&id, &c.Ticker, &c.Name, &c.Sector)
		c.ID = int64(id)
		return c, err
	})
}

func (s *PostgresStore) DeleteCompany(ctx context.Context, ticker string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE ticker = $1`, NormalizeTicker(ticker))
	if err != nil {
		return false, fmt.Errorf("delete company: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeletePrices(ctx context.Context, start, end time.Time, tickers []string) (int64, error) {
	var (
		query = `DELETE FROM daily_price WHERE trade_date BETWEEN $1 AND $2`
		args  = []any{start, end}
	)
	if len(tickers) > 0 {
		norm := make([]string, len(tickers))
		for i, t := range tickers {
			norm[i] = NormalizeTicker(t)
		}
		query += ` AND company_id IN (SELECT id FROM companies WHERE ticker = ANY($3))`
		args = append(args, norm)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete prices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) LastPriceDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	var d *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT MAX(dp.trade_date) FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id WHERE c.ticker = $1`,
		NormalizeTicker(ticker)).Scan(&d)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last price date: %w", err)
	}
	if d == nil {
		return time.Time{}, false, nil
	}
	return dateOnly(*d), true, nil
}

func (s *PostgresStore) LatestClose(ctx context.Context, ticker string) (model.ClosePoint, bool, error) {
	var p model.ClosePoint
	err := s.pool.QueryRow(ctx, `
		SELECT dp.trade_date, dp.close::float8 FROM daily_price dp
		JOIN companies c ON c.id = dp.company_id WHERE c.ticker = $1
		ORDER BY dp.trade_date DESC LIMIT 1`,
		NormalizeTicker(ticker)).Scan(&p.Date, &p.Close)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ClosePoint{}, false, nil
	}
	if err != nil {
		return model.ClosePoint{}, false, fmt.Errorf("latest close: %w", err)
	}
	p.Date = dateOnly(p.Date)
	return p, true, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.logger.Info().Msg("closing postgres pool")
	s.pool.Close()
	return nil
}
