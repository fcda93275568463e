// Package reconciler finds trading days missing from the store and fills
// them from the upstream source.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinSite/internal/calendar"
	"FinSite/internal/collector"
	"FinSite/internal/logger"
	"FinSite/internal/metrics"
	"FinSite/internal/model"
)

// PriceStore is the slice of the store the reconciler depends on.
type PriceStore interface {
	ListTickers(ctx context.Context) ([]string, error)
	ExistingTradeDates(ctx context.Context, ticker string, start, end time.Time) (map[time.Time]struct{}, error)
	EnsureCompany(ctx context.Context, ticker, name, sector string) error
	UpsertOHLCV(ctx context.Context, ticker string, p model.DailyPrice) error
}

// Reconciler drives fetch, normalize and upsert for missing dates.
type Reconciler struct {
	store   PriceStore
	months  collector.MonthFetcher
	closes  collector.PriceParser
	logger  *logger.Logger
	metrics *metrics.Metrics
	workers int
	loc     *time.Location
	now     func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(l *logger.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithWorkers bounds how many tickers run at once.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLocation sets the market timezone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithPriceParser sets the close-only source used by DailyClose.
func WithPriceParser(p collector.PriceParser) Option {
	return func(r *Reconciler) { r.closes = p }
}

// New creates a Reconciler reading months from fetcher.
func New(store PriceStore, fetcher collector.MonthFetcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		months:  fetcher,
		logger:  logger.NewSilent(),
		workers: 1,
		loc:     time.UTC,
		now:     time.Now,
	}
	if p, ok := fetcher.(collector.PriceParser); ok {
		r.closes = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today is the current date in the market timezone.
func (r *Reconciler) Today() time.Time {
	return calendar.Truncate(r.now().In(r.loc))
}

// Reconcile fills the business days in [start, end] that the store lacks
// for ticker. Upstream failures only skip dates; store errors are returned
// with the counts reached so far.
func (r *Reconciler) Reconcile(ctx context.Context, ticker string, start, end time.Time) (model.TickerResult, error) {
	res := model.TickerResult{Ticker: ticker}
	start, end = calendar.Truncate(start), calendar.Truncate(end)
	log := r.logger.With("ticker", ticker)

	if err := r.store.EnsureCompany(ctx, ticker, "", ""); err != nil {
		return res, err
	}
	existing, err := r.store.ExistingTradeDates(ctx, ticker, start, end)
	if err != nil {
		return res, err
	}
	missing := MissingDates(start, end, existing)
	res.Missing = len(missing)
	if len(missing) == 0 {
		log.Info().Msg("no missing trade dates")
		return res, nil
	}

	today := r.Today()
	for _, b := range GroupByMonth(missing) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rows := r.fetchBucket(ctx, log, ticker, b, today, &res)
		for _, d := range b.Dates {
			bar, ok := rows[d]
			if !ok {
				res.Skipped++
				log.Debug().Str("date", calendar.FormatDay(d)).Msg("upstream has no data, skipped")
				continue
			}
			if err := r.store.UpsertOHLCV(ctx, ticker, model.FromOHLCV(bar)); err != nil {
				return res, err
			}
			res.Filled++
			log.Debug().Str("date", calendar.FormatDay(d)).Float64("close", bar.Close).Msg("filled")
		}
	}
	return res, nil
}

// fetchBucket returns the normalized month for b. A failed fetch yields an
// empty map so its dates are skipped, but is logged and counted separately.
func (r *Reconciler) fetchBucket(ctx context.Context, log *logger.Logger, ticker string, b Bucket, today time.Time, res *model.TickerResult) map[time.Time]model.OHLCV {
	anchor := b.Anchor(today)
	payload, err := r.months.FetchMonth(ctx, ticker, anchor)
	if err != nil {
		res.FetchFailures++
		log.Warn().Err(err).Str("month", b.Month.String()).Int("dates", len(b.Dates)).
			Msg("month fetch failed, treating bucket as empty")
		return map[time.Time]model.OHLCV{}
	}
	rows := collector.NormalizeMonth(payload)
	if len(rows) == 0 {
		log.Info().Str("month", b.Month.String()).Msg("upstream confirms no trading for month")
	}
	return rows
}

// ReconcileAll runs Reconcile for every known ticker through a bounded
// worker pool. One ticker's failure never stops the others; cancelling ctx
// stops new tickers from starting and marks them aborted.
func (r *Reconciler) ReconcileAll(ctx context.Context, start, end time.Time) (*model.RunSummary, error) {
	return r.ReconcileTickers(ctx, nil, start, end)
}

// ReconcileTickers is ReconcileAll restricted to tickers. An empty list
// means every ticker in the store.
func (r *Reconciler) ReconcileTickers(ctx context.Context, tickers []string, start, end time.Time) (*model.RunSummary, error) {
	return r.runAll(ctx, model.ModeBackfill, tickers, start, end, func(ctx context.Context, ticker string) (model.TickerResult, error) {
		return r.Reconcile(ctx, ticker, start, end)
	})
}

// BackfillRange upserts every bar src returns for [start, end], whether or
// not the store already holds it.
func (r *Reconciler) BackfillRange(ctx context.Context, src collector.RangeFetcher, tickers []string, start, end time.Time) (*model.RunSummary, error) {
	start, end = calendar.Truncate(start), calendar.Truncate(end)
	return r.runAll(ctx, model.ModeRange, tickers, start, end, func(ctx context.Context, ticker string) (model.TickerResult, error) {
		res := model.TickerResult{Ticker: ticker, Missing: len(calendar.BusinessDays(start, end))}
		if err := r.store.EnsureCompany(ctx, ticker, "", ""); err != nil {
			return res, err
		}
		bars, err := src.FetchRange(ctx, ticker, start, end)
		if err != nil {
			res.FetchFailures++
			r.logger.Warn().Err(err).Str("ticker", ticker).Msg("range fetch failed")
			res.Skipped = res.Missing
			return res, nil
		}
		for _, bar := range bars {
			if err := r.store.UpsertOHLCV(ctx, ticker, model.FromOHLCV(bar)); err != nil {
				return res, err
			}
			res.Filled++
		}
		if res.Missing > res.Filled {
			res.Skipped = res.Missing - res.Filled
		}
		return res, nil
	})
}

// DailyClose stores the close of day for the given tickers (all known
// tickers when empty) using the configured PriceParser. Open/high/low
// default to the close.
func (r *Reconciler) DailyClose(ctx context.Context, tickers []string, day time.Time) (*model.RunSummary, error) {
	if r.closes == nil {
		return nil, errors.New("daily close: no price parser configured")
	}
	day = calendar.Truncate(day)
	return r.runAll(ctx, model.ModeDailyClose, tickers, day, day, func(ctx context.Context, ticker string) (model.TickerResult, error) {
		res := model.TickerResult{Ticker: ticker, Missing: 1}
		c, ok := r.closes.FetchClose(ctx, ticker, day)
		if !ok {
			res.Skipped = 1
			return res, nil
		}
		if err := r.store.UpsertOHLCV(ctx, ticker, model.DailyPrice{Date: day, Close: c}); err != nil {
			return res, err
		}
		res.Filled = 1
		return res, nil
	})
}

type tickerJob func(ctx context.Context, ticker string) (model.TickerResult, error)

func (r *Reconciler) runAll(ctx context.Context, mode string, tickers []string, start, end time.Time, job tickerJob) (*model.RunSummary, error) {
	sum := &model.RunSummary{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Start:     calendar.Truncate(start),
		End:       calendar.Truncate(end),
		StartedAt: time.Now(),
	}
	log := r.logger.With("run_id", sum.RunID)

	if len(tickers) == 0 {
		all, err := r.store.ListTickers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tickers: %w", err)
		}
		tickers = all
	}
	tickers = dedupe(tickers)
	log.Info().Str("mode", mode).Int("tickers", len(tickers)).
		Str("start", calendar.FormatDay(sum.Start)).Str("end", calendar.FormatDay(sum.End)).
		Int("workers", r.workers).Msg("run started")

	// Each slot is written by exactly one goroutine.
	sum.Results = make([]model.TickerResult, len(tickers))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, ticker := range tickers {
		if ctx.Err() != nil {
			sum.Results[i] = model.TickerResult{Ticker: ticker, Err: "aborted: " + ctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				sum.Results[i] = model.TickerResult{Ticker: ticker, Err: "aborted: " + ctx.Err().Error()}
				return nil
			}
			begun := time.Now()
			res, err := job(ctx, ticker)
			res.Ticker = ticker
			res.Elapsed = time.Since(begun)
			if err != nil {
				res.Err = err.Error()
				log.Error().Err(err).Str("ticker", ticker).Msg("ticker failed")
			} else {
				log.Info().Str("ticker", ticker).Int("missing", res.Missing).Int("filled", res.Filled).
					Int("skipped", res.Skipped).Int("fetch_failures", res.FetchFailures).Msg("ticker done")
			}
			r.metrics.ObserveTicker(res.Filled, res.Skipped, res.FetchFailures, res.Failed(), res.Elapsed)
			sum.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	sum.FinishedAt = time.Now()
	sum.Aborted = ctx.Err() != nil
	log.Info().Int("filled", sum.Filled()).Int("skipped", sum.Skipped()).
		Strs("failed", sum.FailedTickers()).Bool("aborted", sum.Aborted).
		Dur("elapsed", sum.FinishedAt.Sub(sum.StartedAt)).Msg("run finished")
	return sum, nil
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := tickers[:0:0]
	for _, t := range tickers {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
