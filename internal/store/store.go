// Package store persists companies and their daily prices.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"FinSite/internal/model"
)

// ErrNotFound is returned when a ticker is unknown.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract shared by the SQLite and Postgres
// adapters. Dates are calendar dates at midnight UTC.
type Store interface {
	ListTickers(ctx context.Context) ([]string, error)
	ExistingTradeDates(ctx context.Context, ticker string, start, end time.Time) (map[time.Time]struct{}, error)
	EnsureCompany(ctx context.Context, ticker, name, sector string) error
	UpsertOHLCV(ctx context.Context, ticker string, p model.DailyPrice) error
	CloseSeries(ctx context.Context, ticker string, start, end time.Time) ([]model.ClosePoint, error)
	PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCV, error)

	UpsertCompany(ctx context.Context, c model.Company) error
	ListCompanies(ctx context.Context, q string, limit, offset int) ([]model.Company, error)
	DeleteCompany(ctx context.Context, ticker string) (bool, error)
	DeletePrices(ctx context.Context, start, end time.Time, tickers []string) (int64, error)
	LastPriceDate(ctx context.Context, ticker string) (time.Time, bool, error)
	LatestClose(ctx context.Context, ticker string) (model.ClosePoint, bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// NormalizeTicker trims and upper-cases a ticker.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// resolve fills optional open/high/low from close.
func resolve(p model.DailyPrice) (o, h, l float64) {
	o, h, l = p.Close, p.Close, p.Close
	if p.Open != nil {
		o = *p.Open
	}
	if p.High != nil {
		h = *p.High
	}
	if p.Low != nil {
		l = *p.Low
	}
	return o, h, l
}

func defaultName(ticker, name string) string {
	if strings.TrimSpace(name) == "" {
		return ticker
	}
	return name
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

const maxListLimit = 1000

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
