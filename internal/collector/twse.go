package collector

import (
	"context"
	"net/url"
	"time"

	"FinSite/internal/calendar"
)

const (
	endpointPrimary = "twse_primary"
	endpointLegacy  = "twse_legacy"
)

// RawPayload is the monthly STOCK_DAY response. Data rows follow the fixed
// field order documented on DailyRow.
type RawPayload struct {
	Stat   string     `json:"stat"`
	Date   string     `json:"date"`
	Title  string     `json:"title"`
	Fields []string   `json:"fields"`
	Data   [][]string `json:"data"`
}

// Empty reports whether the payload carries no data rows.
func (p *RawPayload) Empty() bool {
	return p == nil || len(p.Data) == 0
}

// TWSEFetcher reads monthly daily-trading reports from the exchange,
// falling back to the legacy endpoint when the primary one fails or is empty.
type TWSEFetcher struct {
	*client
}

// NewTWSEFetcher creates a TWSE fetcher.
func NewTWSEFetcher(opts ...Option) *TWSEFetcher {
	return &TWSEFetcher{client: newClient(opts...)}
}

func (f *TWSEFetcher) Name() string { return SourceTWSE }

func (f *TWSEFetcher) primaryRequest(ticker string, day time.Time) string {
	q := url.Values{}
	q.Set("date", day.Format("20060102"))
	q.Set("stockNo", ticker)
	q.Set("response", "json")
	return f.primaryURL + "?" + q.Encode()
}

func (f *TWSEFetcher) legacyRequest(ticker string, day time.Time) string {
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", day.Format("20060102"))
	q.Set("stockNo", ticker)
	return f.legacyURL + "?" + q.Encode()
}

func (f *TWSEFetcher) get(ctx context.Context, endpoint, rawURL string) (*RawPayload, error) {
	start := time.Now()
	var p RawPayload
	err := f.getJSON(ctx, endpoint, rawURL, &p)
	f.observe(endpoint, err, p.Empty(), start)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchMonth returns the month containing anchor, clamped to today. The
// legacy endpoint is tried once when the primary call errors or comes back
// empty, and its outcome is returned as-is.
func (f *TWSEFetcher) FetchMonth(ctx context.Context, ticker string, anchor time.Time) (*RawPayload, error) {
	if today := f.today(); anchor.After(today) {
		anchor = today
	}

	p, err := f.get(ctx, endpointPrimary, f.primaryRequest(ticker, anchor))
	if err == nil && !p.Empty() {
		return p, nil
	}
	// A client timeout also matches context.DeadlineExceeded, so only the
	// caller's own context decides whether to stop here.
	if ctx.Err() != nil {
		return nil, err
	}

	log := f.logger.Debug().Str("ticker", ticker).Str("month", anchor.Format("2006-01"))
	if err != nil {
		log = f.logger.Warn().Err(err).Str("ticker", ticker).Str("month", anchor.Format("2006-01"))
	}
	log.Msg("primary endpoint unusable, trying legacy")

	return f.get(ctx, endpointLegacy, f.legacyRequest(ticker, anchor))
}

// FetchClose returns the close for day from the primary endpoint, retrying
// retryable failures. Both "no trade" and exhausted retries yield false.
func (f *TWSEFetcher) FetchClose(ctx context.Context, ticker string, day time.Time) (float64, bool) {
	var p *RawPayload
	err := f.retry(ctx, "fetch_close "+ticker, func() error {
		var err error
		p, err = f.get(ctx, endpointPrimary, f.primaryRequest(ticker, day))
		return err
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("ticker", ticker).Str("date", day.Format("2006-01-02")).Msg("close fetch failed")
		return 0, false
	}
	bar, ok := NormalizeMonth(p)[calendar.Truncate(day)]
	if !ok {
		return 0, false
	}
	return bar.Close, true
}
