package collector

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

const endpointYahoo = "yahoo_chart"

// YahooFetcher reads daily bars from the Yahoo Finance chart API.
type YahooFetcher struct {
	*client
	SymbolMap map[string]string // ticker -> Yahoo symbol overrides
}

// NewYahooFetcher creates a Yahoo Finance fetcher.
func NewYahooFetcher(opts ...Option) *YahooFetcher {
	return &YahooFetcher{client: newClient(opts...), SymbolMap: map[string]string{}}
}

func (f *YahooFetcher) Name() string { return SourceYahoo }

// YahooSymbol maps an exchange ticker to its Yahoo symbol. Purely numeric
// listings get the ".TW" suffix.
func (f *YahooFetcher) YahooSymbol(ticker string) string {
	if mapped, ok := f.SymbolMap[ticker]; ok {
		return mapped
	}
	if strings.ContainsFunc(ticker, unicode.IsLetter) || strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + ".TW"
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

// FetchRange returns bars dated within [start, end] in market-local dates.
// Bars without a close are dropped; missing open/high/low take the close.
func (f *YahooFetcher) FetchRange(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCV, error) {
	start, end = calendar.Truncate(start), calendar.Truncate(end)
	p1 := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, f.loc)
	p2 := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, f.loc).AddDate(0, 0, 1)

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(p1.Unix()))
	q.Set("period2", fmt.Sprint(p2.Unix()))
	u := fmt.Sprintf("%s/%s?%s", f.yahooURL, url.PathEscape(f.YahooSymbol(ticker)), q.Encode())

	begun := time.Now()
	var chart yahooChart
	err := f.getJSON(ctx, endpointYahoo, u, &chart)
	if err == nil && chart.Chart.Error != nil {
		err = &FetchError{Kind: KindUpstream, Endpoint: endpointYahoo, Err: fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)}
	}
	empty := len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0
	f.observe(endpointYahoo, err, empty, begun)
	if err != nil {
		return nil, err
	}
	if empty || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c, ok := at(quote.Close, i)
		if !ok {
			continue // holidays and suspended days come back as nulls
		}
		day := calendar.Truncate(time.Unix(ts, 0).In(f.loc))
		if day.Before(start) || day.After(end) {
			continue
		}
		bar := model.OHLCV{Date: day, Open: c, High: c, Low: c, Close: c}
		if v, ok := at(quote.Open, i); ok {
			bar.Open = v
		}
		if v, ok := at(quote.High, i); ok {
			bar.High = v
		}
		if v, ok := at(quote.Low, i); ok {
			bar.Low = v
		}
		if v, ok := at(quote.Volume, i); ok {
			bar.Volume = int64(v)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// FetchClose looks up one day's close through FetchRange.
func (f *YahooFetcher) FetchClose(ctx context.Context, ticker string, day time.Time) (float64, bool) {
	day = calendar.Truncate(day)
	var bars []model.OHLCV
	err := f.retry(ctx, "fetch_close "+ticker, func() error {
		var err error
		bars, err = f.FetchRange(ctx, ticker, day, day)
		return err
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("ticker", ticker).Str("date", calendar.FormatDay(day)).Msg("close fetch failed")
		return 0, false
	}
	for _, b := range bars {
		if b.Date.Equal(day) {
			return b.Close, true
		}
	}
	return 0, false
}
