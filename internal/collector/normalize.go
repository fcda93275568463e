package collector

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

// DailyRow is one STOCK_DAY data row. The upstream field order is fixed:
// date, shares, turnover, open, high, low, close, change, transactions.
type DailyRow struct {
	EraDate      string
	Shares       string
	Turnover     string
	Open         string
	High         string
	Low          string
	Close        string
	Change       string
	Transactions string
}

// minRowFields covers date through close.
const minRowFields = 7

// NewDailyRow maps raw cells onto the fixed field order. Rows too short to
// contain a close are rejected.
func NewDailyRow(cells []string) (DailyRow, bool) {
	if len(cells) < minRowFields {
		return DailyRow{}, false
	}
	at := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return DailyRow{
		EraDate:      at(0),
		Shares:       at(1),
		Turnover:     at(2),
		Open:         at(3),
		High:         at(4),
		Low:          at(5),
		Close:        at(6),
		Change:       at(7),
		Transactions: at(8),
	}, true
}

var noTrade = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"---": true,
	"—":   true,
	"X":   true,
}

// ParseNumber strips thousands separators and maps the "no trade" sentinels
// to absent. It never turns a missing value into zero.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if noTrade[s] {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func parseVolume(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}

// Normalize converts a row into a bar. It fails when the date is malformed
// or no close is present; missing open/high/low take the close.
func (r DailyRow) Normalize() (model.OHLCV, bool) {
	day, err := calendar.FromEraDate(r.EraDate)
	if err != nil {
		return model.OHLCV{}, false
	}
	closePx, ok := ParseNumber(r.Close)
	if !ok {
		return model.OHLCV{}, false
	}
	bar := model.OHLCV{Date: day, Open: closePx, High: closePx, Low: closePx, Close: closePx, Volume: parseVolume(r.Shares)}
	if v, ok := ParseNumber(r.Open); ok {
		bar.Open = v
	}
	if v, ok := ParseNumber(r.High); ok {
		bar.High = v
	}
	if v, ok := ParseNumber(r.Low); ok {
		bar.Low = v
	}
	return bar, true
}

// NormalizeMonth keys every usable row of p by its Gregorian date. Unusable
// rows are dropped without failing the batch.
func NormalizeMonth(p *RawPayload) map[time.Time]model.OHLCV {
	out := make(map[time.Time]model.OHLCV)
	if p == nil {
		return out
	}
	for _, cells := range p.Data {
		row, ok := NewDailyRow(cells)
		if !ok {
			continue
		}
		if bar, ok := row.Normalize(); ok {
			out[bar.Date] = bar
		}
	}
	return out
}
