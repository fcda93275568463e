// Package archive keeps a columnar copy of stored daily bars in Parquet
// files, one file per ticker and calendar year.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"FinSite/internal/model"
)

// PriceRecord is the on-disk schema for one trading day.
type PriceRecord struct {
	Ticker    string  `parquet:"ticker"`
	TradeDate int64   `parquet:"trade_date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// Store writes and reads bars under Dir as <Dir>/<TICKER>/<YYYY>.parquet.
type Store struct {
	Dir string
}

func New(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) path(ticker string, year int) string {
	return filepath.Join(s.Dir, ticker, strconv.Itoa(year)+".parquet")
}

// WriteBars merges bars into the ticker's year files. A bar for a date the
// file already holds replaces it, so re-exporting the same rows is a no-op.
func (s *Store) WriteBars(ticker string, bars []model.OHLCV) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	groups := make(map[int][]PriceRecord)
	for _, b := range bars {
		y := b.Date.Year()
		groups[y] = append(groups[y], PriceRecord{
			Ticker:    ticker,
			TradeDate: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	files := 0
	for year, records := range groups {
		path := s.path(ticker, year)
		existing, err := readFile(path)
		if err != nil {
			return files, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := writeFile(path, merge(existing, records)); err != nil {
			return files, fmt.Errorf("writing bars for %s/%d: %w", ticker, year, err)
		}
		files++
	}
	return files, nil
}

// ReadBars returns the archived bars for ticker in [start, end], ordered by date.
func (s *Store) ReadBars(ticker string, start, end time.Time) ([]model.OHLCV, error) {
	var out []model.OHLCV
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readFile(s.path(ticker, year))
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			d := time.UnixMilli(r.TradeDate).UTC()
			if d.Before(start) || d.After(end) {
				continue
			}
			out = append(out, model.OHLCV{
				Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
			})
		}
	}
	return out, nil
}

func writeFile(path string, records []PriceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readFile returns no rows for a file that does not exist yet.
func readFile(path string) ([]PriceRecord, error) {
	rows, err := parquet.ReadFile[PriceRecord](path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

func merge(existing, incoming []PriceRecord) []PriceRecord {
	seen := make(map[int64]PriceRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.TradeDate] = r
	}
	for _, r := range incoming {
		seen[r.TradeDate] = r
	}
	merged := make([]PriceRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].TradeDate < merged[j].TradeDate })
	return merged
}
