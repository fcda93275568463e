package model

import "time"

// OHLCV is one stored trading day for a ticker. Date carries only the
// market-local calendar date (midnight UTC).
type OHLCV struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// DailyPrice is an upsert request. Nil fields are optional: open/high/low
// fall back to Close and a nil Volume is stored as null.
type DailyPrice struct {
	Date   time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  float64
	Volume *int64
}

// FromOHLCV builds a fully populated upsert from a normalized bar.
func FromOHLCV(b OHLCV) DailyPrice {
	o, h, l, v := b.Open, b.High, b.Low, b.Volume
	return DailyPrice{Date: b.Date, Open: &o, High: &h, Low: &l, Close: b.Close, Volume: &v}
}

// ClosePoint is one element of a close-price series.
type ClosePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Closes extracts the close values in order.
func Closes(points []ClosePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// Company is a registered ticker.
type Company struct {
	ID     int64  `json:"id"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}
