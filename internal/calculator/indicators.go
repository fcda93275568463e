// Package calculator derives technical indicators from close-price series.
// Every function is pure and returns series aligned with its input.
package calculator

import (
	"sort"
	"strconv"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

// MACDParams are the fast, slow and signal spans.
type MACDParams struct {
	Fast, Slow, Signal int
}

// BollingerParams are the window and band width in standard deviations.
type BollingerParams struct {
	Window int
	K      float64
}

// Options selects which indicators Compute produces. A nil/zero field
// suppresses that output.
type Options struct {
	MAWindows []int
	MACD      *MACDParams
	RSIPeriod int
	Bollinger *BollingerParams
}

// DefaultOptions is MA 5/20/60, MACD 12/26/9, RSI 14 and Bollinger 20/2.
func DefaultOptions() Options {
	return Options{
		MAWindows: []int{5, 20, 60},
		MACD:      &MACDParams{Fast: 12, Slow: 26, Signal: 9},
		RSIPeriod: 14,
		Bollinger: &BollingerParams{Window: 20, K: 2.0},
	}
}

// Result is the indicator bundle for one series. MA is keyed by window.
type Result struct {
	Dates []string           `json:"dates"`
	MA    map[string][]Value `json:"ma,omitempty"`
	MACD  *MACD              `json:"macd,omitempty"`
	RSI   []Value            `json:"rsi,omitempty"`
	BB    *Bollinger         `json:"bb,omitempty"`
}

// Compute runs every selected indicator over points, which must be ordered
// by date and carry no missing closes.
func Compute(points []model.ClosePoint, opts Options) Result {
	closes := model.Closes(points)
	res := Result{Dates: make([]string, len(points))}
	for i, p := range points {
		res.Dates[i] = calendar.FormatDay(p.Date)
	}

	if len(opts.MAWindows) > 0 {
		windows := append([]int(nil), opts.MAWindows...)
		sort.Ints(windows)
		res.MA = make(map[string][]Value, len(windows))
		for _, w := range windows {
			res.MA[strconv.Itoa(w)] = SMA(closes, w)
		}
	}
	if opts.MACD != nil {
		m := ComputeMACD(closes, opts.MACD.Fast, opts.MACD.Slow, opts.MACD.Signal)
		res.MACD = &m
	}
	if opts.RSIPeriod > 0 {
		res.RSI = RSI(closes, opts.RSIPeriod)
	}
	if opts.Bollinger != nil {
		b := ComputeBollinger(closes, opts.Bollinger.Window, opts.Bollinger.K)
		res.BB = &b
	}
	return res
}
