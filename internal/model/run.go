package model

import "time"

// Run modes.
const (
	ModeBackfill   = "backfill"
	ModeDailyClose = "daily"
	ModeRange      = "range"
)

// TickerResult summarises one ticker's reconciliation.
type TickerResult struct {
	Ticker        string        `json:"ticker"`
	Missing       int           `json:"missing"`
	Filled        int           `json:"filled"`
	Skipped       int           `json:"skipped"`
	FetchFailures int           `json:"fetch_failures"`
	Err           string        `json:"error,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Failed reports whether the ticker ended with an unrecoverable error.
func (r TickerResult) Failed() bool { return r.Err != "" }

// RunSummary aggregates a batch run over every ticker.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Mode       string         `json:"mode"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []TickerResult `json:"results"`
	Aborted    bool           `json:"aborted"`
}

// Filled totals filled dates across tickers.
func (s *RunSummary) Filled() int {
	n := 0
	for _, r := range s.Results {
		n += r.Filled
	}
	return n
}

// Skipped totals skipped dates across tickers.
func (s *RunSummary) Skipped() int {
	n := 0
	for _, r := range s.Results {
		n += r.Skipped
	}
	return n
}

// FailedTickers lists tickers that ended with an error, in result order.
func (s *RunSummary) FailedTickers() []string {
	var out []string
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r.Ticker)
		}
	}
	return out
}

// FilledTickers lists tickers that received at least one row.
func (s *RunSummary) FilledTickers() []string {
	var out []string
	for _, r := range s.Results {
		if r.Filled > 0 {
			out = append(out, r.Ticker)
		}
	}
	return out
}

// OK reports whether the run finished without failures or abort.
func (s *RunSummary) OK() bool {
	return !s.Aborted && len(s.FailedTickers()) == 0
}
