package recorder

import (
	"time"

	"FinSite/internal/model"
)

// RunRecord is the stored header of a batch run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Tickers    int       `json:"tickers"`
	Filled     int       `json:"filled"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Aborted    bool      `json:"aborted"`
}

// Recorder persists run history for later inspection.
type Recorder interface {
	RecordRun(sum *model.RunSummary) error
	RecentRuns(limit int) ([]RunRecord, error)
	Close() error
}
