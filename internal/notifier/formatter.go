package notifier

import (
	"fmt"
	"strings"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

// FormatRunSummary renders per-ticker counts followed by the run aggregate.
func FormatRunSummary(sum *model.RunSummary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("run %s (%s) %s..%s\n", sum.RunID, sum.Mode,
		calendar.FormatDay(sum.Start), calendar.FormatDay(sum.End)))

	for _, r := range sum.Results {
		if r.Failed() {
			b.WriteString(fmt.Sprintf("  %-8s FAILED filled=%d skipped=%d: %s\n", r.Ticker, r.Filled, r.Skipped, r.Err))
			continue
		}
		line := fmt.Sprintf("  %-8s filled=%d skipped=%d", r.Ticker, r.Filled, r.Skipped)
		if r.FetchFailures > 0 {
			line += fmt.Sprintf(" fetch_failures=%d", r.FetchFailures)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(fmt.Sprintf("total: tickers=%d filled=%d skipped=%d failed=%d",
		len(sum.Results), sum.Filled(), sum.Skipped(), len(sum.FailedTickers())))
	if failed := sum.FailedTickers(); len(failed) > 0 {
		b.WriteString(" [" + strings.Join(failed, ", ") + "]")
	}
	if sum.Aborted {
		b.WriteString(" (aborted)")
	}
	b.WriteString("\n")
	return b.String()
}
