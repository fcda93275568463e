// Command backfill runs one reconciliation pass and exits. The exit status
// is 1 when any ticker failed or the run was aborted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"FinSite/internal/app"
	"FinSite/internal/calendar"
	"FinSite/internal/model"
	"FinSite/internal/notifier"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "config file (default $CONFIG_PATH or configs/config.yaml)")
		mode    = flag.String("mode", "gaps", "gaps | daily | yahoo-range")
		from    = flag.String("from", "", "first date YYYY-MM-DD (default: today minus lookback)")
		to      = flag.String("to", "", "last date YYYY-MM-DD (default: today)")
		tickers = flag.String("ticker", "", "comma-separated tickers (default: every ticker in the store)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	cfg := a.Config

	end := a.Reconciler.Today()
	if *to != "" {
		if end, err = calendar.ParseDay(*to); err != nil {
			fatal(a, "invalid -to: %v", err)
		}
	}
	start := end.AddDate(0, 0, -cfg.Backfill.LookbackDays)
	if *from != "" {
		if start, err = calendar.ParseDay(*from); err != nil {
			fatal(a, "invalid -from: %v", err)
		}
	}
	if end.Before(start) {
		fatal(a, "-to %s is before -from %s", calendar.FormatDay(end), calendar.FormatDay(start))
	}

	var list []string
	for _, t := range strings.Split(*tickers, ",") {
		if t = strings.TrimSpace(t); t != "" {
			list = append(list, strings.ToUpper(t))
		}
	}

	if cfg.Backfill.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Backfill.RunTimeout)
		defer cancel()
	}

	began := time.Now()
	var sum *model.RunSummary
	switch *mode {
	case "gaps":
		sum, err = a.Reconciler.ReconcileTickers(ctx, list, start, end)
	case "daily":
		sum, err = a.Reconciler.DailyClose(ctx, list, end)
	case "yahoo-range":
		sum, err = a.Reconciler.BackfillRange(ctx, a.Yahoo, list, start, end)
	default:
		fatal(a, "unknown -mode %q", *mode)
	}
	if err != nil {
		fatal(a, "%s run: %v", *mode, err)
	}

	if err := a.Recorder.RecordRun(sum); err != nil {
		a.Logger.Warn().Err(err).Msg("record run")
	}
	if err := a.Notifier.NotifyRun(ctx, sum); err != nil {
		a.Logger.Warn().Err(err).Msg("send revalidation")
	}

	fmt.Print(notifier.FormatRunSummary(sum))
	fmt.Printf("elapsed: %s\n", time.Since(began).Round(time.Millisecond))
	if !sum.OK() {
		a.Close()
		os.Exit(1)
	}
}

func fatal(a *app.App, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "backfill: "+format+"\n", args...)
	a.Close()
	os.Exit(2)
}
