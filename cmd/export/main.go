// Command export copies stored OHLCV rows into the Parquet archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"FinSite/internal/app"
	"FinSite/internal/archive"
	"FinSite/internal/calendar"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "config file (default $CONFIG_PATH or configs/config.yaml)")
		outDir  = flag.String("out", "data/archive", "archive root directory")
		from    = flag.String("from", "", "first date YYYY-MM-DD (required)")
		to      = flag.String("to", "", "last date YYYY-MM-DD (default: today)")
		tickers = flag.String("ticker", "", "comma-separated tickers (default: every ticker in the store)")
	)
	flag.Parse()

	ctx := context.Background()
	a, err := app.New(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Logger

	start, err := calendar.ParseDay(*from)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -from")
	}
	end := a.Reconciler.Today()
	if *to != "" {
		if end, err = calendar.ParseDay(*to); err != nil {
			log.Fatal().Err(err).Msg("invalid -to")
		}
	}

	var list []string
	for _, t := range strings.Split(*tickers, ",") {
		if t = strings.TrimSpace(t); t != "" {
			list = append(list, strings.ToUpper(t))
		}
	}
	if len(list) == 0 {
		if list, err = a.Store.ListTickers(ctx); err != nil {
			log.Fatal().Err(err).Msg("list tickers")
		}
	}

	arc := archive.New(*outDir)
	total, failed := 0, 0
	for _, t := range list {
		bars, err := a.Store.PriceSeries(ctx, t, start, end)
		if err != nil {
			log.Error().Err(err).Str("ticker", t).Msg("read price series")
			failed++
			continue
		}
		files, err := arc.WriteBars(t, bars)
		if err != nil {
			log.Error().Err(err).Str("ticker", t).Msg("write archive")
			failed++
			continue
		}
		total += len(bars)
		log.Info().Str("ticker", t).Int("rows", len(bars)).Int("files", files).Msg("exported")
	}

	fmt.Printf("exported %d rows for %d tickers to %s (%d failed)\n", total, len(list)-failed, *outDir, failed)
	if failed > 0 {
		a.Close()
		os.Exit(1)
	}
}
