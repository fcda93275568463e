// Package app wires configuration, storage, upstream clients and the
// reconciler. It is the shared core of cmd/finsite, cmd/backfill and
// cmd/export.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"FinSite/internal/collector"
	"FinSite/internal/config"
	"FinSite/internal/logger"
	"FinSite/internal/metrics"
	"FinSite/internal/notifier"
	"FinSite/internal/reconciler"
	"FinSite/internal/recorder"
	"FinSite/internal/store"
)

// DefaultConfigPath is used when neither the caller nor CONFIG_PATH names one.
const DefaultConfigPath = "configs/config.yaml"

// App holds every initialized component.
type App struct {
	Config     *config.Config
	Logger     *logger.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      store.Store
	TWSE       *collector.TWSEFetcher
	Yahoo      *collector.YahooFetcher
	Parser     collector.PriceParser
	Reconciler *reconciler.Reconciler
	Recorder   recorder.Recorder
	Notifier   notifier.Notifier

	closed bool
}

// ResolveConfigPath picks path, then CONFIG_PATH, then the default.
func ResolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultConfigPath
}

// New loads and validates configuration and initializes every component.
func New(ctx context.Context, configPath string) (*App, error) {
	started := time.Now()

	cfg, err := config.Load(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	log := logger.New(cfg.Logging.Level)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	opts := UpstreamOptions(cfg, log, m)
	parser, err := collector.NewPriceParser(cfg.Upstream.Source, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	// Month and range fetches reuse the selected instance when its type fits.
	twse, ok := parser.(*collector.TWSEFetcher)
	if !ok {
		twse = collector.NewTWSEFetcher(opts...)
	}
	yahoo, ok := parser.(*collector.YahooFetcher)
	if !ok {
		yahoo = collector.NewYahooFetcher(opts...)
	}

	rec := OpenRecorder(cfg, log)

	var n notifier.Notifier = notifier.NoopNotifier{}
	if cfg.Notify.RevalidateURL != "" {
		n = notifier.NewWebhookNotifier(cfg.Notify.RevalidateURL, cfg.Notify.RevalidateSecret, cfg.Upstream.Proxy, log)
	}

	r := reconciler.New(st, twse,
		reconciler.WithLogger(log),
		reconciler.WithMetrics(m),
		reconciler.WithWorkers(cfg.Backfill.Workers),
		reconciler.WithLocation(cfg.Location()),
		reconciler.WithPriceParser(parser),
	)

	log.Info().
		Str("driver", cfg.Database.Driver).
		Str("source", parser.Name()).
		Str("timezone", cfg.Market.Timezone).
		Int("workers", cfg.Backfill.Workers).
		Dur("startup", time.Since(started)).
		Msg("app initialized")

	return &App{
		Config:     cfg,
		Logger:     log,
		Registry:   reg,
		Metrics:    m,
		Store:      st,
		TWSE:       twse,
		Yahoo:      yahoo,
		Parser:     parser,
		Reconciler: r,
		Recorder:   rec,
		Notifier:   n,
	}, nil
}

// OpenStore opens the configured store adapter.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		st, err := store.OpenPostgres(ctx, cfg.Database.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := store.OpenSQLite(cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	}
}

// UpstreamOptions turns the upstream section into collector options.
func UpstreamOptions(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) []collector.Option {
	u := cfg.Upstream
	return []collector.Option{
		collector.WithTimeout(u.Timeout),
		collector.WithRetries(cfg.Retries(), u.RetryDelay),
		collector.WithRateLimit(u.RequestsPerSecond),
		collector.WithProxy(u.Proxy),
		collector.WithUserAgent(u.UserAgent),
		collector.WithPrimaryURL(u.PrimaryURL),
		collector.WithLegacyURL(u.LegacyURL),
		collector.WithYahooURL(u.YahooURL),
		collector.WithLocation(cfg.Location()),
		collector.WithLogger(log),
		collector.WithMetrics(m),
	}
}

// OpenRecorder opens the run history database, falling back to a no-op
// recorder when it is disabled or cannot be opened.
func OpenRecorder(cfg *config.Config, log *logger.Logger) recorder.Recorder {
	if cfg.Recorder.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Recorder.SQLitePath, log)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return rec
}

// Close releases the recorder and the store. It is safe to call twice.
func (a *App) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := a.Recorder.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("close recorder")
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("close store")
	}
}
