package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"FinSite/internal/calendar"
	"FinSite/internal/logger"
	"FinSite/internal/metrics"
)

const (
	DefaultPrimaryURL = "https://www.twse.com.tw/rwd/zh/afterTrading/STOCK_DAY"
	DefaultLegacyURL  = "https://www.twse.com.tw/exchangeReport/STOCK_DAY"
	DefaultYahooURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	DefaultTimeout    = 20 * time.Second
	DefaultRetries    = 2
	DefaultUserAgent  = "Mozilla/5.0"

	maxBodyBytes = 8 << 20
)

// client carries the HTTP plumbing shared by every upstream variant.
type client struct {
	http       *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
	metrics    *metrics.Metrics
	userAgent  string
	retries    int
	retryDelay time.Duration
	loc        *time.Location
	now        func() time.Time

	primaryURL string
	legacyURL  string
	yahooURL   string
}

// Option configures an upstream fetcher.
type Option func(*client)

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets how many extra attempts FetchClose makes and the pause
// between them.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *client) {
		if n >= 0 {
			c.retries = n
		}
		c.retryDelay = delay
	}
}

// WithRateLimit throttles requests to rps per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithProxy routes requests through proxyURL. Invalid URLs are ignored.
func WithProxy(proxyURL string) Option {
	return func(c *client) {
		if proxyURL == "" {
			return
		}
		if u, err := url.Parse(proxyURL); err == nil {
			c.http.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *client) { c.metrics = m }
}

// WithLocation sets the market timezone used for "today" and bar dates.
func WithLocation(loc *time.Location) Option {
	return func(c *client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *client) { c.now = now }
}

// WithPrimaryURL overrides the primary TWSE endpoint.
func WithPrimaryURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.primaryURL = u
		}
	}
}

// WithLegacyURL overrides the legacy TWSE endpoint.
func WithLegacyURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.legacyURL = u
		}
	}
}

// WithYahooURL overrides the chart API base.
func WithYahooURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.yahooURL = u
		}
	}
}

func newClient(opts ...Option) *client {
	c := &client{
		http:       &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     logger.NewSilent(),
		userAgent:  DefaultUserAgent,
		retries:    DefaultRetries,
		retryDelay: time.Second,
		loc:        time.UTC,
		now:        time.Now,
		primaryURL: DefaultPrimaryURL,
		legacyURL:  DefaultLegacyURL,
		yahooURL:   DefaultYahooURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) today() time.Time {
	return calendar.Truncate(c.now().In(c.loc))
}

// getJSON performs one rate-limited GET and decodes the body into out.
// Every failure comes back as a *FetchError.
func (c *client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &FetchError{Kind: KindCanceled, Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Kind: classify(ctx, err), Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &FetchError{Kind: classify(ctx, err), Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{
			Kind:       KindStatus,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body: %.200s", string(body)),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Kind: KindDecode, Endpoint: endpoint, Err: err}
	}
	return nil
}

func classify(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil {
		return KindCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// retry runs fn up to retries+1 times while it fails with a retryable error.
func (c *client) retry(ctx context.Context, op string, fn func() error) error {
	attempts := c.retries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == attempts {
			break
		}
		c.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Int("max", attempts).Msg("upstream attempt failed, retrying")
		if c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return err
}

func (c *client) observe(endpoint string, err error, empty bool, start time.Time) {
	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case empty:
		outcome = metrics.OutcomeEmpty
	}
	c.metrics.ObserveUpstream(endpoint, outcome, time.Since(start))
}
