package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"FinSite/internal/logger"
	"FinSite/internal/model"
)

// Notifier is told about finished runs.
type Notifier interface {
	NotifyRun(ctx context.Context, sum *model.RunSummary) error
}

// NoopNotifier drops every notification.
type NoopNotifier struct{}

func (NoopNotifier) NotifyRun(context.Context, *model.RunSummary) error { return nil }

// RevalidatePayload is posted to the frontend's revalidation hook.
type RevalidatePayload struct {
	Secret  string   `json:"secret"`
	RunID   string   `json:"run_id"`
	Tickers []string `json:"tickers"`
	Filled  int      `json:"filled"`
}

// WebhookNotifier asks the site to revalidate pages for tickers that got new rows.
type WebhookNotifier struct {
	URL        string
	Secret     string
	Client     *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	logger     *logger.Logger
}

// NewWebhookNotifier creates a notifier with optional proxy support.
func NewWebhookNotifier(hookURL, secret, proxyURL string, log *logger.Logger) *WebhookNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if log == nil {
		log = logger.NewSilent()
	}
	return &WebhookNotifier{
		URL:        hookURL,
		Secret:     secret,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		logger: log,
	}
}

// Send posts one payload.
func (n *WebhookNotifier) Send(ctx context.Context, p RevalidatePayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post revalidate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revalidate hook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a payload with exponential backoff retry.
func (n *WebhookNotifier) SendWithRetry(ctx context.Context, p RevalidatePayload, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := n.Send(ctx, p); err != nil {
			lastErr = err
			if i == maxRetries {
				break
			}
			backoff := n.BaseDelay * time.Duration(1<<uint(i))
			n.logger.Warn().Err(err).Int("attempt", i+1).Int("max", maxRetries+1).Dur("backoff", backoff).Msg("revalidate send failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d attempts exhausted: %w", maxRetries+1, lastErr)
}

// NotifyRun posts the filled tickers of sum. Runs that filled nothing are not sent.
func (n *WebhookNotifier) NotifyRun(ctx context.Context, sum *model.RunSummary) error {
	tickers := sum.FilledTickers()
	if len(tickers) == 0 {
		return nil
	}
	return n.SendWithRetry(ctx, RevalidatePayload{
		Secret:  n.Secret,
		RunID:   sum.RunID,
		Tickers: tickers,
		Filled:  sum.Filled(),
	}, n.MaxRetries)
}
