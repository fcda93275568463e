package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSite/internal/calendar"
)

var september = &RawPayload{
	Stat: "OK",
	Data: [][]string{
		{"114/09/01", "1,000", "1", "10", "11", "9", "10.5", "0", "1"},
		{"114/09/02", "2,000", "1", "--", "--", "--", "11.0", "0", "1"},
	},
}

type upstream struct {
	primary, legacy         http.HandlerFunc
	primaryHits, legacyHits atomic.Int32
	lastDate                atomic.Value
}

func (u *upstream) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/primary", func(w http.ResponseWriter, r *http.Request) {
		u.primaryHits.Add(1)
		u.lastDate.Store(r.URL.Query().Get("date"))
		assert.Equal(t, "2330", r.URL.Query().Get("stockNo"))
		assert.Equal(t, "json", r.URL.Query().Get("response"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		u.primary(w, r)
	})
	mux.HandleFunc("/legacy", func(w http.ResponseWriter, r *http.Request) {
		u.legacyHits.Add(1)
		u.legacy(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func payload(p *RawPayload) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(p)
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", code)
	}
}

func newTestFetcher(srv *httptest.Server, now time.Time) *TWSEFetcher {
	return NewTWSEFetcher(
		WithPrimaryURL(srv.URL+"/primary"),
		WithLegacyURL(srv.URL+"/legacy"),
		WithRateLimit(0),
		WithRetries(2, 0),
		WithClock(func() time.Time { return now }),
	)
}

var sept15 = time.Date(2025, time.September, 15, 12, 0, 0, 0, time.UTC)

func TestFetchMonthPrimary(t *testing.T) {
	u := &upstream{primary: payload(september), legacy: status(500)}
	f := newTestFetcher(u.start(t), sept15)

	p, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.NoError(t, err)
	assert.Len(t, p.Data, 2)
	assert.Equal(t, int32(1), u.primaryHits.Load())
	assert.Equal(t, int32(0), u.legacyHits.Load())
	assert.Equal(t, "20250901", u.lastDate.Load())
}

func TestFetchMonthFallsBackOnEmpty(t *testing.T) {
	u := &upstream{primary: payload(&RawPayload{Stat: "OK"}), legacy: payload(september)}
	f := newTestFetcher(u.start(t), sept15)

	p, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.NoError(t, err)
	assert.Len(t, p.Data, 2)
	assert.Equal(t, int32(1), u.legacyHits.Load())
}

func TestFetchMonthFallsBackOnError(t *testing.T) {
	u := &upstream{primary: status(502), legacy: payload(september)}
	f := newTestFetcher(u.start(t), sept15)

	p, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.NoError(t, err)
	assert.False(t, p.Empty())
}

func TestFetchMonthLegacyOutcomeReturnedAsIs(t *testing.T) {
	u := &upstream{primary: status(500), legacy: status(404)}
	f := newTestFetcher(u.start(t), sept15)

	_, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindStatus, fe.Kind)
	assert.Equal(t, 404, fe.StatusCode)
	assert.Equal(t, endpointLegacy, fe.Endpoint)
	assert.Equal(t, int32(1), u.primaryHits.Load())
	assert.Equal(t, int32(1), u.legacyHits.Load())

	u2 := &upstream{primary: payload(&RawPayload{}), legacy: payload(&RawPayload{})}
	f2 := newTestFetcher(u2.start(t), sept15)
	p, err := f2.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestFetchMonthClampsAnchorToToday(t *testing.T) {
	u := &upstream{primary: payload(september), legacy: status(500)}
	f := newTestFetcher(u.start(t), sept15)

	_, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.December, 1))
	require.NoError(t, err)
	assert.Equal(t, "20250915", u.lastDate.Load())
}

func TestFetchMonthDecodeError(t *testing.T) {
	garbage := func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>")) }
	u := &upstream{primary: garbage, legacy: garbage}
	f := newTestFetcher(u.start(t), sept15)

	_, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindDecode, fe.Kind)
}

func TestFetchClose(t *testing.T) {
	u := &upstream{primary: payload(september), legacy: status(500)}
	f := newTestFetcher(u.start(t), sept15)

	c, ok := f.FetchClose(context.Background(), "2330", calendar.Day(2025, time.September, 2))
	require.True(t, ok)
	assert.Equal(t, 11.0, c)

	_, ok = f.FetchClose(context.Background(), "2330", calendar.Day(2025, time.September, 3))
	assert.False(t, ok, "absent date means no trading")
	assert.Equal(t, int32(0), u.legacyHits.Load())
}

func TestFetchCloseRetries(t *testing.T) {
	var calls atomic.Int32
	u := &upstream{legacy: status(500)}
	u.primary = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		payload(september)(w, r)
	}
	f := newTestFetcher(u.start(t), sept15)

	c, ok := f.FetchClose(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.True(t, ok)
	assert.Equal(t, 10.5, c)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchCloseGivesUp(t *testing.T) {
	u := &upstream{primary: status(500), legacy: status(500)}
	f := newTestFetcher(u.start(t), sept15)

	_, ok := f.FetchClose(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	assert.False(t, ok)
	assert.Equal(t, int32(3), u.primaryHits.Load())
}

func TestFetchCloseNoRetryOnClientError(t *testing.T) {
	u := &upstream{primary: status(403), legacy: status(500)}
	f := newTestFetcher(u.start(t), sept15)

	_, ok := f.FetchClose(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	assert.False(t, ok)
	assert.Equal(t, int32(1), u.primaryHits.Load())
}

func TestFetchErrorRetryable(t *testing.T) {
	tests := []struct {
		err  *FetchError
		want bool
	}{
		{&FetchError{Kind: KindTransport}, true},
		{&FetchError{Kind: KindTimeout}, true},
		{&FetchError{Kind: KindDecode}, true},
		{&FetchError{Kind: KindStatus, StatusCode: 503}, true},
		{&FetchError{Kind: KindStatus, StatusCode: 429}, true},
		{&FetchError{Kind: KindStatus, StatusCode: 404}, false},
		{&FetchError{Kind: KindCanceled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestNewPriceParser(t *testing.T) {
	p, err := NewPriceParser(SourceTWSE)
	require.NoError(t, err)
	assert.Equal(t, SourceTWSE, p.Name())

	p, err = NewPriceParser(SourceYahoo)
	require.NoError(t, err)
	assert.Equal(t, SourceYahoo, p.Name())

	_, err = NewPriceParser("bloomberg")
	assert.Error(t, err)
}

func TestFetchMonthFallsBackOnPrimaryTimeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
		payload(september)(w, r)
	}
	u := &upstream{primary: slow, legacy: payload(september)}
	srv := u.start(t)
	f := NewTWSEFetcher(
		WithPrimaryURL(srv.URL+"/primary"),
		WithLegacyURL(srv.URL+"/legacy"),
		WithRateLimit(0),
		WithTimeout(50*time.Millisecond),
		WithClock(func() time.Time { return sept15 }),
	)

	p, err := f.FetchMonth(context.Background(), "2330", calendar.Day(2025, time.September, 1))
	require.NoError(t, err)
	assert.Len(t, NormalizeMonth(p), 2)
	assert.Equal(t, int32(1), u.primaryHits.Load())
	assert.Equal(t, int32(1), u.legacyHits.Load())
}

func TestFetchMonthStopsWhenCallerCancels(t *testing.T) {
	u := &upstream{primary: payload(&RawPayload{Stat: "OK"}), legacy: payload(september)}
	f := newTestFetcher(u.start(t), sept15)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchMonth(ctx, "2330", calendar.Day(2025, time.September, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), u.legacyHits.Load())
}
