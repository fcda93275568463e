package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSite/internal/model"
)

// PriceParser looks up a single day's close for a ticker. A false result
// means the upstream has no trade for that day or every attempt failed.
type PriceParser interface {
	Name() string
	FetchClose(ctx context.Context, ticker string, day time.Time) (float64, bool)
}

// MonthFetcher returns one month of raw daily rows for a ticker.
type MonthFetcher interface {
	FetchMonth(ctx context.Context, ticker string, anchor time.Time) (*RawPayload, error)
}

// RangeFetcher returns normalized bars for [start, end].
type RangeFetcher interface {
	FetchRange(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCV, error)
}

// ErrNoData marks a successful response that carried no rows.
var ErrNoData = errors.New("upstream returned no data")

// ErrorKind classifies a failed upstream attempt.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindTimeout
	KindStatus
	KindDecode
	KindCanceled
	KindUpstream // the upstream answered with an explicit error object
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindCanceled:
		return "canceled"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// FetchError is the result of one failed upstream attempt.
type FetchError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindTimeout, KindDecode:
		return true
	case KindStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable *FetchError.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}
