// Package collector talks to upstream market-data sources and turns their
// payloads into normalized daily bars.
package collector

import "fmt"

// Source tags accepted by NewPriceParser.
const (
	SourceTWSE  = "twse"
	SourceYahoo = "yahoo"
)

// NewPriceParser builds the close-price source named by tag. It is called
// once at startup and the result is passed to whoever needs it.
func NewPriceParser(source string, opts ...Option) (PriceParser, error) {
	switch source {
	case SourceTWSE, "":
		return NewTWSEFetcher(opts...), nil
	case SourceYahoo:
		return NewYahooFetcher(opts...), nil
	default:
		return nil, fmt.Errorf("unknown price data source %q", source)
	}
}
