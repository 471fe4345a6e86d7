package parser

import (
	"fmt"

	"tradegate/internal/models"
)

// Variant selects the exchange message format a Parser decodes.
type Variant string

const (
	// VariantBybit decodes topic-addressed frames as pushed by Bybit v5
	// public streams (publicTrade / orderbook / tickers / execution).
	VariantBybit Variant = "bybit"
	// VariantBinance decodes flat trade objects with p/q/s/T fields at
	// the top level, as pushed by Binance raw trade streams.
	VariantBinance Variant = "binance"
)

// Parser classifies one raw text frame and decodes it into exactly one
// typed event, or nil when the frame carries nothing of interest. Decode
// failures of any kind degrade to nil; a Parser never panics and never
// returns an error past this boundary.
//
// A Parser instance is owned by a single connection and must not be shared:
// it reuses its tokenizer between calls and tracks the connection's
// monotonic local-receipt clock.
type Parser interface {
	Parse(msg []byte) models.Event
}

// New returns a parser for the given variant.
func New(v Variant) (Parser, error) {
	switch v {
	case VariantBybit:
		return NewBybitParser(), nil
	case VariantBinance:
		return NewBinanceParser(), nil
	}
	return nil, fmt.Errorf("unknown parser variant %q", v)
}
