package models

// Event is the closed set of decoded market-data messages. Exactly one
// concrete event type is produced per inbound frame; a frame that does not
// classify yields no event at all.
type Event interface {
	eventKind()
}

// PriceLevel is one price/quantity pair on a book side.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBookEvent carries either a full snapshot of both book sides or an
// incremental delta. When IsSnapshot is false the entries are price-keyed
// changes and the consumer owns the merged book; this gateway never
// reconstructs depth locally.
type OrderBookEvent struct {
	Symbol       string
	ExchangeTime int64
	// LocalTime is assigned at decode time and is monotonically
	// non-decreasing for events from the same connection.
	LocalTime  int64
	Bids       []PriceLevel
	Asks       []PriceLevel
	IsSnapshot bool
}

// TradeEvent is a single public trade. A decoded object is only accepted as
// a trade when its price is strictly positive.
type TradeEvent struct {
	Symbol       string
	Price        float64
	Quantity     float64
	ExchangeTime int64
}

// TickerEvent carries the 24h rolling statistics pushed by the venue.
type TickerEvent struct {
	Symbol            string
	LastPrice         float64
	Turnover24h       float64
	PriceChangePct24h float64
	ExchangeTime      int64
}

// ExecutionEvent is a fill on one of our own orders.
type ExecutionEvent struct {
	Symbol       string
	OrderID      string
	Side         string
	ExecPrice    float64
	ExecQty      float64
	IsMaker      bool
	ExchangeTime int64
}

func (*OrderBookEvent) eventKind() {}
func (*TradeEvent) eventKind()     {}
func (*TickerEvent) eventKind()    {}
func (*ExecutionEvent) eventKind() {}
