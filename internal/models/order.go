package models

// Order sides as the venue spells them.
const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

// Order types accepted by the order gateway.
const (
	OrderTypeLimit  = "Limit"
	OrderTypeMarket = "Market"
)

// Time-in-force policies accepted by the order gateway.
const (
	TIFPostOnly = "PostOnly"
	TIFGTC      = "GTC"
	TIFIOC      = "IOC"
)

// OrderRequest describes one order to be placed through the gateway.
// Quantity and Price are plain floats; the gateway formats them as decimal
// strings on the wire because the venue rejects scientific notation.
type OrderRequest struct {
	Symbol      string
	Side        string
	Quantity    float64
	Price       float64
	OrderLinkID string
	OrderType   string
	TimeInForce string
	ReduceOnly  bool
	// StopLoss and TakeProfit attach venue-side protective orders when
	// set to a positive price. Zero means "none".
	StopLoss   float64
	TakeProfit float64
}
