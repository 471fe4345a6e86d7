package gateway

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradegate/internal/models"
)

// wsRequest is the op/args envelope shared by every outbound frame on the
// trade socket.
type wsRequest struct {
	Op   string        `json:"op"`
	Args []interface{} `json:"args,omitempty"`
}

// orderPayload mirrors the venue's order.create argument object. Optional
// keys must be absent, not empty: some venue-side validators reject empty
// strings where they would accept a missing key.
type orderPayload struct {
	Category     string `json:"category"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"orderType"`
	Qty          string `json:"qty"`
	PositionIdx  int    `json:"positionIdx"`
	TpslMode     string `json:"tpslMode"`
	Price        string `json:"price,omitempty"`
	OrderLinkID  string `json:"orderLinkId,omitempty"`
	TimeInForce  string `json:"timeInForce"`
	ReduceOnly   bool   `json:"reduceOnly"`
	StopLoss     string `json:"stopLoss,omitempty"`
	SlOrderType  string `json:"slOrderType,omitempty"`
	TakeProfit   string `json:"takeProfit,omitempty"`
	TpOrderType  string `json:"tpOrderType,omitempty"`
	TpLimitPrice string `json:"tpLimitPrice,omitempty"`
}

type cancelPayload struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
}

// buildOrderPayload serializes an OrderRequest for order.create. Price is
// only meaningful for limit orders; a positive stop-loss attaches a market
// protective order and a positive take-profit a limit one, both priced with
// the same decimal string on every key that carries it.
func buildOrderPayload(req models.OrderRequest) orderPayload {
	p := orderPayload{
		Category:    "linear",
		Symbol:      req.Symbol,
		Side:        req.Side,
		OrderType:   req.OrderType,
		Qty:         FormatDecimal(req.Quantity),
		PositionIdx: 0, // one-way position mode
		TpslMode:    "Partial",
		OrderLinkID: req.OrderLinkID,
		TimeInForce: req.TimeInForce,
		ReduceOnly:  req.ReduceOnly,
	}
	if req.OrderType == models.OrderTypeLimit {
		p.Price = FormatDecimal(req.Price)
	}
	if req.StopLoss > 0 {
		p.StopLoss = FormatDecimal(req.StopLoss)
		p.SlOrderType = "Market"
	}
	if req.TakeProfit > 0 {
		tp := FormatDecimal(req.TakeProfit)
		p.TakeProfit = tp
		p.TpOrderType = "Limit"
		p.TpLimitPrice = tp
	}
	return p
}

// FormatDecimal renders a price or quantity as a plain decimal string with
// at most 8 fractional digits, no trailing zeros and no exponent. The venue
// rejects scientific notation and zero-padded quantities.
func FormatDecimal(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}

// NewOrderLinkID returns a fresh client order id suitable for correlating
// order acknowledgements in the raw update stream.
func NewOrderLinkID() string {
	return uuid.NewString()
}
