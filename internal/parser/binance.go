package parser

import (
	"github.com/valyala/fastjson"

	"tradegate/internal/models"
)

// BinanceParser decodes flat trade objects with no topic/data envelope:
// price, quantity, symbol and timestamp sit at the top level. A strictly
// positive extracted price is the sole signal that the object is a trade.
type BinanceParser struct {
	p fastjson.Parser
}

// NewBinanceParser returns a parser for Binance-style raw trade streams.
func NewBinanceParser() *BinanceParser {
	return &BinanceParser{}
}

func (bp *BinanceParser) Parse(msg []byte) models.Event {
	v, err := bp.p.ParseBytes(msg)
	if err != nil {
		return nil
	}
	price := extractFloat(v.Get("p"))
	if price <= 0 {
		return nil
	}
	return &models.TradeEvent{
		Symbol:       string(v.GetStringBytes("s")),
		Price:        price,
		Quantity:     extractFloat(v.Get("q")),
		ExchangeTime: v.GetInt64("T"),
	}
}
