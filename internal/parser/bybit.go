package parser

import (
	"bytes"
	"time"

	"github.com/valyala/fastjson"

	"tradegate/internal/models"
)

// BybitParser decodes Bybit v5 topic-addressed frames. The embedded
// fastjson.Parser is reused across calls so the hot path stays
// allocation-light; the only state carried between calls is the
// local-receipt clamp, which exists to keep depth timestamps monotonic
// per connection.
type BybitParser struct {
	p fastjson.Parser

	now       func() time.Time
	lastLocal int64
}

// NewBybitParser returns a parser for Bybit v5 public and private streams.
func NewBybitParser() *BybitParser {
	return &BybitParser{now: time.Now}
}

func (bp *BybitParser) Parse(msg []byte) models.Event {
	v, err := bp.p.ParseBytes(msg)
	if err != nil {
		return nil
	}
	topic := v.GetStringBytes("topic")
	if topic == nil {
		return nil
	}
	switch {
	case bytes.Contains(topic, []byte("execution")):
		return bp.parseExecution(v)
	case bytes.Contains(topic, []byte("tickers")):
		return bp.parseTicker(v)
	case bytes.Contains(topic, []byte("publicTrade")):
		return bp.parseTrade(v)
	case bytes.Contains(topic, []byte("orderbook")):
		return bp.parseDepth(v)
	}
	return nil
}

// parseTrade walks the data array and returns the first record with a
// strictly positive price. Records without one are not trades.
func (bp *BybitParser) parseTrade(v *fastjson.Value) models.Event {
	for _, rec := range v.GetArray("data") {
		price := extractFloat(rec.Get("p"))
		if price <= 0 {
			continue
		}
		return &models.TradeEvent{
			Symbol:       string(rec.GetStringBytes("s")),
			Price:        price,
			Quantity:     extractFloat(rec.Get("v")),
			ExchangeTime: rec.GetInt64("T"),
		}
	}
	return nil
}

// parseDepth decodes both snapshot and delta frames. A missing data object
// or an unknown type aborts the whole message; everything else is filled
// tolerantly. A delta with empty level arrays still produces an event, the
// consumer may treat it as a heartbeat.
func (bp *BybitParser) parseDepth(v *fastjson.Value) models.Event {
	typ := v.GetStringBytes("type")
	isSnapshot := bytes.Equal(typ, []byte("snapshot"))
	if !isSnapshot && !bytes.Equal(typ, []byte("delta")) {
		return nil
	}
	data := v.Get("data")
	if data == nil || data.Type() != fastjson.TypeObject {
		return nil
	}
	return &models.OrderBookEvent{
		Symbol:       string(data.GetStringBytes("s")),
		ExchangeTime: v.GetInt64("ts"),
		LocalTime:    bp.localMillis(),
		Bids:         parseLevels(data.GetArray("b")),
		Asks:         parseLevels(data.GetArray("a")),
		IsSnapshot:   isSnapshot,
	}
}

func (bp *BybitParser) parseTicker(v *fastjson.Value) models.Event {
	data := v.Get("data")
	if data == nil || data.Type() != fastjson.TypeObject {
		return nil
	}
	return &models.TickerEvent{
		Symbol:            string(data.GetStringBytes("symbol")),
		LastPrice:         extractFloat(data.Get("lastPrice")),
		Turnover24h:       extractFloat(data.Get("turnover24h")),
		PriceChangePct24h: extractFloat(data.Get("price24hPcnt")),
		ExchangeTime:      v.GetInt64("ts"),
	}
}

// parseExecution returns the first record that carries an order id.
func (bp *BybitParser) parseExecution(v *fastjson.Value) models.Event {
	for _, rec := range v.GetArray("data") {
		orderID := rec.GetStringBytes("orderId")
		if len(orderID) == 0 {
			continue
		}
		return &models.ExecutionEvent{
			Symbol:    string(rec.GetStringBytes("symbol")),
			OrderID:   string(orderID),
			Side:      string(rec.GetStringBytes("side")),
			ExecPrice: extractFloat(rec.Get("execPrice")),
			ExecQty:   extractFloat(rec.Get("execQty")),
			IsMaker:   rec.GetBool("isMaker"),
			// execTime arrives as a string on this topic, so it goes
			// through the tolerant numeric path.
			ExchangeTime: int64(extractFloat(rec.Get("execTime"))),
		}
	}
	return nil
}

// localMillis returns the wall clock in milliseconds, clamped so values
// handed out by this parser never decrease even if the clock steps back.
func (bp *BybitParser) localMillis() int64 {
	now := bp.now().UnixMilli()
	if now < bp.lastLocal {
		now = bp.lastLocal
	}
	bp.lastLocal = now
	return now
}

func parseLevels(arr []*fastjson.Value) []models.PriceLevel {
	levels := make([]models.PriceLevel, 0, len(arr))
	for _, lv := range arr {
		pair := lv.GetArray()
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, models.PriceLevel{
			Price:    extractFloat(pair[0]),
			Quantity: extractFloat(pair[1]),
		})
	}
	return levels
}
