package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/config"
	"tradegate/internal/models"
	"tradegate/internal/parser"
	"tradegate/logger"
)

// wsConn is the slice of *websocket.Conn the streamer needs; tests swap in
// an httptest-backed connection.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

func defaultDial(ctx context.Context, url string) (wsConn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: config.DefaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// wsFrame is an outbound control frame on the public stream.
type wsFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// Streamer owns one public market-data WebSocket connection and one message
// parser. All inbound frames are parsed and dispatched sequentially on the
// connection's read goroutine, so callbacks observe events in arrival order
// and never concurrently. Sinks must not call Stop: it waits for the read
// goroutine the sink is running on.
//
// Known limitation: a dropped connection is logged and left closed. There is
// no reconnect or resubscribe; the owning application restarts the streamer.
type Streamer struct {
	url          string
	pingInterval time.Duration
	parser       parser.Parser
	log          *logger.Entry

	// Sinks are registered before Start; the streamer does not synchronize
	// callback replacement against frame delivery.
	onTrade     func(*models.TradeEvent)
	onDepth     func(*models.OrderBookEvent)
	onTicker    func(*models.TickerEvent)
	onExecution func(*models.ExecutionEvent)

	dial dialFunc

	mu      sync.Mutex // guards conn, symbols, running
	writeMu sync.Mutex
	conn    wsConn
	symbols []string
	running bool
	wg      sync.WaitGroup
}

// New creates a streamer for the configured endpoint. Symbols listed in the
// config are subscribed in one batched frame when Start runs.
func New(cfg config.StreamConfig, p parser.Parser) *Streamer {
	s := &Streamer{
		url:          cfg.URL,
		pingInterval: cfg.PingInterval,
		parser:       p,
		log:          logger.GetLogger().WithComponent("streamer"),
		dial:         defaultDial,
	}
	s.symbols = append(s.symbols, cfg.Symbols...)
	return s
}

// SetTradeCallback registers the sink for normalized trades.
func (s *Streamer) SetTradeCallback(cb func(*models.TradeEvent)) { s.onTrade = cb }

// SetDepthCallback registers the sink for order book snapshots and deltas.
func (s *Streamer) SetDepthCallback(cb func(*models.OrderBookEvent)) { s.onDepth = cb }

// SetTickerCallback registers the sink for 24h ticker updates.
func (s *Streamer) SetTickerCallback(cb func(*models.TickerEvent)) { s.onTicker = cb }

// SetExecutionCallback registers the sink for execution reports.
func (s *Streamer) SetExecutionCallback(cb func(*models.ExecutionEvent)) { s.onExecution = cb }

// topicsFor builds the subscription topics for one symbol: the 50-level
// order book stream and the public trade stream.
func topicsFor(symbol string) []string {
	return []string{
		fmt.Sprintf("orderbook.50.%s", symbol),
		fmt.Sprintf("publicTrade.%s", symbol),
	}
}

// AddSymbol appends a symbol to the subscription set. Duplicates are kept;
// the venue deduplicates topic subscriptions on its side. When the streamer
// is already connected the subscribe frame goes out immediately, otherwise
// the symbol rides the batched subscribe on the next Start.
func (s *Streamer) AddSymbol(symbol string) error {
	s.mu.Lock()
	s.symbols = append(s.symbols, symbol)
	connected := s.conn != nil
	s.mu.Unlock()

	if !connected {
		return nil
	}
	if err := s.send(wsFrame{Op: "subscribe", Args: topicsFor(symbol)}); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	s.log.WithFields(logger.Fields{"symbol": symbol}).Info("subscribed symbol")
	return nil
}

// Start dials the venue, sends one batched subscribe frame for every
// accumulated symbol and launches the read loop. It returns once the
// connection is up; frame delivery happens on background goroutines.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("streamer already running")
	}
	conn, err := s.dial(ctx, s.url)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("dial market stream: %w", err)
	}
	s.conn = conn
	s.running = true
	symbols := make([]string, len(s.symbols))
	copy(symbols, s.symbols)
	s.mu.Unlock()

	if len(symbols) > 0 {
		var args []string
		for _, sym := range symbols {
			args = append(args, topicsFor(sym)...)
		}
		if err := s.send(wsFrame{Op: "subscribe", Args: args}); err != nil {
			s.Stop()
			return fmt.Errorf("batched subscribe: %w", err)
		}
	}

	done := make(chan struct{})
	s.wg.Add(1)
	go s.readLoop(conn, done)
	if s.pingInterval > 0 {
		s.wg.Add(1)
		go s.pingLoop(done)
	}

	s.log.WithFields(logger.Fields{
		"url":     s.url,
		"symbols": symbols,
	}).Info("market stream connected")
	return nil
}

// Stop tears down the socket. Safe to call repeatedly and before Start, but
// not from inside a sink callback: Stop blocks until the read goroutine
// delivering that callback has exited.
func (s *Streamer) Stop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.running = false
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

func (s *Streamer) send(frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("market stream not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Streamer) readLoop(conn wsConn, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Release the connection slot so the owner can Start
			// again. When Stop already swapped it out this was a
			// deliberate shutdown, not a transport drop.
			s.mu.Lock()
			dropped := s.conn == conn
			if dropped {
				s.conn = nil
				s.running = false
			}
			s.mu.Unlock()
			if dropped {
				conn.Close()
				s.log.WithError(err).Warn("market stream closed")
			}
			return
		}
		s.dispatch(msg)
	}
}

// dispatch parses one frame and routes the resulting event to its sink.
// Frames that produce no event, or whose sink is unset, are counted as
// dropped; control frames (subscribe acks, pongs) land there too.
func (s *Streamer) dispatch(msg []byte) {
	switch ev := s.parser.Parse(msg).(type) {
	case *models.TradeEvent:
		if s.onTrade != nil {
			s.onTrade(ev)
			logger.IncrementFrame(false)
			return
		}
	case *models.OrderBookEvent:
		if s.onDepth != nil {
			s.onDepth(ev)
			logger.IncrementFrame(false)
			return
		}
	case *models.TickerEvent:
		if s.onTicker != nil {
			s.onTicker(ev)
			logger.IncrementFrame(false)
			return
		}
	case *models.ExecutionEvent:
		if s.onExecution != nil {
			s.onExecution(ev)
			logger.IncrementFrame(false)
			return
		}
	}
	logger.IncrementFrame(true)
}

func (s *Streamer) pingLoop(done chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.send(wsFrame{Op: "ping"}); err != nil {
				s.log.WithError(err).Debug("market stream ping failed")
				return
			}
		}
	}
}
