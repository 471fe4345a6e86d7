package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/config"
	"tradegate/internal/models"
	"tradegate/logger"
)

// State tracks the gateway connection lifecycle. There is no automatic
// re-auth: a closed or failed connection stays Disconnected until the
// owning application calls Connect again.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthPending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateAuthenticated:
		return "authenticated"
	}
	return "disconnected"
}

// ErrNotAuthenticated is returned when an order operation is attempted
// before the auth handshake has completed.
var ErrNotAuthenticated = errors.New("order gateway not authenticated")

// authExpiryWindow is added to the current time to build the signature
// expiry; the venue rejects frames signed further in the past than this.
const authExpiryWindow = 5000 * time.Millisecond

// wsConn is the slice of *websocket.Conn the gateway needs; tests swap in
// a recording double.
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

// OrderGateway owns one authenticated WebSocket connection to the venue's
// trade endpoint. It signs the auth handshake, serializes order create and
// cancel requests, and forwards every inbound frame verbatim to the
// registered update callback. All inbound handling runs sequentially on the
// connection's read goroutine, in frame order.
//
// Known limitation: there is no reconnect or backoff. After a transport
// error the gateway stays Disconnected and the owner decides when to call
// Connect again.
type OrderGateway struct {
	apiKey       string
	signer       *Signer
	url          string
	pingInterval time.Duration
	log          *logger.Entry

	// onUpdate must be registered before Connect; the gateway does not
	// synchronize callback replacement against message delivery.
	onUpdate func(string)

	dial dialFunc
	now  func() time.Time

	state atomic.Int32

	mu      sync.Mutex // guards conn
	writeMu sync.Mutex
	conn    wsConn
	wg      sync.WaitGroup
}

// New creates an order gateway for the configured environment. Credentials
// are taken once at construction; the session resets to unauthenticated on
// every connection loss.
func New(cfg config.GatewayConfig) *OrderGateway {
	return &OrderGateway{
		apiKey:       cfg.APIKey,
		signer:       NewSigner(cfg.APISecret),
		url:          cfg.TradeURL(),
		pingInterval: cfg.PingInterval,
		log:          logger.GetLogger().WithComponent("order_gateway"),
		dial:         defaultDial,
		now:          time.Now,
	}
}

// SetOrderUpdateCallback registers the sink that receives every inbound
// frame as raw text. Order acknowledgements and fills reach the consumer
// through this channel; correlation is the consumer's job via orderLinkId.
func (g *OrderGateway) SetOrderUpdateCallback(cb func(raw string)) {
	g.onUpdate = cb
}

// State returns the current connection state.
func (g *OrderGateway) State() State {
	return State(g.state.Load())
}

// Connect opens the trade endpoint and immediately sends the signed auth
// frame. The transition to Authenticated happens asynchronously when the
// venue acknowledges the handshake.
func (g *OrderGateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.conn != nil {
		g.mu.Unlock()
		return fmt.Errorf("order gateway already connected")
	}
	g.state.Store(int32(StateConnecting))
	conn, err := g.dial(ctx, g.url)
	if err != nil {
		g.state.Store(int32(StateDisconnected))
		g.mu.Unlock()
		return fmt.Errorf("dial trade endpoint: %w", err)
	}
	g.conn = conn
	g.mu.Unlock()

	g.state.Store(int32(StateAuthPending))
	if err := g.authenticate(); err != nil {
		g.Stop()
		return fmt.Errorf("send auth frame: %w", err)
	}

	done := make(chan struct{})
	g.wg.Add(1)
	go g.readLoop(conn, done)
	if g.pingInterval > 0 {
		g.wg.Add(1)
		go g.pingLoop(done)
	}

	g.log.WithFields(logger.Fields{"url": g.url}).Info("trade stream connected, authenticating")
	return nil
}

// Stop tears down the socket. Safe to call repeatedly and before Connect,
// but not from inside the update callback: Stop blocks until the read
// goroutine delivering that callback has exited.
func (g *OrderGateway) Stop() {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()

	g.state.Store(int32(StateDisconnected))
	if conn != nil {
		conn.Close()
	}
	g.wg.Wait()
}

func (g *OrderGateway) authenticate() error {
	expires := g.now().Add(authExpiryWindow).UnixMilli()
	return g.send(wsRequest{
		Op:   "auth",
		Args: []interface{}{g.apiKey, expires, g.signer.SignExpiry(expires)},
	})
}

// SendOrder serializes and sends one order.create frame. The call is
// rejected locally, with no frame sent, unless the session is
// authenticated. The send is fire-and-forget: acknowledgement arrives later
// on the update callback.
func (g *OrderGateway) SendOrder(req models.OrderRequest) error {
	if g.State() != StateAuthenticated {
		logger.IncrementOrderRejected()
		g.log.WithFields(logger.Fields{
			"symbol": req.Symbol,
			"state":  g.State().String(),
		}).Warn("order rejected: gateway not authenticated")
		return ErrNotAuthenticated
	}

	if err := g.send(wsRequest{Op: "order.create", Args: []interface{}{buildOrderPayload(req)}}); err != nil {
		return fmt.Errorf("send order: %w", err)
	}
	logger.IncrementOrderSent()
	return nil
}

// CancelOrder sends one order.cancel frame for the given venue order id.
// Like SendOrder it is a local no-op when unauthenticated.
func (g *OrderGateway) CancelOrder(symbol, orderID string) error {
	if g.State() != StateAuthenticated {
		logger.IncrementOrderRejected()
		g.log.WithFields(logger.Fields{
			"symbol":   symbol,
			"order_id": orderID,
			"state":    g.State().String(),
		}).Warn("cancel rejected: gateway not authenticated")
		return ErrNotAuthenticated
	}

	payload := cancelPayload{Category: "linear", Symbol: symbol, OrderID: orderID}
	if err := g.send(wsRequest{Op: "order.cancel", Args: []interface{}{payload}}); err != nil {
		return fmt.Errorf("send cancel: %w", err)
	}
	logger.IncrementOrderSent()
	return nil
}

func (g *OrderGateway) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("trade stream not connected")
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (g *OrderGateway) readLoop(conn wsConn, done chan struct{}) {
	defer g.wg.Done()
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Release the connection slot so the owner can Connect
			// again. When Stop already swapped it out this was a
			// deliberate shutdown, not a transport drop.
			g.mu.Lock()
			dropped := g.conn == conn
			if dropped {
				g.conn = nil
				g.state.Store(int32(StateDisconnected))
			}
			g.mu.Unlock()
			if dropped {
				conn.Close()
				g.log.WithError(err).Warn("trade stream closed")
			}
			return
		}
		g.handleMessage(msg)
	}
}

// authAck covers both response shapes venues use for the auth result: a
// boolean success flag or a numeric return code, spelled retCode or
// ret_code depending on the venue revision.
type authAck struct {
	Op         string `json:"op"`
	Success    *bool  `json:"success"`
	RetCode    *int   `json:"retCode"`
	RetCodeAlt *int   `json:"ret_code"`
}

func (a authAck) authenticated() bool {
	if a.Success != nil && *a.Success {
		return true
	}
	if a.RetCode != nil && *a.RetCode == 0 {
		return true
	}
	if a.RetCodeAlt != nil && *a.RetCodeAlt == 0 {
		return true
	}
	return false
}

// handleMessage inspects inbound frames only far enough to detect the auth
// result; everything, decodable or not, is forwarded verbatim to the update
// callback.
func (g *OrderGateway) handleMessage(raw []byte) {
	if g.State() == StateAuthPending {
		var ack authAck
		if err := json.Unmarshal(raw, &ack); err == nil && ack.Op == "auth" {
			if ack.authenticated() {
				g.state.Store(int32(StateAuthenticated))
				g.log.Info("authentication accepted, ready to trade")
			} else {
				g.log.WithFields(logger.Fields{"response": string(raw)}).Warn("authentication rejected")
			}
		}
	}

	if cb := g.onUpdate; cb != nil {
		cb(string(raw))
	}
}

func (g *OrderGateway) pingLoop(done chan struct{}) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := g.send(wsRequest{Op: "ping"}); err != nil {
				g.log.WithError(err).Debug("trade stream ping failed")
				return
			}
		}
	}
}
