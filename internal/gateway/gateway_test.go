package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/config"
	"tradegate/internal/models"
)

// fakeConn is a recording test double for the trade socket.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	inbox  chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.inbox
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return websocket.TextMessage, msg, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbox)
	}
	return nil
}

func (c *fakeConn) frames(t *testing.T) []map[string]interface{} {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(c.writes))
	for _, w := range c.writes {
		var m map[string]interface{}
		if err := json.Unmarshal(w, &m); err != nil {
			t.Fatalf("bad frame %q: %v", w, err)
		}
		out = append(out, m)
	}
	return out
}

func newTestGateway(fc *fakeConn) *OrderGateway {
	g := New(config.GatewayConfig{APIKey: "test-key", APISecret: "test-secret"})
	g.dial = func(ctx context.Context, url string) (wsConn, error) { return fc, nil }
	g.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return g
}

func waitForState(t *testing.T, g *OrderGateway, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if g.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", g.State(), want)
}

func TestConnectSendsSignedAuthFrame(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Stop()

	if g.State() != StateAuthPending {
		t.Errorf("state after connect = %v", g.State())
	}

	frames := fc.frames(t)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	auth := frames[0]
	if auth["op"] != "auth" {
		t.Fatalf("op = %v", auth["op"])
	}
	args := auth["args"].([]interface{})
	if args[0] != "test-key" {
		t.Errorf("api key arg = %v", args[0])
	}
	expires := int64(args[1].(float64))
	if expires != 1700000005000 {
		t.Errorf("expires = %d, want now+5000ms", expires)
	}
	wantSig := NewSigner("test-secret").SignExpiry(expires)
	if args[2] != wantSig {
		t.Errorf("signature = %v, want %v", args[2], wantSig)
	}
}

func TestAuthResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		resp string
		want State
	}{
		{"success flag", `{"op":"auth","success":true}`, StateAuthenticated},
		{"retCode zero", `{"op":"auth","retCode":0}`, StateAuthenticated},
		{"ret_code zero", `{"op":"auth","ret_code":0}`, StateAuthenticated},
		{"rejected", `{"op":"auth","success":false,"retCode":10003}`, StateAuthPending},
		{"unrelated op", `{"op":"pong"}`, StateAuthPending},
		{"garbage", `not json`, StateAuthPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(newFakeConn())
			g.state.Store(int32(StateAuthPending))
			g.handleMessage([]byte(tc.resp))
			if g.State() != tc.want {
				t.Errorf("state = %v, want %v", g.State(), tc.want)
			}
		})
	}
}

func TestAuthCompletesOverSocket(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Stop()

	fc.inbox <- []byte(`{"op":"auth","success":true}`)
	waitForState(t, g, StateAuthenticated)
}

func TestSendOrderRequiresAuth(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Stop()

	order := models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.SideBuy, Quantity: 0.01,
		OrderType: models.OrderTypeMarket, TimeInForce: models.TIFIOC,
	}
	if err := g.SendOrder(order); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("SendOrder error = %v, want ErrNotAuthenticated", err)
	}
	if err := g.CancelOrder("BTCUSDT", "oid-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("CancelOrder error = %v, want ErrNotAuthenticated", err)
	}

	// Only the auth frame may have gone out.
	if frames := fc.frames(t); len(frames) != 1 {
		t.Fatalf("expected only the auth frame, got %d frames", len(frames))
	}
}

func TestSendOrderAndCancelSerialization(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Stop()

	fc.inbox <- []byte(`{"op":"auth","retCode":0}`)
	waitForState(t, g, StateAuthenticated)

	order := models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.SideBuy, Quantity: 0.01, Price: 61000,
		OrderType: models.OrderTypeLimit, TimeInForce: models.TIFPostOnly,
	}
	if err := g.SendOrder(order); err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	if err := g.CancelOrder("BTCUSDT", "oid-7"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	frames := fc.frames(t)
	if len(frames) != 3 {
		t.Fatalf("expected auth+order+cancel, got %d frames", len(frames))
	}

	create := frames[1]
	if create["op"] != "order.create" {
		t.Errorf("op = %v", create["op"])
	}
	payload := create["args"].([]interface{})[0].(map[string]interface{})
	if payload["symbol"] != "BTCUSDT" || payload["qty"] != "0.01" || payload["price"] != "61000" {
		t.Errorf("order payload: %v", payload)
	}

	cancel := frames[2]
	if cancel["op"] != "order.cancel" {
		t.Errorf("op = %v", cancel["op"])
	}
	cpl := cancel["args"].([]interface{})[0].(map[string]interface{})
	if cpl["category"] != "linear" || cpl["symbol"] != "BTCUSDT" || cpl["orderId"] != "oid-7" {
		t.Errorf("cancel payload: %v", cpl)
	}
}

func TestUpdateCallbackReceivesEveryFrame(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)

	got := make(chan string, 4)
	g.SetOrderUpdateCallback(func(raw string) { got <- raw })

	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Stop()

	frames := []string{
		`{"op":"auth","success":true}`,
		`{"op":"order.create","retCode":0,"data":{"orderId":"oid-1"}}`,
		`plain text heartbeat`,
	}
	for _, f := range frames {
		fc.inbox <- []byte(f)
	}
	for _, want := range frames {
		select {
		case raw := <-got:
			if raw != want {
				t.Errorf("forwarded %q, want %q", raw, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("update callback not invoked")
		}
	}
}

func TestStopIdempotent(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	g.Stop()
	g.Stop()
	if g.State() != StateDisconnected {
		t.Errorf("state = %v after stop", g.State())
	}

	// A gateway that never connected can be stopped too.
	fresh := newTestGateway(newFakeConn())
	fresh.Stop()
}

func TestReconnectAfterTransportDrop(t *testing.T) {
	first := newFakeConn()
	g := newTestGateway(first)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first.inbox <- []byte(`{"op":"auth","success":true}`)
	waitForState(t, g, StateAuthenticated)

	// Venue drops the socket; the owner dials in again.
	first.Close()
	waitForState(t, g, StateDisconnected)

	second := newFakeConn()
	g.dial = func(ctx context.Context, url string) (wsConn, error) { return second, nil }
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("re-connect after drop: %v", err)
	}
	defer g.Stop()

	frames := second.frames(t)
	if len(frames) != 1 || frames[0]["op"] != "auth" {
		t.Fatalf("expected fresh auth frame, got %v", frames)
	}

	second.inbox <- []byte(`{"op":"auth","success":true}`)
	waitForState(t, g, StateAuthenticated)

	order := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Quantity: 1,
		OrderType: models.OrderTypeMarket, TimeInForce: models.TIFIOC}
	if err := g.SendOrder(order); err != nil {
		t.Fatalf("SendOrder on new session: %v", err)
	}
}

func TestDisconnectResetsSession(t *testing.T) {
	fc := newFakeConn()
	g := newTestGateway(fc)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	fc.inbox <- []byte(`{"op":"auth","success":true}`)
	waitForState(t, g, StateAuthenticated)

	// Transport drop: the session resets and orders are rejected again.
	fc.Close()
	waitForState(t, g, StateDisconnected)

	order := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideSell, Quantity: 1,
		OrderType: models.OrderTypeMarket, TimeInForce: models.TIFIOC}
	if err := g.SendOrder(order); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("SendOrder after drop = %v, want ErrNotAuthenticated", err)
	}
	g.Stop()
}
