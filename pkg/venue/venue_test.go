package venue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/bot"
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/patch"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quanto() market.Instrument {
	return market.Instrument{
		Symbol:        "BTCUSD7H",
		Type:          market.Quanto,
		TickSize:      1,
		TicksPerPoint: d("10"),
		TickValue:     d("1"),
		Expiry:        time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		ExpiryClass:   market.Daily,
	}
}

func TestInfoClientIndexPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/all/info", r.URL.Path)
		w.Write([]byte(`{"BTCUSD7H":{"indexPrice":"64123.5","other":1},"ETHUSD":{"indexPrice":3100}}`))
	}))
	defer srv.Close()

	prices, err := NewInfoClient(srv.URL + "/").IndexPrices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.True(t, prices["BTCUSD7H"].Equal(d("64123.5")))
	assert.True(t, prices["ETHUSD"].Equal(d("3100")))
}

func TestInfoClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewInfoClient(srv.URL).IndexPrices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type capture struct {
	mu     sync.Mutex
	trades int
	users  int
	bands  []map[string]market.Band
	acks   []patch.Response
}

func (c *capture) listeners() bot.Listeners {
	return bot.Listeners{
		Trade: func() { c.mu.Lock(); c.trades++; c.mu.Unlock() },
		PriceBand: func(b map[string]market.Band) {
			c.mu.Lock()
			c.bands = append(c.bands, b)
			c.mu.Unlock()
		},
		UserMessage: func() { c.mu.Lock(); c.users++; c.mu.Unlock() },
		OrderPatch: func(r patch.Response) {
			c.mu.Lock()
			c.acks = append(c.acks, r)
			c.mu.Unlock()
		},
	}
}

func (c *capture) tradeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trades
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter("ws://unused", nil)
	c1, c2 := &capture{}, &capture{}
	r.Add(c1.listeners())
	r.Add(c2.listeners())

	require.NoError(t, r.Dispatch([]byte(`{"type":"priceband","data":{"BTCUSD7H":{"price":"100.5"}}}`)))
	require.NoError(t, r.Dispatch([]byte(`{"type":"trade"}`)))
	require.NoError(t, r.Dispatch([]byte(`{"type":"userMessage","data":{"text":"hi"}}`)))
	require.NoError(t, r.Dispatch([]byte(`{"type":"orderPatch","data":{"result":[{"op":"add"},{"op":"replace","error":"gone"}]}}`)))

	for _, c := range []*capture{c1, c2} {
		require.Len(t, c.bands, 1)
		assert.True(t, c.bands[0]["BTCUSD7H"].Price.Equal(d("100.5")))
		assert.Equal(t, 1, c.trades)
		assert.Equal(t, 1, c.users)
		require.Len(t, c.acks, 1)
		assert.True(t, c.acks[0].HasError())
		assert.Equal(t, patch.OpReplace, c.acks[0].Result[1].Op)
	}

	assert.Error(t, r.Dispatch([]byte(`{"type":"funding"}`)))
	assert.Error(t, r.Dispatch([]byte(`not json`)))
}

func TestRouterRunReadsStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade"}`))
		// hold the connection until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	r := NewRouter("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	c := &capture{}
	r.Add(c.listeners())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return c.tradeCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
}

func TestPaperAccountPatchLifecycle(t *testing.T) {
	a, err := NewPaperAccount("user-1", d("1000"), quanto())
	require.NoError(t, err)
	ctx := context.Background()

	add := []book.Order{
		{UUID: "a", Instrument: "BTCUSD7H", Side: book.Buy, Price: d("98"), Quantity: 2, OrderType: book.Limit, StopPrice: d("1")},
		{UUID: "b", Instrument: "BTCUSD7H", Side: book.Sell, Price: d("102"), Quantity: 1, OrderType: book.Limit, StopPrice: d("1")},
	}
	resp, err := a.PatchOrders(ctx, []patch.Op{{Op: patch.OpAdd, Value: add}})
	require.NoError(t, err)
	assert.False(t, resp.HasError())

	open, err := a.OpenOrders()
	require.NoError(t, err)
	require.Len(t, open["BTCUSD7H"], 2)

	// quanto cost: stop 1 * 10 ticks * 1 per tick = 10 per contract, 3 contracts
	assert.True(t, a.AvailableMarginIfCrossShifted(open).Equal(d("970")))

	resp, err = a.PatchOrders(ctx, []patch.Op{
		{Op: patch.OpRemove, Value: []string{"b"}},
		{Op: patch.OpReplace, Value: []patch.Reprice{{UUID: "a", Price: d("97")}}},
		{Op: patch.OpReplace, Value: []patch.Reprice{{UUID: "zzz", Price: d("1")}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Result, 3)
	assert.Empty(t, resp.Result[0].Error)
	assert.Empty(t, resp.Result[1].Error)
	assert.Contains(t, resp.Result[2].Error, ErrOrderNotFound.Error())

	open, _ = a.OpenOrders()
	require.Len(t, open["BTCUSD7H"], 1)
	assert.True(t, open["BTCUSD7H"]["a"].Price.Equal(d("97")))
}

func TestPaperAccountRejectsBadOps(t *testing.T) {
	a, err := NewPaperAccount("user-1", d("1000"), quanto())
	require.NoError(t, err)

	resp, err := a.PatchOrders(context.Background(), []patch.Op{
		{Op: patch.OpAdd, Value: []book.Order{{Instrument: "NOPE", Side: book.Buy, Price: d("1"), Quantity: 1}}},
		{Op: patch.OpRemove, Value: "not-a-list"},
		{Op: patch.OpMerge, Value: []string{"oco-1"}},
		{Op: "flip"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Result, 4)
	assert.NotEmpty(t, resp.Result[0].Error)
	assert.NotEmpty(t, resp.Result[1].Error)
	assert.Empty(t, resp.Result[2].Error)
	assert.NotEmpty(t, resp.Result[3].Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.PatchOrders(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPaperAccountValidatesInstruments(t *testing.T) {
	bad := quanto()
	bad.TicksPerPoint = decimal.Zero
	_, err := NewPaperAccount("user-1", d("1"), bad)
	assert.Error(t, err)
}

func TestPaperAccountPositions(t *testing.T) {
	a, err := NewPaperAccount("user-1", d("1"), quanto())
	require.NoError(t, err)
	a.SetPosition(market.Position{Symbol: "BTCUSD7H", Quantity: -40})
	assert.Equal(t, int64(-40), a.Positions()["BTCUSD7H"].Quantity)
	assert.NotEqual(t, a.NewUUID(), a.NewUUID())
}
