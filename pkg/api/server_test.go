package api

import (
	"context"
	"encoding/json"
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

	"github.com/uhyunpark/mmbot/pkg/bot"
	"github.com/uhyunpark/mmbot/pkg/patch"
	"github.com/uhyunpark/mmbot/pkg/strategy"
)

type fakeBot struct {
	mu        sync.Mutex
	margin    decimal.Decimal
	shutdowns int
	shutErr   error
}

func (f *fakeBot) Symbol() string { return "BTCUSD7H" }

func (f *fakeBot) MarginPercent() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.margin
}

func (f *fakeBot) SetMarginPercent(p decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.margin = p
}

func (f *fakeBot) IsExpired() bool { return false }

func (f *fakeBot) Shutdown(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return f.shutErr == nil, f.shutErr
}

type fakeLog struct {
	symbol string
	limit  int
	recs   []bot.PatchRecord
}

func (f *fakeLog) List(symbol string, limit int) ([]bot.PatchRecord, error) {
	f.symbol, f.limit = symbol, limit
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func newTestServer(t *testing.T, b BotHandle, log PatchLog) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(b, log, nil, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeBot{}, nil)
	resp := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetAndSetMargin(t *testing.T) {
	fb := &fakeBot{margin: decimal.NewFromInt(100)}
	_, ts := newTestServer(t, fb, nil)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/bot", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status BotStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, BotStatus{Symbol: "BTCUSD7H", MarginPercent: "100"}, status)

	resp = do(t, http.MethodPut, ts.URL+"/api/v1/bot/margin", `{"marginPercent": 25.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "25.5", status.MarginPercent)
	assert.True(t, fb.MarginPercent().Equal(decimal.RequireFromString("25.5")))

	resp = do(t, http.MethodPut, ts.URL+"/api/v1/bot/margin", `{"marginPercent": "101"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodPut, ts.URL+"/api/v1/bot/margin", `{"marginPercent": "lots"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, fb.MarginPercent().Equal(decimal.RequireFromString("25.5")))
}

func TestShutdown(t *testing.T) {
	fb := &fakeBot{}
	_, ts := newTestServer(t, fb, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/bot/shutdown", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out ShutdownResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Done)

	fb.shutErr = errors.New("venue down")
	resp = do(t, http.MethodPost, ts.URL+"/api/v1/bot/shutdown", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 2, fb.shutdowns)
}

func TestPatches(t *testing.T) {
	_, ts := newTestServer(t, &fakeBot{}, nil)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/bot/patches", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	log := &fakeLog{recs: []bot.PatchRecord{{Symbol: "BTCUSD7H", Pass: "merge"}, {Symbol: "BTCUSD7H", Pass: "move_price"}}}
	_, ts = newTestServer(t, &fakeBot{}, log)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/bot/patches?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []bot.PatchRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "merge", recs[0].Pass)
	assert.Equal(t, "BTCUSD7H", log.symbol)

	do(t, http.MethodGet, ts.URL+"/api/v1/bot/patches", "")
	assert.Equal(t, defaultPatchLimit, log.limit)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/bot/patches?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSpreadOverride(t *testing.T) {
	_, ts := newTestServer(t, &fakeBot{}, nil)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/bot/spread", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	override := &strategy.SpreadOverride{}
	s := NewServer(&fakeBot{}, nil, nil, nil)
	s.EnableSpreadOverride(override)
	ts = httptest.NewServer(s.Handler())
	defer ts.Close()

	resp = do(t, http.MethodPut, ts.URL+"/api/v1/bot/spread", `{"spread": "3.5"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status SpreadStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, SpreadStatus{Override: true, Spread: "3.5"}, status)
	got, ok := override.Spread()
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.RequireFromString("3.5")))

	resp = do(t, http.MethodPut, ts.URL+"/api/v1/bot/spread", `{"spread": 0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/api/v1/bot/spread", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = SpreadStatus{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Override)
	_, ok = override.Spread()
	assert.False(t, ok)
}

func TestPatchStream(t *testing.T) {
	s, ts := newTestServer(t, &fakeBot{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	rec := bot.PatchRecord{
		Symbol: "BTCUSD7H",
		Pass:   "move_price",
		Ops:    []patch.Op{{Op: patch.OpRemove, Value: []string{"a"}}},
	}
	require.NoError(t, s.Hub().Record(rec))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Channel string          `json:"channel"`
		Data    bot.PatchRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, ChannelPatches, msg.Channel)
	assert.Equal(t, "move_price", msg.Data.Pass)
	require.Len(t, msg.Data.Ops, 1)
	assert.Equal(t, patch.OpRemove, msg.Data.Ops[0].Op)
}
