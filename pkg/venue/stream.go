package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/mmbot/pkg/bot"
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/patch"
)

const (
	EventPriceBand   = "priceband"
	EventTrade       = "trade"
	EventUserMessage = "userMessage"
	EventOrderPatch  = "orderPatch"
)

const defaultRedialDelay = 2 * time.Second

// Message is one frame of the venue event stream
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type bandFrame struct {
	Price decimal.Decimal `json:"price"`
}

// Router reads the venue event stream and fans each event out to every
// registered listener table. It redials until its context is cancelled.
type Router struct {
	url         string
	redialDelay time.Duration
	log         *zap.SugaredLogger

	mu        sync.RWMutex
	listeners []bot.Listeners
}

func NewRouter(url string, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{url: url, redialDelay: defaultRedialDelay, log: log}
}

func (r *Router) Add(l bot.Listeners) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Run blocks until ctx is done
func (r *Router) Run(ctx context.Context) error {
	for {
		err := r.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warnw("stream_disconnected", "url", r.url, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.redialDelay):
		}
	}
}

func (r *Router) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.url, err)
	}
	defer conn.Close()
	r.log.Infow("stream_connected", "url", r.url)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := r.Dispatch(raw); err != nil {
			r.log.Warnw("stream_bad_frame", "err", err)
		}
	}
}

// Dispatch decodes one frame and invokes the matching listener on every table
func (r *Router) Dispatch(raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	r.mu.RLock()
	listeners := append([]bot.Listeners(nil), r.listeners...)
	r.mu.RUnlock()

	switch msg.Type {
	case EventPriceBand:
		var frames map[string]bandFrame
		if err := json.Unmarshal(msg.Data, &frames); err != nil {
			return fmt.Errorf("decode priceband: %w", err)
		}
		bands := make(map[string]market.Band, len(frames))
		for sym, f := range frames {
			bands[sym] = market.Band{Price: f.Price}
		}
		for _, l := range listeners {
			if l.PriceBand != nil {
				l.PriceBand(bands)
			}
		}
	case EventTrade:
		for _, l := range listeners {
			if l.Trade != nil {
				l.Trade()
			}
		}
	case EventUserMessage:
		for _, l := range listeners {
			if l.UserMessage != nil {
				l.UserMessage()
			}
		}
	case EventOrderPatch:
		var resp patch.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return fmt.Errorf("decode orderPatch: %w", err)
		}
		for _, l := range listeners {
			if l.OrderPatch != nil {
				l.OrderPatch(resp)
			}
		}
	default:
		return errors.New("unknown event type " + msg.Type)
	}
	return nil
}
