package bot

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/patch"
)

// ErrPrecondition aborts the current pass: missing symbol, unusable
// open-orders snapshot, missing instrument or band.
var ErrPrecondition = errors.New("bot precondition failed")

// Account is the venue session the bot trades through. It owns order
// submission, authentication and the authoritative order/position state.
// Implementations must be safe for concurrent use: Shutdown and the admin
// API may call in while the loop is running.
type Account interface {
	// OpenOrders returns open orders by symbol, then by UUID
	OpenOrders() (map[string]map[string]book.Order, error)
	Positions() map[string]market.Position
	Instruments() map[string]market.Instrument
	PatchOrders(ctx context.Context, ops []patch.Op) (patch.Response, error)
	// AvailableMarginIfCrossShifted is the account's collateral model
	AvailableMarginIfCrossShifted(openOrders map[string]map[string]book.Order) decimal.Decimal
	NewUUID() string
	UserID() string
}

// InfoSource supplies the index prices used to seed the band at startup
type InfoSource interface {
	IndexPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// PatchRecord describes one submitted batch and the venue's reply
type PatchRecord struct {
	Symbol string         `json:"symbol"`
	Pass   string         `json:"pass"`
	At     time.Time      `json:"at"`
	Ops    []patch.Op     `json:"ops"`
	Result []patch.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Recorder is notified of every batch the bot submits
type Recorder interface {
	Record(rec PatchRecord) error
}
