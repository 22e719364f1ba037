package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
)

// SpreadOverride is an operator-controlled SpreadSource. It is written from
// the admin API and read by the bot loop.
type SpreadOverride struct {
	mu     sync.RWMutex
	spread decimal.Decimal
	set    bool
}

func (o *SpreadOverride) Set(spread decimal.Decimal) {
	o.mu.Lock()
	o.spread, o.set = spread, true
	o.mu.Unlock()
}

func (o *SpreadOverride) Clear() {
	o.mu.Lock()
	o.spread, o.set = decimal.Zero, false
	o.mu.Unlock()
}

func (o *SpreadOverride) Spread() (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spread, o.set
}
