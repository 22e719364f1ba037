package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/pricing"
)

// collar places QTY-sized limits on both sides of price, STEP apart, out to a
// depth bounded by available margin. The side that would grow an existing
// position is pushed further out.
func (e *Engine) collar(in Inputs) (book.Book, error) {
	var b book.Book
	if in.AvailableMargin == nil {
		return b, fmt.Errorf("%w: margin source required for collar", pricing.ErrPrecondition)
	}
	margin, err := in.AvailableMargin()
	if err != nil {
		return b, err
	}
	if !margin.IsPositive() {
		return b, nil
	}

	p := e.params
	spq, err := pricing.SatoshiPerQuantity(in.Instrument, in.Band, p.Depth, p.Stop)
	if err != nil {
		return b, err
	}
	perLevel := spq.Mul(decimal.NewFromInt(p.Quantity * 2))
	if !perLevel.IsPositive() {
		return b, fmt.Errorf("%w: margin per level %s not positive", pricing.ErrPrecondition, perLevel)
	}
	maxLevels := margin.Div(perLevel).Floor()
	depth := decimal.Min(p.Depth, maxLevels.Mul(p.Step))

	spread := e.Spread()
	buySpread, sellSpread := spread, spread
	if !in.Position.IsFlat() {
		adj := pricing.SpreadAdjustment(in.Position.Quantity)
		if in.Position.Quantity > 0 {
			buySpread = buySpread.Add(adj)
		} else {
			sellSpread = sellSpread.Add(adj)
		}
	}

	premium := e.premium(in)
	tick := in.Instrument.TickSize

	maxBuys := pricing.MaxOrderCount(in.Position, book.Buy, p.MaxQty)
	start := in.Price.Sub(buySpread)
	end := start.Sub(depth)
	var count int64
	for lvl := start; lvl.GreaterThan(end); lvl = lvl.Sub(p.Step) {
		if count >= maxBuys {
			break
		}
		b.Buys.Set(e.newOrder(book.Buy, pricing.PremiumPrice(lvl, premium, tick), p.Quantity))
		count += p.Quantity
	}

	maxSells := pricing.MaxOrderCount(in.Position, book.Sell, p.MaxQty)
	start = in.Price.Add(sellSpread)
	end = start.Add(depth)
	count = 0
	for lvl := start; lvl.LessThan(end); lvl = lvl.Add(p.Step) {
		if count >= maxSells {
			break
		}
		b.Sells.Set(e.newOrder(book.Sell, pricing.PremiumPrice(lvl, premium, tick), p.Quantity))
		count += p.Quantity
	}
	return b, nil
}
