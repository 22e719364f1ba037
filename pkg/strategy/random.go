package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/pricing"
)

const (
	randomMinSize = 2
	randomMaxSize = 12 // exclusive
)

var tenth = decimal.New(1, -1)

// random scatters orders of random size just outside SPREAD until the
// combined buy and sell quantity reaches DEPTH. Every ten contracts placed
// push the next level one point further out.
func (e *Engine) random(in Inputs) book.Book {
	var b book.Book
	spread := e.Spread()
	premium := e.premium(in)
	tick := in.Instrument.TickSize

	for placed := int64(0); decimal.NewFromInt(placed).LessThan(e.params.Depth); {
		distance := decimal.NewFromInt(placed / 10)
		buy := e.randomOrder(book.Buy, in.Price, spread.Add(distance), premium, tick)
		b.Buys.Set(buy)
		sell := e.randomOrder(book.Sell, in.Price, spread.Add(distance), premium, tick)
		b.Sells.Set(sell)
		placed += buy.Quantity + sell.Quantity
	}
	return b
}

func (e *Engine) randomOrder(side book.Side, price, offset, premium decimal.Decimal, tick int32) book.Order {
	size := int64(randomMinSize + e.rng.IntN(randomMaxSize-randomMinSize))
	fraction := tenth.Mul(decimal.NewFromInt(int64(1 + e.rng.IntN(3))))
	delta := offset.Add(fraction)
	if side == book.Buy {
		delta = delta.Neg()
	}
	return e.newOrder(side, pricing.PremiumPrice(price.Add(delta), premium, tick), size)
}
