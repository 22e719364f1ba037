package book

// Book is a per-symbol view of resting orders. Limit orders are indexed by
// price per side; targets and stops are plain collections.
type Book struct {
	Buys    PriceMap
	Sells   PriceMap
	Targets []Order
	Stops   []Order
}

// Side returns the price map for s
func (b *Book) Side(s Side) *PriceMap {
	if s == Buy {
		return &b.Buys
	}
	return &b.Sells
}

// FromOrders sorts open orders into a Book. When two limit orders share a
// price on one side the later one wins the slot.
func FromOrders(orders []Order) Book {
	var b Book
	for _, o := range orders {
		switch o.OrderType {
		case Limit:
			b.Side(o.Side).Set(o)
		case Target:
			b.Targets = append(b.Targets, o)
		case Stop:
			b.Stops = append(b.Stops, o)
		}
	}
	return b
}

// Sides is a per-side pair of price maps
type Sides struct {
	Buys  PriceMap
	Sells PriceMap
}

func (s Sides) Len() int { return s.Buys.Len() + s.Sells.Len() }

// Changes is the result of diffing two books
type Changes struct {
	Cancels Sides // resting now, not wanted
	Creates Sides // wanted, not resting
}

// Empty reports whether current and desired already agree
func (c Changes) Empty() bool {
	return c.Cancels.Len() == 0 && c.Creates.Len() == 0
}

// Diff compares the limit ladders of current and desired by price only.
// A level whose quantity differs at the same price counts as unchanged.
// Targets and stops are not compared.
func Diff(current, desired *Book) Changes {
	return Changes{
		Cancels: Sides{
			Buys:  current.Buys.Subtract(&desired.Buys),
			Sells: current.Sells.Subtract(&desired.Sells),
		},
		Creates: Sides{
			Buys:  desired.Buys.Subtract(&current.Buys),
			Sells: desired.Sells.Subtract(&current.Sells),
		},
	}
}
