package book

import "github.com/shopspring/decimal"

// PriceMap holds at most one order per price, keyed by the canonical decimal
// form of the price, and remembers insertion order. The zero value is empty
// and ready to use.
type PriceMap struct {
	keys   []string
	orders map[string]Order
}

func priceKey(p decimal.Decimal) string { return p.String() }

// Set stores o under its price. An order already at that price is replaced
// in place and keeps its position in the iteration order.
func (m *PriceMap) Set(o Order) {
	if m.orders == nil {
		m.orders = make(map[string]Order)
	}
	k := priceKey(o.Price)
	if _, ok := m.orders[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.orders[k] = o
}

func (m *PriceMap) Get(price decimal.Decimal) (Order, bool) {
	o, ok := m.orders[priceKey(price)]
	return o, ok
}

func (m *PriceMap) Has(price decimal.Decimal) bool {
	_, ok := m.orders[priceKey(price)]
	return ok
}

func (m *PriceMap) Len() int { return len(m.keys) }

// Orders returns the orders in insertion order
func (m *PriceMap) Orders() []Order {
	out := make([]Order, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.orders[k])
	}
	return out
}

// Prices returns the price keys in insertion order
func (m *PriceMap) Prices() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.orders[k].Price)
	}
	return out
}

// Subtract returns the orders of m whose price is absent from other,
// preserving m's order.
func (m *PriceMap) Subtract(other *PriceMap) PriceMap {
	var diff PriceMap
	for _, k := range m.keys {
		if _, ok := other.orders[k]; !ok {
			diff.Set(m.orders[k])
		}
	}
	return diff
}
