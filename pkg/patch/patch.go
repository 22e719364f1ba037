package patch

import (
	"github.com/uhyunpark/mmbot/pkg/book"
)

// Patch is one reconciliation batch. Replace entries carry the venue UUID of
// an existing order together with its new price.
type Patch struct {
	Remove  []book.Order
	Replace []book.Order
	Add     []book.Order
	Merge   []string
}

func (p Patch) Empty() bool {
	return len(p.Remove) == 0 && len(p.Replace) == 0 && len(p.Add) == 0 && len(p.Merge) == 0
}

// Optimize turns a diff into a patch that reprices existing orders wherever it
// can instead of cancelling and recreating them. Cancels and creates are
// paired in iteration order per side; buys precede sells in every list.
func Optimize(c book.Changes) Patch {
	buys := pair(&c.Cancels.Buys, &c.Creates.Buys)
	sells := pair(&c.Cancels.Sells, &c.Creates.Sells)
	return Patch{
		Remove:  append(buys.Remove, sells.Remove...),
		Replace: append(buys.Replace, sells.Replace...),
		Add:     append(buys.Add, sells.Add...),
	}
}

func pair(cancels, creates *book.PriceMap) Patch {
	cs := cancels.Orders()
	ns := creates.Orders()

	var p Patch
	for len(cs) > 0 && len(ns) > 0 {
		moved := cs[0]
		moved.Price = ns[0].Price
		p.Replace = append(p.Replace, moved)
		cs, ns = cs[1:], ns[1:]
	}
	p.Remove = cs
	p.Add = ns
	return p
}
