package patch

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
)

type Kind string

const (
	OpRemove  Kind = "remove"
	OpReplace Kind = "replace"
	OpAdd     Kind = "add"
	OpMerge   Kind = "merge"
)

// Op is one entry of the venue's patch payload. Value is a []string of UUIDs
// (remove), []Reprice (replace), []book.Order (add) or []string of OCO ids (merge).
type Op struct {
	Op    Kind `json:"op"`
	Value any  `json:"value"`
}

// Reprice is the minimal replace body the venue needs
type Reprice struct {
	UUID  string          `json:"uuid"`
	Price decimal.Decimal `json:"price"`
}

// Payload serializes p as remove, replace, add, merge. Kinds with nothing to
// do are left out; the venue never sees an empty op.
func Payload(p Patch) []Op {
	var ops []Op
	if len(p.Remove) > 0 {
		ops = append(ops, Op{Op: OpRemove, Value: uuids(p.Remove)})
	}
	if len(p.Replace) > 0 {
		reprices := make([]Reprice, 0, len(p.Replace))
		for _, o := range p.Replace {
			reprices = append(reprices, Reprice{UUID: o.UUID, Price: o.Price})
		}
		ops = append(ops, Op{Op: OpReplace, Value: reprices})
	}
	if len(p.Add) > 0 {
		ops = append(ops, Op{Op: OpAdd, Value: p.Add})
	}
	if len(p.Merge) > 0 {
		ops = append(ops, Op{Op: OpMerge, Value: p.Merge})
	}
	return ops
}

// CancelPatch builds a remove op for the limit orders among orders.
// Stops and targets are left alone. Returns nil when nothing qualifies.
func CancelPatch(orders []book.Order) []Op {
	var limits []book.Order
	for _, o := range orders {
		if o.OrderType == book.Limit {
			limits = append(limits, o)
		}
	}
	if len(limits) == 0 {
		return nil
	}
	return []Op{{Op: OpRemove, Value: uuids(limits)}}
}

// MergeOp consolidates the given OCO groups
func MergeOp(ids []string) []Op {
	if len(ids) == 0 {
		return nil
	}
	return []Op{{Op: OpMerge, Value: ids}}
}

func uuids(orders []book.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.UUID)
	}
	return out
}

// Result is the venue's verdict on one op of a patch
type Result struct {
	Op    Kind   `json:"op"`
	Error string `json:"error,omitempty"`
}

// Response is the venue's reply to a patch request
type Response struct {
	Result []Result `json:"result"`
}

// HasError reports whether any op was rejected
func (r Response) HasError() bool {
	for _, res := range r.Result {
		if res.Error != "" {
			return true
		}
	}
	return false
}

// Counts summarises a payload for logging
func Counts(ops []Op) map[Kind]int {
	out := make(map[Kind]int, len(ops))
	for _, op := range ops {
		switch v := op.Value.(type) {
		case []string:
			out[op.Op] += len(v)
		case []Reprice:
			out[op.Op] += len(v)
		case []book.Order:
			out[op.Op] += len(v)
		}
	}
	return out
}
